package main

import (
	"context"
	"fmt"

	"github.com/metroinfo/metrobot/accessibility"
	"github.com/metroinfo/metrobot/config"
	"github.com/metroinfo/metrobot/telegrambot"
	"go.uber.org/zap"
)

// SetUpTelegramBot starts the station accessibility bot if its keybox is
// present. A nil bot means Telegram functions are disabled.
func SetUpTelegramBot(ctx context.Context) (*telegrambot.Bot, error) {
	telegramBox, present := secrets.GetBox("telegram")
	if !present {
		telegramLog.Info("Telegram keybox not found, Telegram functions disabled")
		return nil, nil
	}
	token, present := telegramBox.Get("token")
	if !present {
		return nil, fmt.Errorf("telegram bot token not present in keybox")
	}

	backend, err := newAccessBackend(ctx, cfg.Access)
	if err != nil {
		return nil, err
	}
	store := accessibility.NewStore(backend, telegramLog.Named("access"))

	loc, err := cfg.Metro.Location()
	if err != nil {
		return nil, err
	}

	adminIDs := cfg.Telegram.AdminIDs()
	if len(adminIDs) == 0 {
		telegramLog.Warn("no admin users configured, every command will be refused")
	}

	bot, err := telegrambot.New(telegrambot.Options{
		Token:       token,
		AdminIDs:    adminIDs,
		EditTimeout: cfg.Telegram.EditTimeout(),
		Location:    loc,
	}, store, statusSource, telegramLog)
	if err != nil {
		return nil, err
	}
	bot.Start()
	return bot, nil
}

func newAccessBackend(ctx context.Context, access config.Access) (accessibility.Backend, error) {
	if !access.IsValidBackend() {
		return nil, fmt.Errorf("unknown accessibility backend %q", access.Backend)
	}

	if access.Backend == config.BackendFile {
		telegramLog.Info("storing accessibility documents on disk", zap.String("dir", access.Dir))
		return accessibility.NewFileBackend(access.Dir)
	}

	storageBox, present := secrets.GetBox("objectStorage")
	if !present {
		return nil, fmt.Errorf("objectStorage keybox not present in keybox")
	}
	accessKey, present := storageBox.Get("accessKey")
	if !present {
		return nil, fmt.Errorf("object storage access key not present in keybox")
	}
	secretKey, present := storageBox.Get("secretKey")
	if !present {
		return nil, fmt.Errorf("object storage secret key not present in keybox")
	}

	client, err := accessibility.NewObjectClient(accessibility.ObjectStorageConfig{
		Endpoint:  access.Endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Secure:    access.Secure,
	})
	if err != nil {
		return nil, err
	}
	telegramLog.Info("storing accessibility documents in object storage",
		zap.String("endpoint", access.Endpoint),
		zap.String("bucket", access.Bucket),
		zap.String("prefix", access.Prefix))
	return accessibility.NewMinioBackend(ctx, client, access.Bucket, access.Prefix)
}
