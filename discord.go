package main

import (
	"errors"

	"github.com/metroinfo/metrobot/discordbot"
	"github.com/metroinfo/metrobot/reconciler"
	"go.uber.org/zap"
)

// SetUpDiscordBot creates the Discord bot from the keybox settings. The bot
// is not connected until StartDiscordBot is called.
func SetUpDiscordBot() (*discordbot.Bot, error) {
	discordBox, present := secrets.GetBox("discord")
	if !present {
		return nil, errors.New("discord keybox not present in keybox")
	}

	token, present := discordBox.Get("token")
	if !present {
		return nil, errors.New("discord bot token not present in keybox")
	}

	return discordbot.New(discordbot.Options{
		Token:          token,
		Prefix:         cfg.Discord.Prefix,
		AdminChannelID: cfg.Discord.AdminChannel,
	}, discordLog)
}

// StartDiscordBot connects the bot and starts serving commands
func StartDiscordBot(bot *discordbot.Bot) error {
	err := bot.Start(publisher, statusSource, new(botCommandReceiver))
	if err != nil {
		return err
	}
	discordLog.Info("bot is now running", zap.String("prefix", cfg.Discord.Prefix))
	return nil
}

// botCommandReceiver exposes the reconciler and server state to the bot
type botCommandReceiver struct{}

func (r *botCommandReceiver) TriggerReconcile() {
	if runner != nil {
		runner.Trigger()
	}
}

func (r *botCommandReceiver) LastReport() *reconciler.Report {
	if runner == nil {
		return nil
	}
	return runner.LastReport()
}

func (r *botCommandReceiver) GetVersion() (gitCommit string, buildDate string) {
	return GitCommit, BuildDate
}

func (r *botCommandReceiver) GetStats() (dbOpenConnections, webTotalRequests int) {
	if rdb != nil {
		dbOpenConnections = rdb.Stats().OpenConnections
	}
	return dbOpenConnections, int(webRequestCount.Load())
}
