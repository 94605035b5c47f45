package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/metroinfo/metrobot/compute"
	"github.com/metroinfo/metrobot/scraper"
	"github.com/metroinfo/metrobot/types"
	"go.uber.org/zap"
)

// ErrAlreadyPublished is returned by Publish when the guild already has status
// messages and overwriting was not requested
var ErrAlreadyPublished = errors.New("guild already has status messages")

// PublicationStore is the publication store as used by administrative commands
type PublicationStore interface {
	Store
	Create(record *types.PublicationRecord) error
	Overwrite(record *types.PublicationRecord) error
	ClearAll(guildID string) (int64, error)
}

// Publisher sends the initial status messages of a guild and seeds their
// publication records
type Publisher struct {
	source   scraper.Source
	store    PublicationStore
	platform Platform
	log      *zap.Logger
}

// NewPublisher returns a Publisher
func NewPublisher(source scraper.Source, store PublicationStore, platform Platform, log *zap.Logger) *Publisher {
	return &Publisher{
		source:   source,
		store:    store,
		platform: platform,
		log:      log,
	}
}

// Existing returns the publication records of a guild
func (p *Publisher) Existing(guildID string) ([]*types.PublicationRecord, error) {
	if guildID == "" {
		return []*types.PublicationRecord{}, nil
	}
	return p.store.FindAll(guildID)
}

// Publish sends one status message per line to channelID and records them.
// Unless overwrite is set, publishing to a guild that already has records
// fails with ErrAlreadyPublished and nothing is sent.
func (p *Publisher) Publish(ctx context.Context, guildID, channelID string, overwrite bool) ([]*types.PublicationRecord, error) {
	if guildID == "" {
		return nil, errors.New("Publish: empty guild ID")
	}
	if !overwrite {
		existing, err := p.store.FindAll(guildID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, ErrAlreadyPublished
		}
	}

	if err := p.platform.ResolveChannel(ctx, channelID); err != nil {
		return nil, err
	}

	network, err := p.source.FetchNetworkStatus(ctx)
	if err != nil {
		return nil, err
	}

	records := []*types.PublicationRecord{}
	for _, status := range network {
		hash, err := compute.Fingerprint(status)
		if err != nil {
			return records, err
		}
		messageID, err := p.platform.SendMessage(ctx, channelID, status)
		if err != nil {
			return records, fmt.Errorf("Publish: sending %s: %w", status.ID, err)
		}
		record := &types.PublicationRecord{
			GuildID:   guildID,
			LineID:    status.ID,
			ChannelID: channelID,
			MessageID: messageID,
			InfoHash:  hash,
		}
		if overwrite {
			err = p.store.Overwrite(record)
		} else {
			err = p.store.Create(record)
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}

	p.log.Info("status messages published",
		zap.String("guild", guildID),
		zap.String("channel", channelID),
		zap.Int("count", len(records)),
		zap.Bool("overwrite", overwrite))
	return records, nil
}

// Clear removes every publication record of a guild
func (p *Publisher) Clear(guildID string) (int64, error) {
	n, err := p.store.ClearAll(guildID)
	if err != nil {
		return 0, err
	}
	p.log.Info("publication records cleared", zap.String("guild", guildID), zap.Int64("count", n))
	return n, nil
}
