package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/metroinfo/metrobot/compute"
	"github.com/metroinfo/metrobot/scraper"
	"github.com/metroinfo/metrobot/types"
	"go.uber.org/zap"
)

// ErrChannelMissing is returned by a Platform when a channel no longer resolves
var ErrChannelMissing = errors.New("channel not found")

// ErrMessageMissing is returned by a Platform when a message no longer resolves
var ErrMessageMissing = errors.New("message not found")

// Store is the subset of the publication store used by the Reconciler
type Store interface {
	FindAll(guildID string) ([]*types.PublicationRecord, error)
	UpdateHash(messageID, hash string) error
}

// Platform is the chat platform where status messages are published
type Platform interface {
	ResolveChannel(ctx context.Context, channelID string) error
	ResolveMessage(ctx context.Context, channelID, messageID string) error
	SendMessage(ctx context.Context, channelID string, status *types.LineStatus) (string, error)
	EditMessage(ctx context.Context, channelID, messageID string, status *types.LineStatus) error
}

// Outcome is the terminal state of a record within a sweep
type Outcome string

// Possible outcomes of processing a record
const (
	Unchanged        Outcome = "unchanged"
	EditApplied      Outcome = "edited"
	LineMissing      Outcome = "line_missing"
	ChannelMissing   Outcome = "channel_missing"
	MessageMissing   Outcome = "message_missing"
	EditFailed       Outcome = "edit_failed"
	StoreWriteFailed Outcome = "store_write_failed"
)

// Outcomes lists every outcome, in the order they are reported
var Outcomes = []Outcome{Unchanged, EditApplied, LineMissing, ChannelMissing, MessageMissing, EditFailed, StoreWriteFailed}

// RecordResult is what happened to a record during a sweep
type RecordResult struct {
	GuildID   string
	LineID    types.LineID
	MessageID string
	Outcome   Outcome
	Err       error `json:"-"`
}

// Report summarizes a sweep
type Report struct {
	Start    time.Time
	Duration time.Duration
	Results  []RecordResult
	// Err is set when the sweep aborted before processing records
	Err error `json:"-"`
}

// Count returns how many records ended with the given outcome
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, result := range r.Results {
		if result.Outcome == outcome {
			n++
		}
	}
	return n
}

// Reconciler keeps published status messages in sync with the network status
type Reconciler struct {
	source   scraper.Source
	store    Store
	platform Platform
	log      *zap.Logger
}

// New returns a Reconciler
func New(source scraper.Source, store Store, platform Platform, log *zap.Logger) *Reconciler {
	return &Reconciler{
		source:   source,
		store:    store,
		platform: platform,
		log:      log,
	}
}

// RunOnce performs one sweep over every publication record. The network status
// is fetched once and shared by all records. Failures affecting a single
// record are recorded in the report and do not stop the sweep; failures to
// fetch the status or to list the records abort it and are returned.
func (r *Reconciler) RunOnce(ctx context.Context) (*Report, error) {
	report := &Report{Start: time.Now()}
	defer func() {
		report.Duration = time.Since(report.Start)
	}()

	network, err := r.source.FetchNetworkStatus(ctx)
	if err != nil {
		kind := "unavailable"
		if errors.Is(err, scraper.ErrMalformedResponse) {
			kind = "malformed"
		}
		r.log.Error("failed to fetch network status", zap.String("kind", kind), zap.Error(err))
		report.Err = err
		return report, err
	}

	records, err := r.store.FindAll("")
	if err != nil {
		r.log.Error("failed to list publication records", zap.Error(err))
		report.Err = err
		return report, err
	}

	for _, record := range records {
		result := r.process(ctx, network, record)
		report.Results = append(report.Results, result)
	}
	return report, nil
}

func (r *Reconciler) process(ctx context.Context, network types.Network, record *types.PublicationRecord) RecordResult {
	result := RecordResult{
		GuildID:   record.GuildID,
		LineID:    record.LineID,
		MessageID: record.MessageID,
	}
	log := r.log.With(
		zap.String("guild", record.GuildID),
		zap.String("line", string(record.LineID)),
		zap.String("channel", record.ChannelID),
		zap.String("message", record.MessageID))

	status := network.Line(record.LineID)
	if status == nil {
		log.Warn("line not present in network status")
		result.Outcome = LineMissing
		return result
	}

	equal, hash, err := compute.FingerprintsEqual(status, record.InfoHash)
	if err != nil {
		log.Warn("failed to fingerprint line status", zap.Error(err))
		result.Outcome, result.Err = EditFailed, err
		return result
	}
	if equal {
		log.Debug("line status unchanged")
		result.Outcome = Unchanged
		return result
	}

	if err := r.platform.ResolveChannel(ctx, record.ChannelID); err != nil {
		log.Warn("status channel no longer resolves", zap.Error(err))
		result.Outcome, result.Err = ChannelMissing, err
		return result
	}

	if err := r.platform.ResolveMessage(ctx, record.ChannelID, record.MessageID); err != nil {
		log.Warn("status message no longer resolves", zap.Error(err))
		result.Outcome, result.Err = MessageMissing, err
		return result
	}

	if err := r.platform.EditMessage(ctx, record.ChannelID, record.MessageID, status); err != nil {
		log.Warn("failed to edit status message", zap.Error(err))
		result.Outcome, result.Err = EditFailed, err
		return result
	}

	// the fingerprint is only stored once the edit went through
	if err := r.store.UpdateHash(record.MessageID, hash); err != nil {
		log.Warn("failed to store fingerprint after edit", zap.Error(err))
		result.Outcome, result.Err = StoreWriteFailed, err
		return result
	}

	log.Info("status message updated", zap.String("status", string(status.StatusCode)))
	result.Outcome = EditApplied
	return result
}
