package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/metroinfo/metrobot/compute"
	"github.com/metroinfo/metrobot/scraper"
	"github.com/metroinfo/metrobot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu      sync.Mutex
	network types.Network
	err     error
	calls   int
}

func (s *fakeSource) FetchNetworkStatus(ctx context.Context) (types.Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.network, s.err
}

func (s *fakeSource) set(network types.Network) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.network = network
}

type fakeStore struct {
	mu          sync.Mutex
	records     []*types.PublicationRecord
	updateErr   error
	updateCalls []string
}

func (s *fakeStore) FindAll(guildID string) ([]*types.PublicationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []*types.PublicationRecord{}
	for _, r := range s.records {
		if guildID != "" && r.GuildID != guildID {
			continue
		}
		copied := *r
		result = append(result, &copied)
	}
	return result, nil
}

func (s *fakeStore) UpdateHash(messageID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls = append(s.updateCalls, messageID+"="+hash)
	if s.updateErr != nil {
		return s.updateErr
	}
	for _, r := range s.records {
		if r.MessageID == messageID {
			r.InfoHash = hash
			return nil
		}
	}
	return types.ErrRecordNotFound
}

type mockPlatform struct {
	mock.Mock
}

func (m *mockPlatform) ResolveChannel(ctx context.Context, channelID string) error {
	return m.Called(ctx, channelID).Error(0)
}

func (m *mockPlatform) ResolveMessage(ctx context.Context, channelID, messageID string) error {
	return m.Called(ctx, channelID, messageID).Error(0)
}

func (m *mockPlatform) SendMessage(ctx context.Context, channelID string, status *types.LineStatus) (string, error) {
	args := m.Called(ctx, channelID, status)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) EditMessage(ctx context.Context, channelID, messageID string, status *types.LineStatus) error {
	return m.Called(ctx, channelID, messageID, status).Error(0)
}

func lineStatus(id types.LineID, code types.StatusCode) *types.LineStatus {
	return &types.LineStatus{
		ID:         id,
		StatusCode: code,
		Messages:   types.LineMessages{Primary: "Operación normal"},
		Stations: []*types.StationStatus{
			{Code: "X", Name: "Estación", StatusCode: code},
		},
	}
}

func fingerprint(t *testing.T, s *types.LineStatus) string {
	hash, err := compute.Fingerprint(s)
	require.NoError(t, err)
	return hash
}

func record(guild string, line types.LineID, n int, hash string) *types.PublicationRecord {
	return &types.PublicationRecord{
		GuildID:   guild,
		LineID:    line,
		ChannelID: fmt.Sprintf("c%d", n),
		MessageID: fmt.Sprintf("m%d", n),
		InfoHash:  hash,
	}
}

func TestRunOnce_UnchangedThenChanged(t *testing.T) {
	initial := lineStatus(types.LineL1, types.StatusOperating)
	source := &fakeSource{network: types.Network{initial}}
	store := &fakeStore{records: []*types.PublicationRecord{record("g1", types.LineL1, 1, fingerprint(t, initial))}}
	platform := &mockPlatform{}
	r := New(source, store, platform, zap.NewNop())

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(Unchanged))
	platform.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, store.updateCalls)

	delayed := lineStatus(types.LineL1, types.StatusDelayed)
	source.set(types.Network{delayed})
	platform.On("ResolveChannel", mock.Anything, "c1").Return(nil)
	platform.On("ResolveMessage", mock.Anything, "c1", "m1").Return(nil)
	platform.On("EditMessage", mock.Anything, "c1", "m1", delayed).Return(nil)

	report, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(EditApplied))
	platform.AssertNumberOfCalls(t, "EditMessage", 1)
	assert.Equal(t, []string{"m1=" + fingerprint(t, delayed)}, store.updateCalls)
}

func TestRunOnce_Idempotent(t *testing.T) {
	status := lineStatus(types.LineL2, types.StatusPartialClosure)
	source := &fakeSource{network: types.Network{status}}
	store := &fakeStore{records: []*types.PublicationRecord{record("g1", types.LineL2, 1, "stale")}}
	platform := &mockPlatform{}
	platform.On("ResolveChannel", mock.Anything, "c1").Return(nil)
	platform.On("ResolveMessage", mock.Anything, "c1", "m1").Return(nil)
	platform.On("EditMessage", mock.Anything, "c1", "m1", status).Return(nil)
	r := New(source, store, platform, zap.NewNop())

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Count(Unchanged))
	platform.AssertNumberOfCalls(t, "EditMessage", 1)
	assert.Equal(t, 2, source.calls)
}

func TestRunOnce_AtLeastOnceOnStoreFailure(t *testing.T) {
	status := lineStatus(types.LineL3, types.StatusClosed)
	source := &fakeSource{network: types.Network{status}}
	store := &fakeStore{
		records:   []*types.PublicationRecord{record("g1", types.LineL3, 1, "stale")},
		updateErr: errors.New("connection reset"),
	}
	platform := &mockPlatform{}
	platform.On("ResolveChannel", mock.Anything, "c1").Return(nil)
	platform.On("ResolveMessage", mock.Anything, "c1", "m1").Return(nil)
	platform.On("EditMessage", mock.Anything, "c1", "m1", status).Return(nil)
	r := New(source, store, platform, zap.NewNop())

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(StoreWriteFailed))

	store.updateErr = nil
	report, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(EditApplied))
	platform.AssertNumberOfCalls(t, "EditMessage", 2)
}

func TestRunOnce_FaultIsolation(t *testing.T) {
	l1 := lineStatus(types.LineL1, types.StatusDelayed)
	l2 := lineStatus(types.LineL2, types.StatusDelayed)
	l5 := lineStatus(types.LineL5, types.StatusDelayed)
	source := &fakeSource{network: types.Network{l1, l2, l5}}
	store := &fakeStore{records: []*types.PublicationRecord{
		record("g1", types.LineL1, 1, "old"),
		record("g1", types.LineL2, 2, "old"),
		record("g1", types.LineL5, 3, "old"),
	}}
	platform := &mockPlatform{}
	platform.On("ResolveChannel", mock.Anything, "c1").Return(nil)
	platform.On("ResolveChannel", mock.Anything, "c2").Return(ErrChannelMissing)
	platform.On("ResolveChannel", mock.Anything, "c3").Return(nil)
	platform.On("ResolveMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	platform.On("EditMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	r := New(source, store, platform, zap.NewNop())

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, EditApplied, report.Results[0].Outcome)
	assert.Equal(t, ChannelMissing, report.Results[1].Outcome)
	assert.Equal(t, EditApplied, report.Results[2].Outcome)
	assert.Equal(t, []string{"m1=" + fingerprint(t, l1), "m3=" + fingerprint(t, l5)}, store.updateCalls)
}

func TestRunOnce_PerRecordFailures(t *testing.T) {
	status := lineStatus(types.LineL4, types.StatusClosed)
	source := &fakeSource{network: types.Network{status}}
	store := &fakeStore{records: []*types.PublicationRecord{
		record("g1", types.LineL4, 1, "old"),
		record("g2", types.LineL4, 2, "old"),
		record("g3", types.LineL4A, 3, "old"),
	}}
	platform := &mockPlatform{}
	platform.On("ResolveChannel", mock.Anything, mock.Anything).Return(nil)
	platform.On("ResolveMessage", mock.Anything, "c1", "m1").Return(ErrMessageMissing)
	platform.On("ResolveMessage", mock.Anything, "c2", "m2").Return(nil)
	platform.On("EditMessage", mock.Anything, "c2", "m2", status).Return(errors.New("missing permissions"))
	r := New(source, store, platform, zap.NewNop())

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MessageMissing, report.Results[0].Outcome)
	assert.Equal(t, EditFailed, report.Results[1].Outcome)
	assert.Equal(t, LineMissing, report.Results[2].Outcome)
	assert.Empty(t, store.updateCalls)
}

func TestRunOnce_UpstreamFailureAbortsTick(t *testing.T) {
	for _, sentinel := range []error{scraper.ErrUpstreamUnavailable, scraper.ErrMalformedResponse} {
		source := &fakeSource{err: fmt.Errorf("%w: boom", sentinel)}
		store := &fakeStore{records: []*types.PublicationRecord{record("g1", types.LineL1, 1, "old")}}
		platform := &mockPlatform{}
		r := New(source, store, platform, zap.NewNop())

		report, err := r.RunOnce(context.Background())
		assert.True(t, errors.Is(err, sentinel))
		assert.Empty(t, report.Results)
		platform.AssertNotCalled(t, "ResolveChannel", mock.Anything, mock.Anything)
	}
}

func TestRunner_TriggerAndReport(t *testing.T) {
	status := lineStatus(types.LineL6, types.StatusOperating)
	source := &fakeSource{network: types.Network{status}}
	store := &fakeStore{records: []*types.PublicationRecord{record("g1", types.LineL6, 1, fingerprint(t, status))}}
	r := New(source, store, &mockPlatform{}, zap.NewNop())

	reports := make(chan *Report, 10)
	runner := NewRunner(r, time.Hour, zap.NewNop())
	runner.ReportCallback = func(report *Report) {
		reports <- report
	}
	runner.Begin()
	defer runner.End()
	assert.True(t, runner.Running())

	select {
	case report := <-reports:
		assert.Equal(t, 1, report.Count(Unchanged))
	case <-time.After(5 * time.Second):
		t.Fatal("initial sweep did not run")
	}

	runner.Trigger()
	select {
	case <-reports:
	case <-time.After(5 * time.Second):
		t.Fatal("triggered sweep did not run")
	}
	assert.NotNil(t, runner.LastReport())

	runner.End()
	assert.False(t, runner.Running())
}
