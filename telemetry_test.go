package main

import (
	"errors"
	"testing"
	"time"

	"github.com/metroinfo/metrobot/reconciler"
	"github.com/stretchr/testify/assert"
)

type fakeStats struct {
	counts     map[string]interface{}
	increments []string
	timings    map[string]interface{}
}

func newFakeStats() *fakeStats {
	return &fakeStats{counts: map[string]interface{}{}, timings: map[string]interface{}{}}
}

func (f *fakeStats) Count(bucket string, n interface{})      { f.counts[bucket] = n }
func (f *fakeStats) Increment(bucket string)                 { f.increments = append(f.increments, bucket) }
func (f *fakeStats) Gauge(bucket string, value interface{})  {}
func (f *fakeStats) Timing(bucket string, value interface{}) { f.timings[bucket] = value }

func TestSendReport(t *testing.T) {
	stats := newFakeStats()
	sendReport(stats, &reconciler.Report{
		Duration: 250 * time.Millisecond,
		Results: []reconciler.RecordResult{
			{Outcome: reconciler.Unchanged},
			{Outcome: reconciler.Unchanged},
			{Outcome: reconciler.EditFailed},
		},
	})

	assert.Equal(t, 2, stats.counts["reconcile.unchanged"])
	assert.Equal(t, 1, stats.counts["reconcile.edit_failed"])
	assert.Equal(t, 0, stats.counts["reconcile.edited"])
	assert.Len(t, stats.counts, len(reconciler.Outcomes))
	assert.Equal(t, 250, stats.timings["reconcile.duration"])
	assert.Empty(t, stats.increments)
}

func TestSendReport_FailedTick(t *testing.T) {
	stats := newFakeStats()
	sendReport(stats, &reconciler.Report{Err: errors.New("upstream down")})

	assert.Equal(t, []string{"reconcile.failed_ticks"}, stats.increments)
	assert.Empty(t, stats.counts)
	assert.Empty(t, stats.timings)
}

func TestSendFetch(t *testing.T) {
	stats := newFakeStats()
	sendFetch(stats, fetchSample{Duration: 80 * time.Millisecond})
	sendFetch(stats, fetchSample{Err: errors.New("timeout")})

	assert.Equal(t, []string{"metroapi.fetches", "metroapi.errors"}, stats.increments)
	assert.Equal(t, 80, stats.timings["metroapi.duration"])
}
