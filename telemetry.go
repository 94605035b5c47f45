package main

import (
	"sync/atomic"
	"time"

	"github.com/metroinfo/metrobot/reconciler"
	"go.uber.org/zap"
	statsd "gopkg.in/alexcesaro/statsd.v2"
)

// fetchSample describes one request to the upstream status API
type fetchSample struct {
	Duration time.Duration
	Err      error
}

var (
	// webRequestTelemetry is a channel where something should be sent whenever
	// a web request is served
	webRequestTelemetry = make(chan struct{}, 10)
	reportTelemetry     = make(chan *reconciler.Report, 10)
	fetchTelemetry      = make(chan fetchSample, 10)

	webRequestCount atomic.Int64
)

// statsClient is the subset of the statsd client used by the stats sender
type statsClient interface {
	Count(bucket string, n interface{})
	Increment(bucket string)
	Gauge(bucket string, value interface{})
	Timing(bucket string, value interface{})
}

// StatsSender is meant to be called as a goroutine that handles sending telemetry
// to a statsd (or compatible) server
func StatsSender() {
	log := zap.L().Named("telemetry")
	statsdAddress, present := secrets.Get("statsdAddress")
	statsdPrefix, present2 := secrets.Get("statsdPrefix")
	if !present || !present2 {
		log.Info("statsd settings not present in keybox, telemetry disabled")
		return
	}

	c, err := statsd.New(statsd.Address(statsdAddress), statsd.Prefix(statsdPrefix))
	if err != nil {
		// If nothing is listening on the target port, an error is returned and
		// the returned client does nothing but is still usable. So we can
		// just log the error and go on.
		log.Warn("statsd client not connected", zap.Error(err))
	}
	defer c.Close()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if rdb != nil {
				c.Gauge("db.open_connections", rdb.Stats().OpenConnections)
			}
		case report := <-reportTelemetry:
			sendReport(c, report)
		case sample := <-fetchTelemetry:
			sendFetch(c, sample)
		case <-webRequestTelemetry:
			c.Increment("webcalls")
		}
	}
}

func sendReport(c statsClient, report *reconciler.Report) {
	if report.Err != nil {
		c.Increment("reconcile.failed_ticks")
		return
	}
	for _, outcome := range reconciler.Outcomes {
		c.Count("reconcile."+string(outcome), report.Count(outcome))
	}
	c.Timing("reconcile.duration", int(report.Duration/time.Millisecond))
}

func sendFetch(c statsClient, sample fetchSample) {
	if sample.Err != nil {
		c.Increment("metroapi.errors")
		return
	}
	c.Increment("metroapi.fetches")
	c.Timing("metroapi.duration", int(sample.Duration/time.Millisecond))
}
