package reconciler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner runs a Reconciler periodically. Sweeps run one at a time on a single
// goroutine.
type Runner struct {
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	trigger  chan struct{}
	log      *zap.Logger
	mu       sync.RWMutex

	reconciler *Reconciler
	lastReport *Report

	Period time.Duration
	// Timeout bounds each sweep. Defaults to Period.
	Timeout time.Duration
	// ReportCallback, if set, is called with the report of every sweep
	ReportCallback func(report *Report)
}

// NewRunner returns a Runner that sweeps every period
func NewRunner(reconciler *Reconciler, period time.Duration, log *zap.Logger) *Runner {
	return &Runner{
		reconciler: reconciler,
		Period:     period,
		log:        log,
		trigger:    make(chan struct{}, 1),
	}
}

// Begin starts running sweeps, the first one immediately
func (r *Runner) Begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopChan = make(chan struct{})
	r.ticker = time.NewTicker(r.Period)
	r.running = true
	go r.mainLoop(r.ticker, r.stopChan)
	r.log.Info("reconciler runner started", zap.Duration("period", r.Period))
}

// End stops the runner. A sweep in progress is cancelled.
func (r *Runner) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.ticker.Stop()
	close(r.stopChan)
	r.running = false
}

// Running returns whether the runner is running
func (r *Runner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Trigger requests a sweep as soon as the current one, if any, finishes.
// Requests made while one is already pending are coalesced.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// LastReport returns the report of the latest sweep, or nil if none ran yet
func (r *Runner) LastReport() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastReport
}

func (r *Runner) mainLoop(ticker *time.Ticker, stopChan chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopChan
		cancel()
	}()

	r.sweep(ctx)
	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			r.sweep(ctx)
		case <-r.trigger:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = r.Period
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report, err := r.reconciler.RunOnce(ctx)
	if err == nil {
		r.log.Debug("sweep finished",
			zap.Int("records", len(report.Results)),
			zap.Int("edited", report.Count(EditApplied)),
			zap.Duration("took", report.Duration))
	}

	r.mu.Lock()
	r.lastReport = report
	r.mu.Unlock()

	if r.ReportCallback != nil {
		r.ReportCallback(report)
	}
}
