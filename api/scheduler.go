/*
scheduler.go - Automated re-derivation of stale schedules

PURPOSE:
  Periodically looks for schedules flagged stale by a holiday change and
  re-derives them from their stored loan configuration. Each re-derivation
  appends a new version, which is not stale, so the loan leaves the sweep.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Processes at most Batch loans per tick
  - A loan whose re-derivation fails stays stale and is retried next tick
  - Reports the remaining stale count to an optional gauge

CONFIGURATION:
  - Interval: How often to check (default: 5 minutes)
  - Batch:    Loans per tick (default: 100)
  - Enabled:  Whether the background loop runs (default: true)

USAGE:
  scheduler := NewRederiveScheduler(svc, factory.NewLoanFactory(), logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRederive endpoint (manual sweep)
  - schedule/service.go: Rederive
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/schedule-engine/factory"
	"github.com/warp/schedule-engine/schedule"
)

// StaleGauge receives the number of stale schedules left after a sweep.
type StaleGauge interface {
	SetStale(n int)
}

// RederiveResult summarizes one sweep.
type RederiveResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Remaining int      `json:"remaining"`
	Errors    []string `json:"errors,omitempty"`
}

// RederiveScheduler re-derives stale schedules.
type RederiveScheduler struct {
	Service  *schedule.Service
	Factory  *factory.LoanFactory
	Logger   *slog.Logger
	Gauge    StaleGauge
	Interval time.Duration
	Batch    int
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	sweep  sync.Mutex
}

// NewRederiveScheduler creates a new scheduler.
func NewRederiveScheduler(svc *schedule.Service, f *factory.LoanFactory, logger *slog.Logger) *RederiveScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RederiveScheduler{
		Service:  svc,
		Factory:  f,
		Logger:   logger,
		Interval: 5 * time.Minute,
		Batch:    100,
		Enabled:  true,
	}
}

// Start begins the background loop.
func (rs *RederiveScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("rederive scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run()

	rs.Logger.Info("rederive scheduler started", "interval", rs.Interval, "batch", rs.Batch)
}

// Stop stops the background loop and waits for a running sweep.
func (rs *RederiveScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.Logger.Info("rederive scheduler stopped")
}

func (rs *RederiveScheduler) run() {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-rs.stop
		cancel()
	}()

	rs.checkAndProcess(ctx)
	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndProcess(ctx)
		case <-rs.stop:
			return
		}
	}
}

func (rs *RederiveScheduler) checkAndProcess(ctx context.Context) {
	result, err := rs.RunNow(ctx)
	if err != nil {
		rs.Logger.Error("rederive sweep failed", "error", err)
		return
	}
	if result.Processed > 0 || result.Failed > 0 {
		rs.Logger.Info("rederive sweep completed",
			"processed", result.Processed, "failed", result.Failed, "remaining", result.Remaining)
	}
}

// RunNow performs one sweep. Concurrent calls are serialized so a loan is
// never re-derived twice from the same stale version.
func (rs *RederiveScheduler) RunNow(ctx context.Context) (RederiveResult, error) {
	rs.sweep.Lock()
	defer rs.sweep.Unlock()

	var result RederiveResult
	stale, err := rs.Service.ListStale(ctx, rs.Batch)
	if err != nil {
		return result, fmt.Errorf("list stale schedules: %w", err)
	}

	for _, rec := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := rs.rederive(ctx, rec); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			rs.Logger.Warn("schedule not re-derived", "loan_ref", rec.LoanRef, "version", rec.Version, "error", err)
			continue
		}
		result.Processed++
	}

	remaining, err := rs.Service.ListStale(ctx, 0)
	if err != nil {
		return result, fmt.Errorf("count stale schedules: %w", err)
	}
	result.Remaining = len(remaining)
	if rs.Gauge != nil {
		rs.Gauge.SetStale(result.Remaining)
	}
	return result, nil
}

func (rs *RederiveScheduler) rederive(ctx context.Context, rec *schedule.Record) error {
	if len(rec.Config) == 0 {
		return fmt.Errorf("%s v%d has no stored configuration", rec.LoanRef, rec.Version)
	}
	terms, err := rs.Factory.ParseTerms(string(rec.Config))
	if err != nil {
		return fmt.Errorf("%s v%d: %w", rec.LoanRef, rec.Version, err)
	}
	_, err = rs.Service.Rederive(ctx, rec, terms)
	return err
}

// GetNextRunTime returns when the next scheduled check will occur.
func (rs *RederiveScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(rs.Interval)
}
