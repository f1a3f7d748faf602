/*
scheduler.go - Automated refresh scheduler

PURPOSE:
  Periodically runs the reconciler's refresh pass so that every active
  template always has materialized instances out to the horizon, even
  if no user action touches a template for months.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates the actual work to Reconciler.OnPeriodicRefresh
  - A template that fails to refresh never blocks the others

CONFIGURATION:
  - Interval: How often to refresh (default: 1 hour)
  - Enabled:  Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRefreshScheduler(reconciler, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRefresh endpoint (manual refresh)
  - recurring/reconciler.go: OnPeriodicRefresh
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerkit/recurring-engine/recurring"
)

// RefreshScheduler runs periodic instance refresh in the background.
type RefreshScheduler struct {
	Reconciler *recurring.Reconciler
	Interval   time.Duration
	Enabled    bool
	Log        zerolog.Logger

	ticker  *time.Ticker
	stop    chan bool
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewRefreshScheduler creates a new scheduler with the default interval.
func NewRefreshScheduler(rec *recurring.Reconciler, log zerolog.Logger) *RefreshScheduler {
	return &RefreshScheduler{
		Reconciler: rec,
		Interval:   1 * time.Hour,
		Enabled:    true,
		Log:        log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler. Calling Start on a running scheduler is a
// no-op.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Log.Info().Msg("scheduler disabled, not starting")
		return
	}
	if rs.running {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan bool)
	rs.running = true
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.Log.Info().Dur("interval", rs.Interval).Msg("scheduler started")
}

// Stop stops the scheduler and waits for the in-flight pass to finish.
// Safe to call more than once, and before Start.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.running {
		return
	}

	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.running = false
	rs.Log.Info().Msg("scheduler stopped")
}

func (rs *RefreshScheduler) run(ticker *time.Ticker, stop chan bool) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.refresh()

	for {
		select {
		case <-ticker.C:
			rs.refresh()
		case <-stop:
			return
		}
	}
}

func (rs *RefreshScheduler) refresh() {
	ctx := context.Background()

	summary, err := rs.Reconciler.OnPeriodicRefresh(ctx)
	if err != nil {
		rs.Log.Error().Err(err).Msg("refresh pass failed")
		return
	}

	if summary.Generated > 0 || summary.Failed > 0 {
		rs.Log.Info().
			Int("templates", summary.Templates).
			Int("generated", summary.Generated).
			Int("failed", summary.Failed).
			Msg("refresh pass completed")
	}
}

// RunNow triggers an immediate refresh (for testing/admin).
func (rs *RefreshScheduler) RunNow() {
	rs.refresh()
}

// NextRunTime returns when the next scheduled refresh will occur.
func (rs *RefreshScheduler) NextRunTime() time.Time {
	return time.Now().Add(rs.Interval)
}
