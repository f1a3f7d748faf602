/*
scheduler_test.go - Refresh scheduler lifecycle tests

Verifies the start/stop lifecycle, the immediate first pass, interval
ticking, and that repeated or out-of-order Stop calls are safe.
*/
package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/recurring-engine/logging"
	"github.com/ledgerkit/recurring-engine/recurring"
	"github.com/ledgerkit/recurring-engine/recurring/store"
)

// countingStore counts refresh passes by intercepting the active-template
// scan that opens every OnPeriodicRefresh.
type countingStore struct {
	*store.Memory
	mu    sync.Mutex
	scans int
}

func (c *countingStore) ListActiveTemplates(ctx context.Context) ([]recurring.Template, error) {
	c.mu.Lock()
	c.scans++
	c.mu.Unlock()
	return c.Memory.ListActiveTemplates(ctx)
}

func (c *countingStore) scanCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scans
}

func newTestScheduler(t *testing.T, interval time.Duration) (*RefreshScheduler, *countingStore) {
	t.Helper()
	cs := &countingStore{Memory: store.NewMemory()}
	rec := recurring.NewReconciler(cs, janClock(), logging.Nop())
	sched := NewRefreshScheduler(rec, logging.Nop())
	sched.Interval = interval
	t.Cleanup(sched.Stop)
	return sched, cs
}

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	// GIVEN: A scheduler with a long interval
	// WHEN: Start is called
	// THEN: A refresh pass runs without waiting for the first tick

	sched, cs := newTestScheduler(t, time.Hour)

	sched.Start()
	require.Eventually(t, func() bool { return cs.scanCount() >= 1 },
		2*time.Second, 10*time.Millisecond)
	sched.Stop()
}

func TestScheduler_TicksAtInterval(t *testing.T) {
	sched, cs := newTestScheduler(t, 10*time.Millisecond)

	sched.Start()
	require.Eventually(t, func() bool { return cs.scanCount() >= 3 },
		2*time.Second, 5*time.Millisecond)
	sched.Stop()
}

func TestScheduler_StopHaltsRefreshes(t *testing.T) {
	// GIVEN: A running scheduler on a short interval
	// WHEN: Stop is called
	// THEN: No further passes run

	sched, cs := newTestScheduler(t, 10*time.Millisecond)

	sched.Start()
	require.Eventually(t, func() bool { return cs.scanCount() >= 1 },
		2*time.Second, 5*time.Millisecond)
	sched.Stop()

	after := cs.scanCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, cs.scanCount())
}

func TestScheduler_StopIsSafeToRepeat(t *testing.T) {
	sched, _ := newTestScheduler(t, time.Hour)

	// Stop before Start is a no-op, not a panic.
	sched.Stop()

	sched.Start()
	sched.Stop()
	sched.Stop()
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	sched, cs := newTestScheduler(t, time.Hour)

	sched.Start()
	require.Eventually(t, func() bool { return cs.scanCount() >= 1 },
		2*time.Second, 10*time.Millisecond)
	sched.Stop()

	before := cs.scanCount()
	sched.Start()
	require.Eventually(t, func() bool { return cs.scanCount() > before },
		2*time.Second, 10*time.Millisecond)
	sched.Stop()
}

func TestScheduler_DisabledDoesNotRun(t *testing.T) {
	sched, cs := newTestScheduler(t, 10*time.Millisecond)
	sched.Enabled = false

	sched.Start()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, cs.scanCount())
	sched.Stop()
}

func TestScheduler_RunNowMaterializes(t *testing.T) {
	// GIVEN: An active template persisted directly in the store
	// WHEN: RunNow triggers a pass without the scheduler running
	// THEN: The template's window is materialized

	sched, cs := newTestScheduler(t, time.Hour)
	ctx := context.Background()

	tpl := recurring.Template{
		ID:          "tpl-rent",
		OwnerID:     "owner-1",
		Description: "Rent",
		Amount:      decimal.NewFromInt(1200),
		Kind:        recurring.KindExpense,
		Category:    "housing",
		DayOfMonth:  15,
		Active:      true,
	}
	require.NoError(t, cs.SaveTemplate(ctx, tpl))

	sched.RunNow()

	instances, err := cs.ListInstancesByTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Len(t, instances, 24)
}
