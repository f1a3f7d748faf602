package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/recurring-engine/logging"
	"github.com/ledgerkit/recurring-engine/recurring"
	"github.com/ledgerkit/recurring-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testTemplate(id recurring.TemplateID) recurring.Template {
	now := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	return recurring.Template{
		ID:          id,
		OwnerID:     "owner-1",
		Description: "Rent",
		Amount:      decimal.NewFromFloat(1200.50),
		Kind:        recurring.KindExpense,
		Category:    "housing",
		DayOfMonth:  15,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testInstance(id recurring.InstanceID, tplID recurring.TemplateID, date time.Time, status recurring.InstanceStatus) recurring.Instance {
	now := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	tid := tplID
	return recurring.Instance{
		ID:          id,
		OwnerID:     "owner-1",
		TemplateID:  &tid,
		Description: "Rent",
		Amount:      decimal.NewFromFloat(1200.50),
		Kind:        recurring.KindExpense,
		Category:    "housing",
		Date:        date,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// =============================================================================
// TEMPLATES
// =============================================================================

func TestSQLite_Template_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tpl := testTemplate("tpl-1")
	endDate := time.Date(2025, time.June, 30, 12, 0, 0, 0, time.UTC)
	tpl.EndDate = &endDate
	require.NoError(t, store.SaveTemplate(ctx, tpl))

	got, err := store.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, tpl.ID, got.ID)
	assert.Equal(t, tpl.OwnerID, got.OwnerID)
	assert.Equal(t, tpl.Description, got.Description)
	assert.True(t, got.Amount.Equal(tpl.Amount), "decimal amount must survive the round trip exactly")
	assert.Equal(t, tpl.Kind, got.Kind)
	assert.Equal(t, tpl.DayOfMonth, got.DayOfMonth)
	assert.True(t, got.Active)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(endDate))
}

func TestSQLite_GetTemplate_AbsentIsNilNotError(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetTemplate(context.Background(), "tpl-none")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_UpdateTemplate_PartialPatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveTemplate(ctx, testTemplate("tpl-1")))

	amount := decimal.NewFromInt(1300)
	require.NoError(t, store.UpdateTemplate(ctx, "tpl-1", recurring.TemplatePatch{Amount: &amount}))

	got, err := store.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(amount))
	assert.Equal(t, "Rent", got.Description, "unpatched fields stay put")
}

func TestSQLite_UpdateTemplate_ClearEndDate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tpl := testTemplate("tpl-1")
	endDate := time.Date(2025, time.June, 30, 12, 0, 0, 0, time.UTC)
	tpl.EndDate = &endDate
	require.NoError(t, store.SaveTemplate(ctx, tpl))

	require.NoError(t, store.UpdateTemplate(ctx, "tpl-1", recurring.TemplatePatch{ClearEndDate: true}))

	got, err := store.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.EndDate)
}

func TestSQLite_UpdateTemplate_Missing(t *testing.T) {
	store := newTestStore(t)

	active := false
	err := store.UpdateTemplate(context.Background(), "tpl-none", recurring.TemplatePatch{Active: &active})
	assert.ErrorIs(t, err, recurring.ErrTemplateNotFound)
}

func TestSQLite_ListActiveTemplates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	active := testTemplate("tpl-active")
	inactive := testTemplate("tpl-inactive")
	inactive.Active = false
	require.NoError(t, store.SaveTemplate(ctx, active))
	require.NoError(t, store.SaveTemplate(ctx, inactive))

	got, err := store.ListActiveTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recurring.TemplateID("tpl-active"), got[0].ID)
}

// =============================================================================
// FOREIGN KEY - ORPHAN SEMANTICS
// =============================================================================

func TestSQLite_DeleteTemplate_OrphansInstances(t *testing.T) {
	// GIVEN: A template with a completed instance
	// WHEN: The template is hard-deleted
	// THEN: The instance survives with a NULL template reference

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveTemplate(ctx, testTemplate("tpl-1")))
	require.NoError(t, store.InsertInstances(ctx, []recurring.Instance{
		testInstance("inst-1", "tpl-1", recurring.AnchoredDate(2024, time.March, 15), recurring.StatusCompleted),
	}))

	require.NoError(t, store.DeleteTemplate(ctx, "tpl-1"))

	byTemplate, err := store.ListInstancesByTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Empty(t, byTemplate)

	byOwner, err := store.ListInstancesByOwner(ctx, "owner-1",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Nil(t, byOwner[0].TemplateID, "the FK must null the reference, not cascade")
}

// =============================================================================
// EXISTENCE ORACLE
// =============================================================================

func TestSQLite_HasInstanceInRange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveTemplate(ctx, testTemplate("tpl-1")))
	require.NoError(t, store.InsertInstances(ctx, []recurring.Instance{
		testInstance("inst-mar", "tpl-1", recurring.AnchoredDate(2024, time.March, 15), recurring.StatusPending),
	}))

	start, end := recurring.MonthBounds(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	found, err := store.HasInstanceInRange(ctx, "tpl-1", start, end)
	require.NoError(t, err)
	assert.True(t, found)

	start, end = recurring.MonthBounds(time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	found, err = store.HasInstanceInRange(ctx, "tpl-1", start, end)
	require.NoError(t, err)
	assert.False(t, found)

	// A different template's instance does not satisfy the check.
	start, end = recurring.MonthBounds(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	found, err = store.HasInstanceInRange(ctx, "tpl-other", start, end)
	require.NoError(t, err)
	assert.False(t, found)
}

// =============================================================================
// PENDING DELETES
// =============================================================================

func TestSQLite_DeletePendingFrom(t *testing.T) {
	// Pending at/after the cutoff go; completed rows and earlier pending stay.

	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveTemplate(ctx, testTemplate("tpl-1")))

	cutoff := recurring.AnchoredDate(2024, time.March, 15)
	require.NoError(t, store.InsertInstances(ctx, []recurring.Instance{
		testInstance("inst-feb", "tpl-1", recurring.AnchoredDate(2024, time.February, 15), recurring.StatusPending),
		testInstance("inst-mar", "tpl-1", cutoff, recurring.StatusPending),
		testInstance("inst-apr", "tpl-1", recurring.AnchoredDate(2024, time.April, 15), recurring.StatusCompleted),
	}))

	require.NoError(t, store.DeletePendingFrom(ctx, "tpl-1", cutoff))

	remaining, err := store.ListInstancesByTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, recurring.InstanceID("inst-feb"), remaining[0].ID)
	assert.Equal(t, recurring.InstanceID("inst-apr"), remaining[1].ID)
}

// =============================================================================
// INSTANCES
// =============================================================================

func TestSQLite_Instance_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveTemplate(ctx, testTemplate("tpl-1")))
	date := recurring.AnchoredDate(2024, time.March, 15)
	require.NoError(t, store.InsertInstances(ctx, []recurring.Instance{
		testInstance("inst-1", "tpl-1", date, recurring.StatusPending),
	}))

	got, err := store.ListInstancesByTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	inst := got[0]
	assert.Equal(t, recurring.InstanceID("inst-1"), inst.ID)
	assert.True(t, inst.Amount.Equal(decimal.NewFromFloat(1200.50)))
	assert.True(t, inst.Date.Equal(date), "the noon anchor must survive the round trip")
	assert.Equal(t, recurring.StatusPending, inst.Status)
	require.NotNil(t, inst.TemplateID)
	assert.Equal(t, recurring.TemplateID("tpl-1"), *inst.TemplateID)
}

func TestSQLite_MarkInstanceCompleted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveTemplate(ctx, testTemplate("tpl-1")))
	require.NoError(t, store.InsertInstances(ctx, []recurring.Instance{
		testInstance("inst-1", "tpl-1", recurring.AnchoredDate(2024, time.March, 15), recurring.StatusPending),
	}))

	require.NoError(t, store.MarkInstanceCompleted(ctx, "inst-1"))

	got, err := store.ListInstancesByTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusCompleted, got[0].Status)

	assert.ErrorIs(t, store.MarkInstanceCompleted(ctx, "inst-none"), recurring.ErrInstanceNotFound)
}

func TestSQLite_DeleteInstance_Missing(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteInstance(context.Background(), "inst-none")
	assert.ErrorIs(t, err, recurring.ErrInstanceNotFound)
}

// =============================================================================
// END-TO-END WITH RECONCILER
// =============================================================================

func TestSQLite_ReconcilerEndToEnd(t *testing.T) {
	// GIVEN: The full engine over a real SQLite store
	// WHEN: A template is created, updated effective mid-window, and retired
	// THEN: The persisted instance set reflects each step

	ctx := context.Background()
	store := newTestStore(t)
	clock := &recurring.FixedClock{At: time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)}
	rec := recurring.NewReconciler(store, clock, logging.Nop())

	created, err := rec.OnTemplateCreate(ctx, recurring.Template{
		OwnerID:     "owner-1",
		Description: "Rent",
		Amount:      decimal.NewFromInt(1200),
		Kind:        recurring.KindExpense,
		Category:    "housing",
		DayOfMonth:  15,
		Active:      true,
	})
	require.NoError(t, err)

	instances, err := store.ListInstancesByTemplate(ctx, created.ID)
	require.NoError(t, err)
	require.NotEmpty(t, instances)
	assert.Equal(t, time.January, instances[0].Date.Month())

	// Amount change effective June 1
	newAmount := decimal.NewFromInt(1350)
	effective := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	_, err = rec.OnTemplateUpdate(ctx, created.ID, recurring.TemplatePatch{Amount: &newAmount}, effective)
	require.NoError(t, err)

	instances, err = store.ListInstancesByTemplate(ctx, created.ID)
	require.NoError(t, err)
	for _, inst := range instances {
		if inst.Date.Before(effective) {
			assert.True(t, inst.Amount.Equal(decimal.NewFromInt(1200)))
		} else {
			assert.True(t, inst.Amount.Equal(newAmount))
		}
	}

	// Retire effective September 1
	cutoff := time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, rec.OnTemplateDelete(ctx, created.ID, cutoff))

	instances, err = store.ListInstancesByTemplate(ctx, created.ID)
	require.NoError(t, err)
	for _, inst := range instances {
		assert.True(t, inst.Date.Before(cutoff))
	}
}

func TestSQLite_WritesStampInjectedClock(t *testing.T) {
	// GIVEN: A store whose clock is pinned
	// WHEN: A template is patched and an instance completed
	// THEN: Both updated_at stamps come from the injected clock

	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	store.Clock = recurring.FixedClock{At: at}

	require.NoError(t, store.SaveTemplate(ctx, testTemplate("tpl-1")))
	require.NoError(t, store.InsertInstances(ctx, []recurring.Instance{
		testInstance("inst-1", "tpl-1", recurring.AnchoredDate(2024, time.March, 15), recurring.StatusPending),
	}))

	desc := "Rent (new lease)"
	require.NoError(t, store.UpdateTemplate(ctx, "tpl-1", recurring.TemplatePatch{Description: &desc}))
	tpl, err := store.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.True(t, tpl.UpdatedAt.Equal(at))

	require.NoError(t, store.MarkInstanceCompleted(ctx, "inst-1"))
	instances, err := store.ListInstancesByTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.True(t, instances[0].UpdatedAt.Equal(at))
}

// =============================================================================
// CORRUPT ROWS
// =============================================================================

func TestSQLite_CorruptRowSurfacesScanError(t *testing.T) {
	// GIVEN: Persisted rows whose amount and date were corrupted outside
	//        the store's write path
	// WHEN: Reading them back
	// THEN: The reads fail instead of returning zeroed records

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corrupt.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveTemplate(ctx, testTemplate("tpl-1")))
	require.NoError(t, store.InsertInstances(ctx, []recurring.Instance{
		testInstance("inst-1", "tpl-1", recurring.AnchoredDate(2024, time.March, 15), recurring.StatusPending),
	}))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`UPDATE recurring_templates SET amount = 'not-a-number' WHERE id = 'tpl-1'`)
	require.NoError(t, err)
	_, err = raw.Exec(`UPDATE transaction_instances SET date = 'garbage' WHERE id = 'inst-1'`)
	require.NoError(t, err)

	_, err = store.GetTemplate(ctx, "tpl-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad amount")

	_, err = store.ListInstancesByTemplate(ctx, "tpl-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad date")
}

// =============================================================================
// RESET
// =============================================================================

func TestSQLite_Reset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveTemplate(ctx, testTemplate("tpl-1")))
	require.NoError(t, store.InsertInstances(ctx, []recurring.Instance{
		testInstance("inst-1", "tpl-1", recurring.AnchoredDate(2024, time.March, 15), recurring.StatusPending),
	}))

	require.NoError(t, store.Reset(ctx))

	tpl, err := store.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Nil(t, tpl)

	instances, err := store.ListInstancesByTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Empty(t, instances)
}
