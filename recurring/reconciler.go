/*
reconciler.go - Template update/delete/refresh orchestration

PURPOSE:
  Orchestrates the engine's entry points over the external store: persist
  template changes, delete future pending instances at/after an effective
  date, regenerate via the Generator, and persist the new instances.

RETROACTIVITY GUARANTEE:
  Only PENDING instances dated at/after the effective date are ever deleted.
  Completed instances and instances dated before the effective date are
  untouched: past-dated commitments never change silently.

PARTIAL COMPLETION:
  Steps within one call run strictly sequentially with no atomicity across
  them. A crash after the delete but before the insert leaves a template
  temporarily missing future instances; the next periodic refresh heals it.
  Re-running a failed call is safe: delete-then-regenerate converges for a
  fixed effective date, and the existence check suppresses duplicates.

CONCURRENCY:
  Two concurrent calls for the same template can both pass the existence
  check for a month before either inserts. The engine accepts eventual
  (not immediate) uniqueness; the Repairer is the convergence mechanism.

SEE ALSO:
  - generator.go: Pure window expansion
  - repair.go: Duplicate convergence pass
  - api/scheduler.go: Periodic trigger calling OnPeriodicRefresh
*/
package recurring

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultHorizonYears is the long-range materialization window.
const DefaultHorizonYears = 2

// Reconciler coordinates template lifecycle changes with instance state.
type Reconciler struct {
	Store     Store
	Generator *Generator
	Clock     Clock
	Log       zerolog.Logger

	// HorizonYears overrides the default 2-year generation window.
	HorizonYears int
}

// NewReconciler wires a reconciler over the given store.
func NewReconciler(store Store, clock Clock, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		Store:     store,
		Generator: NewGenerator(store, clock),
		Clock:     clock,
		Log:       log.With().Str("component", "reconciler").Logger(),
	}
}

func (r *Reconciler) horizon() int {
	if r.HorizonYears > 0 {
		return r.HorizonYears
	}
	return DefaultHorizonYears
}

// =============================================================================
// CREATE
// =============================================================================

// OnTemplateCreate persists a new template and materializes its first
// window immediately, so the creating user sees instances without waiting
// for the next periodic refresh.
func (r *Reconciler) OnTemplateCreate(ctx context.Context, tpl Template) (*Template, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	now := r.Clock.Now()
	if tpl.ID == "" {
		tpl.ID = TemplateID(uuid.NewString())
	}
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	if err := r.Store.SaveTemplate(ctx, tpl); err != nil {
		return nil, storeErr("save template", err)
	}

	if tpl.Active {
		if err := r.regenerate(ctx, tpl, now); err != nil {
			return nil, err
		}
	}
	return &tpl, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// OnTemplateUpdate applies a field-level patch to the template, deletes its
// pending instances dated at/after effectiveDate, and regenerates the
// window from effectiveDate with the updated fields. Instances dated before
// effectiveDate keep the old snapshot.
//
// A zero effectiveDate defaults to now. Failure at any step surfaces to the
// caller; retrying the whole call is safe.
func (r *Reconciler) OnTemplateUpdate(ctx context.Context, id TemplateID, patch TemplatePatch, effectiveDate time.Time) (*Template, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if effectiveDate.IsZero() {
		effectiveDate = r.Clock.Now()
	}

	tpl, err := r.Store.GetTemplate(ctx, id)
	if err != nil {
		return nil, storeErr("get template", err)
	}
	if tpl == nil {
		return nil, ErrTemplateNotFound
	}

	if err := r.Store.UpdateTemplate(ctx, id, patch); err != nil {
		return nil, storeErr("update template", err)
	}

	if err := r.Store.DeletePendingFrom(ctx, id, effectiveDate); err != nil {
		return nil, storeErr("delete pending", err)
	}

	// Re-fetch: regeneration must see the persisted state, not the
	// in-memory patch result.
	updated, err := r.Store.GetTemplate(ctx, id)
	if err != nil {
		return nil, storeErr("refetch template", err)
	}
	if updated == nil {
		return nil, ErrTemplateNotFound
	}

	if updated.Active {
		if err := r.regenerate(ctx, *updated, effectiveDate); err != nil {
			return nil, err
		}
	}

	r.Log.Info().
		Str("template_id", string(id)).
		Time("effective_date", effectiveDate).
		Msg("template updated and regenerated")
	return updated, nil
}

// =============================================================================
// DELETE
// =============================================================================

// OnTemplateDelete retires a template at effectiveDate. Pending instances
// dated at/after effectiveDate are deleted. If effectiveDate is today or
// earlier (date-only comparison), the template is deactivated immediately;
// otherwise it keeps generating up through the boundary and EndDate is set,
// letting a user schedule a future cutoff while the current month's
// obligation still exists.
//
// A zero effectiveDate defaults to now.
func (r *Reconciler) OnTemplateDelete(ctx context.Context, id TemplateID, effectiveDate time.Time) error {
	if effectiveDate.IsZero() {
		effectiveDate = r.Clock.Now()
	}

	tpl, err := r.Store.GetTemplate(ctx, id)
	if err != nil {
		return storeErr("get template", err)
	}
	if tpl == nil {
		return ErrTemplateNotFound
	}

	if err := r.Store.DeletePendingFrom(ctx, id, effectiveDate); err != nil {
		return storeErr("delete pending", err)
	}

	var patch TemplatePatch
	today := DateOnly(r.Clock.Now())
	if !DateOnly(effectiveDate).After(today) {
		inactive := false
		patch.Active = &inactive
	} else {
		cutoff := effectiveDate
		patch.EndDate = &cutoff
	}

	if err := r.Store.UpdateTemplate(ctx, id, patch); err != nil {
		return storeErr("retire template", err)
	}

	r.Log.Info().
		Str("template_id", string(id)).
		Time("effective_date", effectiveDate).
		Bool("deactivated", patch.Active != nil).
		Msg("template retired")
	return nil
}

// =============================================================================
// PERIODIC REFRESH
// =============================================================================

// RefreshSummary reports one OnPeriodicRefresh pass.
type RefreshSummary struct {
	Templates int
	Generated int
	Failed    int
}

// OnPeriodicRefresh materializes the forward window for every active
// template. Errors for one template are logged and do not abort processing
// of the remaining templates.
func (r *Reconciler) OnPeriodicRefresh(ctx context.Context) (RefreshSummary, error) {
	templates, err := r.Store.ListActiveTemplates(ctx)
	if err != nil {
		return RefreshSummary{}, storeErr("list active templates", err)
	}

	summary := RefreshSummary{Templates: len(templates)}
	now := r.Clock.Now()

	for _, tpl := range templates {
		n, err := r.refreshOne(ctx, tpl, now)
		if err != nil {
			summary.Failed++
			r.Log.Error().Err(err).
				Str("template_id", string(tpl.ID)).
				Msg("refresh failed for template")
			continue
		}
		summary.Generated += n
	}

	return summary, nil
}

func (r *Reconciler) refreshOne(ctx context.Context, tpl Template, now time.Time) (int, error) {
	windowEnd := now.AddDate(r.horizon(), 0, 0)
	instances, err := r.Generator.Generate(ctx, tpl, now, windowEnd)
	if err != nil {
		return 0, err
	}
	if len(instances) == 0 {
		return 0, nil
	}
	if err := r.Store.InsertInstances(ctx, instances); err != nil {
		return 0, storeErr("insert instances", err)
	}
	return len(instances), nil
}

// regenerate runs the generator from windowStart over the horizon and
// persists the result in one batch.
func (r *Reconciler) regenerate(ctx context.Context, tpl Template, windowStart time.Time) error {
	windowEnd := windowStart.AddDate(r.horizon(), 0, 0)
	instances, err := r.Generator.Generate(ctx, tpl, windowStart, windowEnd)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return nil
	}
	if err := r.Store.InsertInstances(ctx, instances); err != nil {
		return storeErr("insert instances", err)
	}
	return nil
}
