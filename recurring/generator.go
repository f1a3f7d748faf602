/*
generator.go - Window expansion into missing monthly instances

PURPOSE:
  Expands one template over a bounded window into the instances that do not
  exist yet, one per covered calendar month. The generator never mutates
  store state: it returns instances for the Reconciler to persist, which
  keeps the write batched and the generator testable in isolation.

ALGORITHM:
  Starting at the window start's month, step month by month while the
  anchored nominal date stays inside the window:
    1. Resolve the template's day-of-month in the current month
       (clamp-down applied).
    2. Skip the month if an instance already exists per the oracle.
    3. Otherwise emit a pending instance with the template's fields
       copied verbatim.

EDGE CASES:
  - template.EndDate caps the window when it precedes the window end.
  - Both end bounds are inclusive at day granularity: an instance dated
    on the end date itself is emitted regardless of the bound's
    time-of-day.
  - An inverted window (start after end) yields an empty result, not
    an error.
  - An inactive template yields an empty result.

SEE ALSO:
  - calendar.go: AnchoredDate, MonthBounds, StepMonth
  - reconciler.go: Persists what Generate returns
*/
package recurring

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Generator expands templates into missing monthly instances.
type Generator struct {
	Oracle ExistenceOracle
	Clock  Clock

	// NewID overrides instance id generation (for deterministic tests).
	NewID func() InstanceID
}

// NewGenerator creates a generator backed by the given oracle.
func NewGenerator(oracle ExistenceOracle, clock Clock) *Generator {
	return &Generator{Oracle: oracle, Clock: clock}
}

// Generate returns the missing instances for tpl over [windowStart,
// windowEnd], ordered by ascending date. The window is bounded (the default
// long-range horizon is two years, about 24 iterations), so the result is a
// finite slice rather than a resumable stream.
func (g *Generator) Generate(ctx context.Context, tpl Template, windowStart, windowEnd time.Time) ([]Instance, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	if !tpl.Active {
		return nil, nil
	}

	end := windowEnd
	if tpl.EndDate != nil && tpl.EndDate.Before(end) {
		end = *tpl.EndDate
	}

	// The end bound is inclusive at day granularity. Instances anchor at
	// noon while callers pass end dates at arbitrary times of day, so the
	// comparison must ignore time-of-day or an instance falling exactly on
	// the end date would be dropped.
	lastDay := DateOnly(end)
	if DateOnly(windowStart).After(lastDay) {
		return nil, nil
	}

	now := g.Clock.Now()
	var out []Instance

	current := AnchoredDate(windowStart.Year(), windowStart.Month(), tpl.DayOfMonth)
	for !DateOnly(current).After(lastDay) {
		monthStart, monthEnd := MonthBounds(current)

		exists, err := g.Oracle.HasInstanceInRange(ctx, tpl.ID, monthStart, monthEnd)
		if err != nil {
			return nil, storeErr("exists check", err)
		}
		if !exists {
			out = append(out, g.materialize(tpl, current, now))
		}

		current = StepMonth(current, tpl.DayOfMonth)
	}

	return out, nil
}

// materialize copies the template's descriptive fields into a fresh pending
// instance dated at the anchored date. A value copy, not a live join: later
// template edits must not rewrite this record.
func (g *Generator) materialize(tpl Template, date, now time.Time) Instance {
	id := tpl.ID
	return Instance{
		ID:          g.newID(),
		OwnerID:     tpl.OwnerID,
		TemplateID:  &id,
		Description: tpl.Description,
		Amount:      tpl.Amount,
		Kind:        tpl.Kind,
		Category:    tpl.Category,
		Date:        date,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (g *Generator) newID() InstanceID {
	if g.NewID != nil {
		return g.NewID()
	}
	return InstanceID(uuid.NewString())
}
