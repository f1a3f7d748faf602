/*
repair.go - Duplicate instance convergence pass

PURPOSE:
  Concurrent generation can transiently leave more than one instance for
  the same (template, calendar-month) pair. Repair scans persisted
  instances, keeps one canonical survivor per group, and deletes the rest.
  Running it twice produces the same surviving set.

SURVIVOR RULE:
  A completed instance outranks pending ones; ties fall back to the
  earliest-created (first in ascending date/creation order as persisted).
  When statuses are uniform this reduces to plain earliest-created.

SEE ALSO:
  - reconciler.go: Why duplicates can exist at all
*/
package recurring

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RepairScope selects which instances a repair pass covers: one template,
// or all templates owned by a user. Exactly one field must be set.
type RepairScope struct {
	TemplateID TemplateID
	OwnerID    OwnerID
}

func (s RepairScope) validate() error {
	if (s.TemplateID == "") == (s.OwnerID == "") {
		return &ValidationError{Field: "scope", Message: "exactly one of template_id or owner_id is required"}
	}
	return nil
}

// RepairReport summarizes one repair pass.
type RepairReport struct {
	Groups  int // (template, month) groups inspected
	Removed int // duplicate instances deleted
	Failed  int // groups whose deletes errored
}

// Repairer removes duplicate materialized instances.
type Repairer struct {
	Store Store
	Log   zerolog.Logger
}

// NewRepairer creates a repairer over the given store.
func NewRepairer(store Store, log zerolog.Logger) *Repairer {
	return &Repairer{
		Store: store,
		Log:   log.With().Str("component", "repair").Logger(),
	}
}

// Repair scans the scope for (template, month) groups holding more than one
// instance and deletes the extras. Errors on one group are logged and do
// not abort the remaining groups.
func (r *Repairer) Repair(ctx context.Context, scope RepairScope) (RepairReport, error) {
	if err := scope.validate(); err != nil {
		return RepairReport{}, err
	}

	instances, err := r.collect(ctx, scope)
	if err != nil {
		return RepairReport{}, err
	}

	groups := groupByTemplateMonth(instances)
	report := RepairReport{Groups: len(groups)}

	for key, group := range groups {
		if len(group) < 2 {
			continue
		}
		survivor := pickSurvivor(group)
		failed := false
		for _, inst := range group {
			if inst.ID == survivor.ID {
				continue
			}
			if err := r.Store.DeleteInstance(ctx, inst.ID); err != nil {
				failed = true
				r.Log.Error().Err(err).
					Str("instance_id", string(inst.ID)).
					Str("group", key.String()).
					Msg("failed to delete duplicate")
				continue
			}
			report.Removed++
		}
		if failed {
			report.Failed++
		}
	}

	return report, nil
}

func (r *Repairer) collect(ctx context.Context, scope RepairScope) ([]Instance, error) {
	if scope.TemplateID != "" {
		instances, err := r.Store.ListInstancesByTemplate(ctx, scope.TemplateID)
		if err != nil {
			return nil, storeErr("list instances by template", err)
		}
		return instances, nil
	}

	// Owner scope: all instances over all time. Manual entries and orphans
	// carry no template reference and cannot form a group.
	instances, err := r.Store.ListInstancesByOwner(ctx, scope.OwnerID, time.Time{}, farFuture())
	if err != nil {
		return nil, storeErr("list instances by owner", err)
	}
	return instances, nil
}

// =============================================================================
// GROUPING
// =============================================================================

type monthKey struct {
	Template TemplateID
	Year     int
	Month    time.Month
}

func (k monthKey) String() string {
	return string(k.Template) + "/" + time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func groupByTemplateMonth(instances []Instance) map[monthKey][]Instance {
	groups := make(map[monthKey][]Instance)
	for _, inst := range instances {
		if inst.TemplateID == nil {
			continue
		}
		key := monthKey{Template: *inst.TemplateID, Year: inst.Date.Year(), Month: inst.Date.Month()}
		groups[key] = append(groups[key], inst)
	}
	return groups
}

// pickSurvivor chooses the canonical instance for a duplicated group.
// Instances arrive in persisted order (date asc, creation asc), so the
// first of the preferred status wins.
func pickSurvivor(group []Instance) Instance {
	for _, inst := range group {
		if inst.Status == StatusCompleted {
			return inst
		}
	}
	return group[0]
}

func farFuture() time.Time {
	return time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
}
