/*
Package recurring provides the recurring transaction materialization engine.

PURPOSE:
  This package contains the types and algorithms for turning recurring
  transaction templates ("rent, $1200, expense, day 5 of every month") into
  concrete, dated transaction instances. It handles month-window expansion,
  day-of-month clamping, existing-instance detection, effective-date-scoped
  regeneration, and duplicate repair.

KEY CONCEPTS IN THIS FILE (types.go):
  - Template: A recurring transaction definition (amount, kind, day-of-month)
  - Instance: One concrete, dated transaction materialized from a template
  - TemplatePatch: A field-level update applied to a template
  - Template/Instance/Owner IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Snapshot semantics: Instances copy template fields at generation time.
     A later template edit never rewrites already-materialized history
     unless it is explicitly regenerated from an effective date.
  2. Precision: Uses decimal.Decimal for amounts to avoid floating-point errors.
  3. Determinism: Everything needing "now" takes an injected Clock.

USAGE:
  tpl := recurring.Template{
      Description: "Rent",
      Amount:      decimal.NewFromInt(1200),
      Kind:        recurring.KindExpense,
      DayOfMonth:  5,
      Active:      true,
  }

SEE ALSO:
  - calendar.go: Anchored dates and month stepping
  - generator.go: Window expansion into missing instances
  - reconciler.go: Update/delete/refresh orchestration
*/
package recurring

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TemplateID string
type InstanceID string
type OwnerID string

// =============================================================================
// TEMPLATE - Recurring transaction definition
// =============================================================================

// Kind is the direction of a transaction.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

func (k Kind) Valid() bool { return k == KindIncome || k == KindExpense }

// Template defines a transaction that repeats once per calendar month.
// DayOfMonth is a nominal request: "31" in February resolves to the last
// valid day at materialization time, it is never stored pre-resolved.
type Template struct {
	ID          TemplateID
	OwnerID     OwnerID
	Description string
	Amount      decimal.Decimal
	Kind        Kind
	Category    string
	DayOfMonth  int

	// Active controls whether the template still generates at all.
	// EndDate, when set, is the inclusive upper bound on materialization;
	// absent means unbounded.
	Active  bool
	EndDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks template fields before any store call.
func (t Template) Validate() error {
	if t.DayOfMonth < 1 || t.DayOfMonth > MaxDayOfMonth {
		return &ValidationError{Field: "day_of_month", Message: "must be between 1 and 31"}
	}
	if !t.Kind.Valid() {
		return &ValidationError{Field: "kind", Message: "must be income or expense"}
	}
	if t.Description == "" {
		return &ValidationError{Field: "description", Message: "must not be empty"}
	}
	return nil
}

// =============================================================================
// TEMPLATE PATCH - Field-level update
// =============================================================================

// TemplatePatch carries the changed fields of a template update.
// Nil pointers mean "leave unchanged". ClearEndDate removes an existing
// end date (EndDate and ClearEndDate are mutually exclusive).
type TemplatePatch struct {
	Description  *string
	Amount       *decimal.Decimal
	Kind         *Kind
	Category     *string
	DayOfMonth   *int
	Active       *bool
	EndDate      *time.Time
	ClearEndDate bool
}

// IsEmpty reports whether the patch changes nothing.
func (p TemplatePatch) IsEmpty() bool {
	return p.Description == nil && p.Amount == nil && p.Kind == nil &&
		p.Category == nil && p.DayOfMonth == nil && p.Active == nil &&
		p.EndDate == nil && !p.ClearEndDate
}

// Validate checks patch fields before any store call.
func (p TemplatePatch) Validate() error {
	if p.DayOfMonth != nil && (*p.DayOfMonth < 1 || *p.DayOfMonth > MaxDayOfMonth) {
		return &ValidationError{Field: "day_of_month", Message: "must be between 1 and 31"}
	}
	if p.Kind != nil && !p.Kind.Valid() {
		return &ValidationError{Field: "kind", Message: "must be income or expense"}
	}
	if p.Description != nil && *p.Description == "" {
		return &ValidationError{Field: "description", Message: "must not be empty"}
	}
	if p.EndDate != nil && p.ClearEndDate {
		return &ValidationError{Field: "end_date", Message: "cannot set and clear in the same patch"}
	}
	return nil
}

// Apply returns a copy of t with the patch applied.
func (p TemplatePatch) Apply(t Template) Template {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.DayOfMonth != nil {
		t.DayOfMonth = *p.DayOfMonth
	}
	if p.Active != nil {
		t.Active = *p.Active
	}
	if p.EndDate != nil {
		d := *p.EndDate
		t.EndDate = &d
	}
	if p.ClearEndDate {
		t.EndDate = nil
	}
	return t
}

// =============================================================================
// INSTANCE - Materialized transaction for one month
// =============================================================================

// InstanceStatus is the lifecycle state of a materialized instance.
type InstanceStatus string

const (
	// StatusPending is the state the generator creates instances in.
	StatusPending InstanceStatus = "pending"
	// StatusCompleted is set by collaborators when the transaction settles.
	// Completed instances are never deleted or regenerated by this engine.
	StatusCompleted InstanceStatus = "completed"
)

// Instance is one concrete, dated transaction record materialized from a
// template for a specific month. Descriptive fields are copied from the
// template at generation time, not live-linked.
type Instance struct {
	ID      InstanceID
	OwnerID OwnerID

	// TemplateID is the back-reference to the originating template.
	// Nil for manually entered transactions and for instances whose
	// template was hard-deleted at the storage layer (orphans).
	TemplateID *TemplateID

	Description string
	Amount      decimal.Decimal
	Kind        Kind
	Category    string

	// Date is anchored at noon to keep the calendar day stable across
	// timezone-boundary serialization round trips.
	Date   time.Time
	Status InstanceStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FromTemplate reports whether the instance still resolves to template id.
func (i Instance) FromTemplate(id TemplateID) bool {
	return i.TemplateID != nil && *i.TemplateID == id
}
