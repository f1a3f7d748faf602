/*
store.go - Persistence contract consumed by the engine

PURPOSE:
  Defines the interface between the engine and the transactional store.
  The engine only ever needs field-equality and date-range filters, so the
  contract is expressed as concrete methods rather than a query language.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  TemplateStore:   Recurring template persistence (create/get/patch/list)
  InstanceStore:   Materialized instance persistence (batch insert,
                   scoped deletes, range listing)
  ExistenceOracle: The single de-duplication guard used during generation.
                   Cheap limit-1 existence check, not a fetch.
  Store:           Both halves together.

ORPHAN TOLERANCE:
  Deleting a template clears the template reference on its instances
  ("set null on delete"). The engine tolerates orphaned instances whose
  reference no longer resolves; they simply stop matching template filters.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - recurring/store/memory.go: In-memory for testing

SEE ALSO:
  - generator.go: Uses ExistenceOracle
  - reconciler.go: Uses the full Store
*/
package recurring

import (
	"context"
	"time"
)

// =============================================================================
// EXISTENCE ORACLE - Generation-time de-duplication guard
// =============================================================================

// ExistenceOracle answers whether a template already has a materialized
// instance inside a date range. The generator calls it once per candidate
// month with that month's bounds.
//
// Check-then-insert is inherently racy under concurrent generation for the
// same template; the Repairer is the standing convergence mechanism for the
// duplicates that can slip through.
type ExistenceOracle interface {
	HasInstanceInRange(ctx context.Context, templateID TemplateID, from, to time.Time) (bool, error)
}

// =============================================================================
// TEMPLATE STORE
// =============================================================================

type TemplateStore interface {
	// SaveTemplate inserts a new template.
	SaveTemplate(ctx context.Context, t Template) error

	// GetTemplate returns the template or nil when absent.
	GetTemplate(ctx context.Context, id TemplateID) (*Template, error)

	// UpdateTemplate applies a field-level patch and bumps UpdatedAt.
	// Returns ErrTemplateNotFound when the template is absent.
	UpdateTemplate(ctx context.Context, id TemplateID, patch TemplatePatch) error

	// ListActiveTemplates returns all templates with Active = true.
	ListActiveTemplates(ctx context.Context) ([]Template, error)

	// ListTemplatesByOwner returns all of an owner's templates.
	ListTemplatesByOwner(ctx context.Context, owner OwnerID) ([]Template, error)

	// DeleteTemplate hard-deletes a template, clearing the template
	// reference on its instances. The engine's soft retirement path goes
	// through UpdateTemplate; this exists for storage-level cleanup.
	DeleteTemplate(ctx context.Context, id TemplateID) error
}

// =============================================================================
// INSTANCE STORE
// =============================================================================

type InstanceStore interface {
	ExistenceOracle

	// InsertInstances persists a batch of generated instances.
	InsertInstances(ctx context.Context, instances []Instance) error

	// DeletePendingFrom deletes the template's pending instances with
	// Date >= from. Completed instances and instances dated before from
	// are untouched; this is the effective-date retroactivity guarantee.
	DeletePendingFrom(ctx context.Context, templateID TemplateID, from time.Time) error

	// ListInstancesByTemplate returns the template's instances ordered by
	// ascending date, then creation order.
	ListInstancesByTemplate(ctx context.Context, templateID TemplateID) ([]Instance, error)

	// ListInstancesByOwner returns an owner's instances in [from, to],
	// ordered by ascending date, then creation order.
	ListInstancesByOwner(ctx context.Context, owner OwnerID, from, to time.Time) ([]Instance, error)

	// DeleteInstance removes a single instance by id.
	DeleteInstance(ctx context.Context, id InstanceID) error

	// MarkInstanceCompleted transitions an instance to completed.
	// Irreversible from the engine's perspective.
	MarkInstanceCompleted(ctx context.Context, id InstanceID) error
}

// Store is the full persistence contract the reconciler operates on.
type Store interface {
	TemplateStore
	InstanceStore
}
