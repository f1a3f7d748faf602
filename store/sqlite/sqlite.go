/*
Package sqlite provides a SQLite-backed implementation of the storage contract.

PURPOSE:
  Implements recurring.Store using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  recurring_templates:   Template definitions
  transaction_instances: Materialized transactions, one row per month

FOREIGN KEY SEMANTICS:
  transaction_instances.template_id references recurring_templates(id) with
  ON DELETE SET NULL: hard-deleting a template orphans its instances rather
  than removing them. The engine tolerates orphans; they simply stop
  matching template-scoped queries.

UNIQUENESS:
  There is deliberately NO unique index on (template_id, month). The
  materialization-uniqueness invariant is eventual, enforced by the
  generation-time existence check plus the repair pass, because concurrent
  generation can transiently violate it.

INDEXES:
  - idx_instances_template_date: existence oracle and pending deletes (hot path)
  - idx_instances_owner_date:    owner-wide listings
  - idx_templates_active:        periodic refresh scan

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/recurring.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - recurring/store.go: Interface definitions
  - recurring/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ledgerkit/recurring-engine/recurring"
)

// Store implements recurring.Store using SQLite.
type Store struct {
	// Clock stamps updated_at on writes. Override for deterministic tests.
	Clock recurring.Clock

	db *sql.DB
	mu sync.RWMutex
}

var _ recurring.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{Clock: recurring.SystemClock{}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() time.Time {
	return s.Clock.Now().UTC()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recurring_templates (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		category TEXT NOT NULL,
		day_of_month INTEGER NOT NULL CHECK (day_of_month BETWEEN 1 AND 31),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		end_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_templates_owner
		ON recurring_templates(owner_id);
	CREATE INDEX IF NOT EXISTS idx_templates_active
		ON recurring_templates(active);

	CREATE TABLE IF NOT EXISTS transaction_instances (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		template_id TEXT REFERENCES recurring_templates(id) ON DELETE SET NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		category TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Existence oracle and effective-date deletes (hot path)
	CREATE INDEX IF NOT EXISTS idx_instances_template_date
		ON transaction_instances(template_id, date);
	CREATE INDEX IF NOT EXISTS idx_instances_owner_date
		ON transaction_instances(owner_id, date);
	CREATE INDEX IF NOT EXISTS idx_instances_status
		ON transaction_instances(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TEMPLATE STORE
// =============================================================================

// SaveTemplate inserts a new template.
func (s *Store) SaveTemplate(ctx context.Context, t recurring.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO recurring_templates
		(id, owner_id, description, amount, kind, category, day_of_month, active, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.OwnerID,
		t.Description,
		t.Amount.String(),
		t.Kind,
		t.Category,
		t.DayOfMonth,
		t.Active,
		nullTime(t.EndDate),
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// GetTemplate retrieves a template by ID. Returns nil when absent.
func (s *Store) GetTemplate(ctx context.Context, id recurring.TemplateID) (*recurring.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, description, amount, kind, category, day_of_month, active, end_date, created_at, updated_at
		FROM recurring_templates WHERE id = ?`, id)

	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTemplate applies a field-level patch and bumps updated_at.
func (s *Store) UpdateTemplate(ctx context.Context, id recurring.TemplateID, patch recurring.TemplatePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sets []string
	var args []any

	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Amount != nil {
		sets = append(sets, "amount = ?")
		args = append(args, patch.Amount.String())
	}
	if patch.Kind != nil {
		sets = append(sets, "kind = ?")
		args = append(args, *patch.Kind)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.DayOfMonth != nil {
		sets = append(sets, "day_of_month = ?")
		args = append(args, *patch.DayOfMonth)
	}
	if patch.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *patch.Active)
	}
	if patch.EndDate != nil {
		sets = append(sets, "end_date = ?")
		args = append(args, patch.EndDate.Format(time.RFC3339))
	}
	if patch.ClearEndDate {
		sets = append(sets, "end_date = NULL")
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().Format(time.RFC3339))
	args = append(args, id)

	query := "UPDATE recurring_templates SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recurring.ErrTemplateNotFound
	}
	return nil
}

// ListActiveTemplates returns all templates with active = true.
func (s *Store) ListActiveTemplates(ctx context.Context) ([]recurring.Template, error) {
	return s.queryTemplates(ctx, `
		SELECT id, owner_id, description, amount, kind, category, day_of_month, active, end_date, created_at, updated_at
		FROM recurring_templates WHERE active = TRUE ORDER BY id`)
}

// ListTemplatesByOwner returns all of an owner's templates.
func (s *Store) ListTemplatesByOwner(ctx context.Context, owner recurring.OwnerID) ([]recurring.Template, error) {
	return s.queryTemplates(ctx, `
		SELECT id, owner_id, description, amount, kind, category, day_of_month, active, end_date, created_at, updated_at
		FROM recurring_templates WHERE owner_id = ? ORDER BY id`, owner)
}

// DeleteTemplate hard-deletes a template; the FK clears instance references.
func (s *Store) DeleteTemplate(ctx context.Context, id recurring.TemplateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM recurring_templates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recurring.ErrTemplateNotFound
	}
	return nil
}

func (s *Store) queryTemplates(ctx context.Context, query string, args ...any) ([]recurring.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []recurring.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*recurring.Template, error) {
	var (
		t         recurring.Template
		amount    string
		endDate   sql.NullString
		createdAt string
		updatedAt string
	)

	err := row.Scan(&t.ID, &t.OwnerID, &t.Description, &amount, &t.Kind, &t.Category,
		&t.DayOfMonth, &t.Active, &endDate, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	// A row that fails to parse is reported, not silently zeroed: a
	// corrupted amount or date must surface as a scan error.
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("template %s: bad amount %q: %w", t.ID, amount, err)
	}
	if endDate.Valid {
		d, err := time.Parse(time.RFC3339, endDate.String)
		if err != nil {
			return nil, fmt.Errorf("template %s: bad end_date %q: %w", t.ID, endDate.String, err)
		}
		t.EndDate = &d
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("template %s: bad created_at %q: %w", t.ID, createdAt, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("template %s: bad updated_at %q: %w", t.ID, updatedAt, err)
	}
	return &t, nil
}

// =============================================================================
// INSTANCE STORE
// =============================================================================

// InsertInstances persists a batch of instances atomically.
func (s *Store) InsertInstances(ctx context.Context, instances []recurring.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO transaction_instances
		(id, owner_id, template_id, description, amount, kind, category, date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, inst := range instances {
		var templateID any
		if inst.TemplateID != nil {
			templateID = string(*inst.TemplateID)
		}
		_, err := sqlTx.ExecContext(ctx, query,
			inst.ID,
			inst.OwnerID,
			templateID,
			inst.Description,
			inst.Amount.String(),
			inst.Kind,
			inst.Category,
			inst.Date.Format(time.RFC3339),
			inst.Status,
			inst.CreatedAt.Format(time.RFC3339),
			inst.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert instance: %w", err)
		}
	}

	return sqlTx.Commit()
}

// HasInstanceInRange is the existence oracle: a limit-1 check, not a fetch.
func (s *Store) HasInstanceInRange(ctx context.Context, templateID recurring.TemplateID, from, to time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM transaction_instances
		WHERE template_id = ? AND date >= ? AND date <= ?
		LIMIT 1`,
		templateID, from.Format(time.RFC3339), to.Format(time.RFC3339),
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeletePendingFrom deletes pending instances with date >= from.
func (s *Store) DeletePendingFrom(ctx context.Context, templateID recurring.TemplateID, from time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM transaction_instances
		WHERE template_id = ? AND status = ? AND date >= ?`,
		templateID, recurring.StatusPending, from.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to delete pending instances: %w", err)
	}
	return nil
}

// ListInstancesByTemplate returns instances ordered by date, then creation.
func (s *Store) ListInstancesByTemplate(ctx context.Context, templateID recurring.TemplateID) ([]recurring.Instance, error) {
	return s.queryInstances(ctx, `
		SELECT id, owner_id, template_id, description, amount, kind, category, date, status, created_at, updated_at
		FROM transaction_instances
		WHERE template_id = ?
		ORDER BY date ASC, created_at ASC, id ASC`, templateID)
}

// ListInstancesByOwner returns an owner's instances in [from, to].
func (s *Store) ListInstancesByOwner(ctx context.Context, owner recurring.OwnerID, from, to time.Time) ([]recurring.Instance, error) {
	return s.queryInstances(ctx, `
		SELECT id, owner_id, template_id, description, amount, kind, category, date, status, created_at, updated_at
		FROM transaction_instances
		WHERE owner_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, created_at ASC, id ASC`,
		owner, from.Format(time.RFC3339), to.Format(time.RFC3339))
}

// DeleteInstance removes a single instance by id.
func (s *Store) DeleteInstance(ctx context.Context, id recurring.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM transaction_instances WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recurring.ErrInstanceNotFound
	}
	return nil
}

// MarkInstanceCompleted transitions an instance to completed.
func (s *Store) MarkInstanceCompleted(ctx context.Context, id recurring.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transaction_instances SET status = ?, updated_at = ? WHERE id = ?`,
		recurring.StatusCompleted, s.now().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to mark instance completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recurring.ErrInstanceNotFound
	}
	return nil
}

func (s *Store) queryInstances(ctx context.Context, query string, args ...any) ([]recurring.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []recurring.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func scanInstance(rows *sql.Rows) (recurring.Instance, error) {
	var (
		inst       recurring.Instance
		templateID sql.NullString
		amount     string
		date       string
		createdAt  string
		updatedAt  string
	)

	err := rows.Scan(&inst.ID, &inst.OwnerID, &templateID, &inst.Description, &amount,
		&inst.Kind, &inst.Category, &date, &inst.Status, &createdAt, &updatedAt)
	if err != nil {
		return inst, fmt.Errorf("failed to scan instance: %w", err)
	}

	if templateID.Valid {
		id := recurring.TemplateID(templateID.String)
		inst.TemplateID = &id
	}
	if inst.Amount, err = decimal.NewFromString(amount); err != nil {
		return inst, fmt.Errorf("instance %s: bad amount %q: %w", inst.ID, amount, err)
	}
	if inst.Date, err = time.Parse(time.RFC3339, date); err != nil {
		return inst, fmt.Errorf("instance %s: bad date %q: %w", inst.ID, date, err)
	}
	if inst.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return inst, fmt.Errorf("instance %s: bad created_at %q: %w", inst.ID, createdAt, err)
	}
	if inst.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return inst, fmt.Errorf("instance %s: bad updated_at %q: %w", inst.ID, updatedAt, err)
	}
	return inst, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"transaction_instances", "recurring_templates"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
