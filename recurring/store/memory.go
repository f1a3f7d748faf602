// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledgerkit/recurring-engine/recurring"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	// Clock stamps updated_at on writes. Override for deterministic tests.
	Clock recurring.Clock

	mu        sync.RWMutex
	templates map[recurring.TemplateID]recurring.Template
	instances []recurring.Instance
}

func NewMemory() *Memory {
	return &Memory{
		Clock:     recurring.SystemClock{},
		templates: make(map[recurring.TemplateID]recurring.Template),
	}
}

func (m *Memory) now() time.Time {
	return m.Clock.Now().UTC()
}

var _ recurring.Store = (*Memory)(nil)

// =============================================================================
// TEMPLATE STORE
// =============================================================================

func (m *Memory) SaveTemplate(_ context.Context, t recurring.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, id recurring.TemplateID) (*recurring.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[id]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}

func (m *Memory) UpdateTemplate(_ context.Context, id recurring.TemplateID, patch recurring.TemplatePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[id]
	if !ok {
		return recurring.ErrTemplateNotFound
	}
	t = patch.Apply(t)
	t.UpdatedAt = m.now()
	m.templates[id] = t
	return nil
}

func (m *Memory) ListActiveTemplates(_ context.Context) ([]recurring.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []recurring.Template
	for _, t := range m.templates {
		if t.Active {
			out = append(out, t)
		}
	}
	sortTemplates(out)
	return out, nil
}

func (m *Memory) ListTemplatesByOwner(_ context.Context, owner recurring.OwnerID) ([]recurring.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []recurring.Template
	for _, t := range m.templates {
		if t.OwnerID == owner {
			out = append(out, t)
		}
	}
	sortTemplates(out)
	return out, nil
}

func (m *Memory) DeleteTemplate(_ context.Context, id recurring.TemplateID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[id]; !ok {
		return recurring.ErrTemplateNotFound
	}
	delete(m.templates, id)

	// Set-null-on-delete semantics: instances survive as orphans.
	for i := range m.instances {
		if m.instances[i].FromTemplate(id) {
			m.instances[i].TemplateID = nil
		}
	}
	return nil
}

// =============================================================================
// INSTANCE STORE
// =============================================================================

func (m *Memory) InsertInstances(_ context.Context, instances []recurring.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range instances {
		m.insertLocked(inst)
	}
	return nil
}

func (m *Memory) insertLocked(inst recurring.Instance) {
	// Binary search for insertion point keeps the slice ordered by date,
	// creation order preserved for equal dates.
	i := sort.Search(len(m.instances), func(i int) bool {
		return m.instances[i].Date.After(inst.Date)
	})
	m.instances = append(m.instances, recurring.Instance{})
	copy(m.instances[i+1:], m.instances[i:])
	m.instances[i] = inst
}

func (m *Memory) HasInstanceInRange(_ context.Context, templateID recurring.TemplateID, from, to time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, inst := range m.instances {
		if inst.FromTemplate(templateID) && inRange(inst.Date, from, to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) DeletePendingFrom(_ context.Context, templateID recurring.TemplateID, from time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.instances[:0]
	for _, inst := range m.instances {
		drop := inst.FromTemplate(templateID) &&
			inst.Status == recurring.StatusPending &&
			!inst.Date.Before(from)
		if !drop {
			kept = append(kept, inst)
		}
	}
	m.instances = kept
	return nil
}

func (m *Memory) ListInstancesByTemplate(_ context.Context, templateID recurring.TemplateID) ([]recurring.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []recurring.Instance
	for _, inst := range m.instances {
		if inst.FromTemplate(templateID) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *Memory) ListInstancesByOwner(_ context.Context, owner recurring.OwnerID, from, to time.Time) ([]recurring.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []recurring.Instance
	for _, inst := range m.instances {
		if inst.OwnerID == owner && inRange(inst.Date, from, to) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *Memory) DeleteInstance(_ context.Context, id recurring.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, inst := range m.instances {
		if inst.ID == id {
			m.instances = append(m.instances[:i], m.instances[i+1:]...)
			return nil
		}
	}
	return recurring.ErrInstanceNotFound
}

func (m *Memory) MarkInstanceCompleted(_ context.Context, id recurring.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.instances {
		if m.instances[i].ID == id {
			m.instances[i].Status = recurring.StatusCompleted
			m.instances[i].UpdatedAt = m.now()
			return nil
		}
	}
	return recurring.ErrInstanceNotFound
}

// =============================================================================
// HELPERS
// =============================================================================

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func sortTemplates(ts []recurring.Template) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}
