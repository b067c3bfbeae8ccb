package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Memory is a goroutine-safe in-process store. Listings are ordered by id.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]*models.Entity
}

// NewMemory creates a store holding copies of the given entities
func NewMemory(entities ...*models.Entity) *Memory {
	m := &Memory{entities: make(map[string]*models.Entity, len(entities))}
	m.Put(entities...)
	return m
}

// Put inserts or replaces entities
func (m *Memory) Put(entities ...*models.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entities {
		m.entities[e.ID] = e.Clone()
	}
}

// Len returns the number of stored entities
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

func (m *Memory) Search(_ context.Context, entityType models.EntityType, limit int) ([]models.EntitySummary, error) {
	return m.list(limit, func(e *models.Entity) bool { return e.Type == entityType }), nil
}

func (m *Memory) GetAllEntities(_ context.Context, limit int) ([]models.EntitySummary, error) {
	return m.list(limit, func(*models.Entity) bool { return true }), nil
}

func (m *Memory) Get(_ context.Context, id string) (*models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

func (m *Memory) Update(_ context.Context, id string, update models.EntityUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrEntityNotFound, id)
	}
	update.Apply(e)
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; !ok {
		return fmt.Errorf("%w: %s", models.ErrEntityNotFound, id)
	}
	delete(m.entities, id)
	return nil
}

func (m *Memory) list(limit int, keep func(*models.Entity) bool) []models.EntitySummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.entities))
	for id, e := range m.entities {
		if keep(e) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]models.EntitySummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.entities[id].Summary())
	}
	return out
}
