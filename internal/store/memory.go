package store

import (
	"context"
	"sync"

	"github.com/go-authgate/qbgate/internal/models"
)

// MemoryStore keeps the token document in process memory.
// Intended for tests and single-instance development.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *models.TokenRecord
}

var _ TokenStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(_ context.Context) (*models.TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec == nil {
		return nil, ErrNotFound
	}
	cp := *m.rec
	return &cp, nil
}

func (m *MemoryStore) Set(_ context.Context, rec *models.TokenRecord, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if merge && m.rec != nil {
		m.rec = m.rec.Merge(rec)
		return nil
	}
	// Replacing still drops empty fields, matching the other backends.
	m.rec = (&models.TokenRecord{}).ApplyFields(rec.Fields())
	return nil
}

func (m *MemoryStore) Update(_ context.Context, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return ErrNotFound
	}
	m.rec = m.rec.ApplyFields(fields)
	return nil
}

func (m *MemoryStore) Health(context.Context) error { return nil }
