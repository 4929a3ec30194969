package state

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/go-authgate/qbgate/internal/models"
)

// MemoryStore keeps states in process memory. Replicas do not share it.
type MemoryStore struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	ttl    time.Duration
	states map[string]*models.OAuthState
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration, clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock:  clock,
		ttl:    ttl,
		states: make(map[string]*models.OAuthState),
	}
}

func (m *MemoryStore) Issue(_ context.Context) (string, error) {
	value, err := newStateValue()
	if err != nil {
		return "", err
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(now)
	m.states[value] = &models.OAuthState{
		State:     value,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	return value, nil
}

func (m *MemoryStore) Consume(_ context.Context, state string) error {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.states[state]
	switch {
	case !ok:
		return ErrStateNotFound
	case rec.Used:
		return ErrStateUsed
	case rec.IsExpired(now):
		rec.Used = true
		return ErrStateExpired
	}
	rec.Used = true
	return nil
}

// purgeLocked drops states well past expiry; used and expired entries are
// kept for one extra TTL so late callbacks still get a precise error.
func (m *MemoryStore) purgeLocked(now time.Time) {
	for k, s := range m.states {
		if now.After(s.ExpiresAt.Add(m.ttl)) {
			delete(m.states, k)
		}
	}
}
