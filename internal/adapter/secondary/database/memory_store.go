package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/splitledger/payment-confirm/internal/core"
)

// MemoryStore is an in-memory pending-operation and outcome store for
// development mode (no DATABASE_URL) and tests. Copies go in and out so
// callers never share pointers with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	pending  map[string]*core.PendingOperation
	outcomes map[string]*core.ConfirmationOutcome
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:  make(map[string]*core.PendingOperation),
		outcomes: make(map[string]*core.ConfirmationOutcome),
	}
}

func (m *MemoryStore) Put(ctx context.Context, op *core.PendingOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *op
	m.pending[op.Reference] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, reference string) (*core.PendingOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	op, ok := m.pending[reference]
	if !ok {
		return nil, core.ErrNoPendingOperation
	}
	cp := *op
	return &cp, nil
}

func (m *MemoryStore) Clear(ctx context.Context, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pending, reference)
	return nil
}

func (m *MemoryStore) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*core.PendingOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []*core.PendingOperation
	for _, op := range m.pending {
		if op.CreatedAt.Before(olderThan) {
			cp := *op
			stale = append(stale, &cp)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (m *MemoryStore) Record(ctx context.Context, outcome *core.ConfirmationOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *outcome
	m.outcomes[outcome.Reference] = &cp
	return nil
}

func (m *MemoryStore) GetOutcome(ctx context.Context, reference string) (*core.ConfirmationOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	outcome, ok := m.outcomes[reference]
	if !ok {
		return nil, core.ErrNoOutcome
	}
	cp := *outcome
	return &cp, nil
}
