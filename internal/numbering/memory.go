package numbering

import (
	"context"
	"sync"
	"time"

	"github.com/odyssey-erp/recon/internal/shared"
)

// MemoryStore is a SeriesStore for deployments where this process is the
// only writer. Increments are serialised per series name.
type MemoryStore struct {
	locks  *shared.KeyedMutex
	mu     sync.RWMutex
	series map[string]*Series
	nextID int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: shared.NewKeyedMutex(), series: make(map[string]*Series)}
}

// Next implements SeriesStore.
func (m *MemoryStore) Next(ctx context.Context, name string) (Series, error) {
	unlock, err := m.locks.Lock(ctx, shared.SeriesLockKey(name))
	if err != nil {
		return Series{}, err
	}
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[name]
	if !ok {
		return Series{}, ErrSeriesNotFound
	}
	if !s.Active {
		return Series{}, ErrSeriesInactive
	}
	s.Counter++
	s.UpdatedAt = time.Now().UTC()
	return *s, nil
}

// Get implements SeriesStore.
func (m *MemoryStore) Get(_ context.Context, name string) (Series, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.series[name]
	if !ok {
		return Series{}, ErrSeriesNotFound
	}
	return *s, nil
}

// Create implements SeriesStore.
func (m *MemoryStore) Create(_ context.Context, in CreateSeriesInput) (Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.series[in.Name]; ok {
		return Series{}, ErrSeriesExists
	}
	m.nextID++
	s := &Series{ID: m.nextID, Name: in.Name, Prefix: in.Prefix, Padding: in.Padding, Active: true, UpdatedAt: time.Now().UTC()}
	m.series[in.Name] = s
	return *s, nil
}

// SetActive implements SeriesStore.
func (m *MemoryStore) SetActive(_ context.Context, name string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[name]
	if !ok {
		return ErrSeriesNotFound
	}
	s.Active = active
	s.UpdatedAt = time.Now().UTC()
	return nil
}
