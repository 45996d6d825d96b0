package item

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/kailas-cloud/lostmatch/internal/domain"
	domitem "github.com/kailas-cloud/lostmatch/internal/domain/item"
)

// MemoryRepo is a process-local item store for tests and ephemeral runs.
type MemoryRepo struct {
	mu      sync.RWMutex
	records map[domitem.Key]domitem.Record
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepo {
	return &MemoryRepo{records: make(map[domitem.Key]domitem.Record)}
}

// Put validates and stores a record.
func (m *MemoryRepo) Put(_ context.Context, rec domitem.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.records[rec.Key()] = rec
	m.mu.Unlock()
	return nil
}

// PutMany stores all records or none.
func (m *MemoryRepo) PutMany(_ context.Context, recs []domitem.Record) error {
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	m.mu.Lock()
	for _, rec := range recs {
		m.records[rec.Key()] = rec
	}
	m.mu.Unlock()
	return nil
}

// Get returns one record or domain.ErrItemNotFound.
func (m *MemoryRepo) Get(_ context.Context, key domitem.Key) (domitem.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return domitem.Record{}, domain.ErrItemNotFound
	}
	return rec, nil
}

// ListAll returns a copy of every record, taken under one read lock.
func (m *MemoryRepo) ListAll(_ context.Context) ([]domitem.Record, error) {
	m.mu.RLock()
	out := slices.Collect(maps.Values(m.records))
	m.mu.RUnlock()
	sortRecords(out)
	return out, nil
}
