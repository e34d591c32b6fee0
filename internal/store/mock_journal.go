// ABOUTME: In-memory Journal implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockJournal is an in-memory Journal implementation for testing.
type MockJournal struct {
	mu    sync.RWMutex
	calls map[string]*CallRecord
}

var _ Journal = (*MockJournal)(nil)

// NewMockJournal creates a new MockJournal.
func NewMockJournal() *MockJournal {
	return &MockJournal{calls: make(map[string]*CallRecord)}
}

// RecordCall stores a copy of rec.
func (m *MockJournal) RecordCall(_ context.Context, rec *CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	c := *rec
	m.calls[c.ID] = &c
	return nil
}

// GetCall retrieves a call by ID.
func (m *MockJournal) GetCall(_ context.Context, id string) (*CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

// ListCalls returns matching calls, newest first.
func (m *MockJournal) ListCalls(_ context.Context, f CallFilter) ([]*CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*CallRecord{}
	for _, c := range m.calls {
		if f.Since != nil && c.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Direction != nil && c.Direction != *f.Direction {
			continue
		}
		if f.Service != nil && c.Service != *f.Service {
			continue
		}
		if f.Outcome != nil && c.Outcome != *f.Outcome {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit := normalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByOutcome groups call counts by outcome.
func (m *MockJournal) CountByOutcome(_ context.Context, service string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, c := range m.calls {
		if service == "" || c.Service == service {
			counts[c.Outcome]++
		}
	}
	return counts, nil
}

// Close does nothing.
func (m *MockJournal) Close() error { return nil }
