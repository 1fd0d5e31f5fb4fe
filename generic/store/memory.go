// Package store provides EntryStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/planning-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	entries map[string][]generic.FatigueEntry
	ids     map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string][]generic.FatigueEntry),
		ids:     make(map[string]bool),
	}
}

// Append adds entries, all or none. Append-only.
func (m *Memory) Append(_ context.Context, entries ...generic.FatigueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ID != "" && (m.ids[e.ID] || seen[e.ID]) {
			return fmt.Errorf("duplicate entry id %q", e.ID)
		}
		seen[e.ID] = true
	}
	for _, e := range entries {
		m.insert(e)
	}
	return nil
}

// insert keeps entries ordered by timestamp, insertion order on ties.
func (m *Memory) insert(e generic.FatigueEntry) {
	entries := m.entries[e.PersonID]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].Timestamp.After(e.Timestamp)
	})

	entries = append(entries, generic.FatigueEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.entries[e.PersonID] = entries

	if e.ID != "" {
		m.ids[e.ID] = true
	}
}

func (m *Memory) Load(_ context.Context, personID string) ([]generic.FatigueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.FatigueEntry, len(m.entries[personID]))
	copy(result, m.entries[personID])
	return result, nil
}

// =============================================================================
// FAILING STORE - Simulates persistence failures
// =============================================================================

// Failing wraps a store and fails Appends once armed. An Append call that
// fails writes nothing.
type Failing struct {
	*Memory
	mu       sync.Mutex
	err      error
	failAt   int
	accepted int
}

func NewFailing() *Failing {
	return &Failing{Memory: NewMemory()}
}

// FailWith makes subsequent Appends return err (nil disarms).
func (f *Failing) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.failAt = 0
}

// FailOnEntry makes the Append call that would persist the nth entry
// (counted from 1 across calls) return err.
func (f *Failing) FailOnEntry(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.failAt = n
}

func (f *Failing) Append(ctx context.Context, entries ...generic.FatigueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil && (f.failAt == 0 || f.accepted+len(entries) >= f.failAt) {
		return f.err
	}
	if err := f.Memory.Append(ctx, entries...); err != nil {
		return err
	}
	f.accepted += len(entries)
	return nil
}
