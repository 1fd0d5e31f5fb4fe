/*
store.go - Persistence interface for fatigue ledger entries and holidays

PURPOSE:
  Defines the boundary between the fatigue ledger and its storage.
  The in-memory store backs tests and one-shot CLI runs; the SQLite store
  backs the server.

APPEND-ONLY CONTRACT:
  - Append(): writes one or more entries atomically
  - NO Update() or Delete() methods exist

  The ledger computes RunningScore before calling Append, so a failed
  Append leaves nothing behind: the entry never becomes visible.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - ledger.go: Ledger contract built on top of EntryStore
  - fatigue/ledger.go: Concrete ledger
*/
package generic

import (
	"context"
)

// =============================================================================
// ENTRY STORE - Interface for fatigue entry persistence (append-only)
// =============================================================================

// EntryStore handles persistence of fatigue ledger entries.
type EntryStore interface {
	// Append persists entries, all or none. Fails if an entry ID already
	// exists.
	Append(ctx context.Context, entries ...FatigueEntry) error

	// Load returns every entry of a person, oldest first.
	Load(ctx context.Context, personID string) ([]FatigueEntry, error)
}

// =============================================================================
// HOLIDAY STORE
// =============================================================================

// HolidayStore persists site holidays and serves them as a calendar.
type HolidayStore interface {
	// Calendar returns the stored holidays. Storage errors are returned,
	// never read as "no holiday".
	Calendar(ctx context.Context) (*HolidaySet, error)
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	ListHolidays(ctx context.Context) ([]Holiday, error)
}
