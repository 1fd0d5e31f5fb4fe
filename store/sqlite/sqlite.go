/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists fatigue ledger entries and site holidays for the server. Tests
  and one-shot CLI runs use generic/store.Memory instead.

INTERFACES IMPLEMENTED:
  generic.EntryStore:   Fatigue ledger entries
  generic.HolidayStore: Site holidays, served as a HolidaySet

APPEND-ONLY ENFORCEMENT:
  The fatigue_entries table is append-only:
  - No UPDATE statements on fatigue_entries
  - No DELETE statements on fatigue_entries
  - A recovery is a new entry with a negative delta

KEY TABLES:
  fatigue_entries: Immutable ledger of score changes, one row per event
  holidays:        One-off, yearly and RRULE holidays

ORDERING:
  Timestamps are stored as fixed-width UTC text so that string order is
  time order. Ties keep insertion order through the seq column.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/planning.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := fatigue.New(holder, store)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/planning-engine/generic"
)

// timeLayout is fixed width so text comparison matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements EntryStore and HolidayStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// calendar caches the holidays table; nil until first lookup and
	// after every holiday write.
	calendar *generic.HolidaySet
}

var (
	_ generic.EntryStore   = (*Store)(nil)
	_ generic.HolidayStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Fatigue entries (append-only ledger)
	CREATE TABLE IF NOT EXISTS fatigue_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		person_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		event_kind TEXT NOT NULL,
		point_delta INTEGER NOT NULL,
		running_score INTEGER NOT NULL CHECK (running_score >= 0),
		created_at TEXT NOT NULL
	);

	-- Replay of one person (hot path)
	CREATE INDEX IF NOT EXISTS idx_fatigue_entries_person_time
		ON fatigue_entries(person_id, timestamp, seq);

	-- Holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE,
		rrule TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date
		ON holidays(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (generic.EntryStore interface)
// =============================================================================

// Append adds entries to the ledger in one transaction.
func (s *Store) Append(ctx context.Context, entries ...generic.FatigueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry id is required")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO fatigue_entries
		(id, person_id, timestamp, event_kind, point_delta, running_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, e := range entries {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := tx.ExecContext(ctx, query,
			e.ID,
			e.PersonID,
			formatTime(e.Timestamp),
			string(e.Kind),
			e.PointDelta,
			e.RunningScore,
			formatTime(createdAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("duplicate entry id %q", e.ID)
			}
			return fmt.Errorf("failed to append entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entries: %w", err)
	}
	return nil
}

// Load returns every entry of a person, oldest first.
func (s *Store) Load(ctx context.Context, personID string) ([]generic.FatigueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, person_id, timestamp, event_kind, point_delta, running_score, created_at
		FROM fatigue_entries
		WHERE person_id = ?
		ORDER BY timestamp ASC, seq ASC
	`
	return s.queryEntries(ctx, query, personID)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]generic.FatigueEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []generic.FatigueEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (generic.FatigueEntry, error) {
	var (
		e         generic.FatigueEntry
		timestamp string
		kind      string
		createdAt string
	)
	err := rows.Scan(&e.ID, &e.PersonID, &timestamp, &kind, &e.PointDelta, &e.RunningScore, &createdAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.Kind = generic.EventKind(kind)
	if e.Timestamp, err = time.Parse(timeLayout, timestamp); err != nil {
		return e, fmt.Errorf("entry %s: bad timestamp %q: %w", e.ID, timestamp, err)
	}
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return e, fmt.Errorf("entry %s: bad created_at %q: %w", e.ID, createdAt, err)
	}
	return e, nil
}

// =============================================================================
// HOLIDAY STORE (generic.HolidayStore interface)
// =============================================================================

// SaveHoliday inserts or replaces a holiday. An empty ID gets a new UUID.
// RRULEs are parsed before anything is written.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	if _, err := generic.NewHolidaySet(h); err != nil {
		return fmt.Errorf("%w: %v", generic.ErrInvalidHoliday, err)
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, date, name, recurring, rrule, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			name = excluded.name,
			recurring = excluded.recurring,
			rrule = excluded.rrule
	`
	_, err := s.db.ExecContext(ctx, query,
		h.ID,
		h.Date.String(),
		h.Name,
		h.Recurring,
		h.RRule,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	s.calendar = nil
	return nil
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("holiday %q: %w", id, generic.ErrNotFound)
	}
	s.calendar = nil
	return nil
}

// ListHolidays returns all holidays ordered by date.
func (s *Store) ListHolidays(ctx context.Context) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listHolidays(ctx)
}

func (s *Store) listHolidays(ctx context.Context) ([]generic.Holiday, error) {
	query := `
		SELECT id, date, name, recurring, rrule
		FROM holidays
		ORDER BY date ASC, name ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	holidays := []generic.Holiday{}
	for rows.Next() {
		var h generic.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &dateStr, &h.Name, &h.Recurring, &h.RRule); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		if h.Date, err = generic.ParseDate(dateStr); err != nil {
			return nil, fmt.Errorf("holiday %s: %w", h.ID, err)
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// Calendar returns the stored holidays as an in-memory calendar, rebuilt
// after each write.
func (s *Store) Calendar(ctx context.Context) (*generic.HolidaySet, error) {
	s.mu.RLock()
	cal := s.calendar
	s.mu.RUnlock()
	if cal != nil {
		return cal, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calendar != nil {
		return s.calendar, nil
	}
	holidays, err := s.listHolidays(ctx)
	if err != nil {
		return nil, err
	}
	cal, err = generic.NewHolidaySet(holidays...)
	if err != nil {
		return nil, err
	}
	s.calendar = cal
	return cal, nil
}

// =============================================================================
// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
