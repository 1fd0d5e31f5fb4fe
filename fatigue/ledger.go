/*
ledger.go - Per-person fatigue ledger with serialized appends

PURPOSE:
  Records duty and rest events for each person and keeps the running
  fatigue score. Point values come from the catalog in force at the time
  of the event; the store only ever sees finished entries.

SCORE:
  RunningScore = max(0, previous RunningScore + delta)
  Accruals add the catalog's points, recoveries subtract their value.
  The floor is applied at every step, so a rest taken at 0 does not bank
  negative points for later.

CONCURRENCY:
  - One mutex per person: appends for the same person are serialized,
    different people never contend.
  - The person map has its own short-lived lock.
  - An entry joins the in-memory timeline only after the store accepted it.

ORDERING:
  Events must be recorded in timestamp order per person. An event older
  than the latest entry is rejected with ErrOutOfOrderEvent because its
  running score would depend on entries recorded after it.

WINDOW (optional):
  WithWindow(n) makes CurrentScore replay only the events of the n days
  ending at asOf, starting from zero. Without it the score is the running
  score of the latest entry at or before asOf.

BATCHES:
  RecordEvents writes the events of one assignment with a single store
  call, so a failed append never leaves part of an assignment behind.

DISABLED:
  When the catalog has fatigue disabled, RecordEvent is a no-op returning
  a zero entry, CurrentScore is 0 and every level is OK.

SEE ALSO:
  - generic/ledger.go: Ledger contract
  - generic/store.go: EntryStore
  - catalog/types.go: FatigueConfig (points, recovery, thresholds)
*/
package fatigue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/generic"
)

// Level classifies a score against the catalog thresholds.
type Level string

const (
	LevelOK       Level = "OK"
	LevelAlert    Level = "ALERT"
	LevelCritical Level = "CRITICAL"
)

func (l Level) rank() int {
	switch l {
	case LevelCritical:
		return 2
	case LevelAlert:
		return 1
	default:
		return 0
	}
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger.With().Str("component", "fatigue").Logger() }
}

// WithWindow restricts CurrentScore to the events of the last days days.
// Zero keeps the whole history.
func WithWindow(days int) Option {
	return func(l *Ledger) {
		if days > 0 {
			l.window = days
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger implements generic.Ledger.
type Ledger struct {
	provider catalog.Provider
	store    generic.EntryStore
	logger   zerolog.Logger
	window   int
	now      func() time.Time

	mu     sync.Mutex
	people map[string]*personLedger
}

var _ generic.Ledger = (*Ledger)(nil)

type personLedger struct {
	mu      sync.Mutex
	loaded  bool
	entries []generic.FatigueEntry
}

func New(provider catalog.Provider, store generic.EntryStore, opts ...Option) *Ledger {
	l := &Ledger{
		provider: provider,
		store:    store,
		logger:   zerolog.Nop(),
		now:      time.Now,
		people:   make(map[string]*personLedger),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) config() catalog.FatigueConfig {
	return l.provider.Current().Fatigue
}

func (l *Ledger) person(personID string) *personLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.people[personID]
	if !ok {
		p = &personLedger{}
		l.people[personID] = p
	}
	return p
}

// load fills the timeline from the store on first use. Caller holds p.mu.
func (l *Ledger) load(ctx context.Context, personID string, p *personLedger) error {
	if p.loaded {
		return nil
	}
	entries, err := l.store.Load(ctx, personID)
	if err != nil {
		return fmt.Errorf("failed to load fatigue entries for %s: %w", personID, err)
	}
	p.entries = entries
	p.loaded = true
	return nil
}

// =============================================================================
// WRITE
// =============================================================================

// RecordEvent appends one event to the person's ledger.
func (l *Ledger) RecordEvent(ctx context.Context, personID string, kind generic.EventKind, at time.Time) (generic.FatigueEntry, error) {
	entries, err := l.RecordEvents(ctx, personID, []generic.EventKind{kind}, at)
	if err != nil || len(entries) == 0 {
		return generic.FatigueEntry{}, err
	}
	return entries[0], nil
}

// RecordEvents appends several events sharing one timestamp, in order.
// They are persisted in a single store call: either every entry is kept
// or none is.
func (l *Ledger) RecordEvents(ctx context.Context, personID string, kinds []generic.EventKind, at time.Time) ([]generic.FatigueEntry, error) {
	if personID == "" {
		return nil, generic.ErrPersonRequired
	}
	for _, kind := range kinds {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %q", generic.ErrUnknownEventKind, kind)
		}
	}

	cfg := l.config()
	if !cfg.Enabled {
		l.logger.Debug().Str("person_id", personID).Int("events", len(kinds)).Msg("fatigue disabled, events ignored")
		return nil, nil
	}
	deltas := make([]int, len(kinds))
	for i, kind := range kinds {
		delta, ok := cfg.Delta(kind)
		if !ok {
			return nil, fmt.Errorf("%w: %q has no value in the catalog", generic.ErrUnknownEventKind, kind)
		}
		deltas[i] = delta
	}
	if len(kinds) == 0 {
		return nil, nil
	}

	p := l.person(personID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := l.load(ctx, personID, p); err != nil {
		return nil, err
	}

	previous := 0
	if n := len(p.entries); n > 0 {
		last := p.entries[n-1]
		if at.Before(last.Timestamp) {
			return nil, fmt.Errorf("%w: %s is before %s", generic.ErrOutOfOrderEvent,
				at.UTC().Format(time.RFC3339), last.Timestamp.UTC().Format(time.RFC3339))
		}
		previous = last.RunningScore
	}

	createdAt := l.now().UTC()
	entries := make([]generic.FatigueEntry, len(kinds))
	running := previous
	for i, kind := range kinds {
		running = clamp(running + deltas[i])
		entries[i] = generic.FatigueEntry{
			ID:           uuid.NewString(),
			PersonID:     personID,
			Timestamp:    at.UTC(),
			Kind:         kind,
			PointDelta:   deltas[i],
			RunningScore: running,
			CreatedAt:    createdAt,
		}
	}
	if err := l.store.Append(ctx, entries...); err != nil {
		return nil, fmt.Errorf("failed to append fatigue entries: %w", err)
	}
	p.entries = append(p.entries, entries...)

	before, after := classify(cfg, previous), classify(cfg, running)
	for _, e := range entries {
		l.logger.Debug().
			Str("person_id", personID).
			Str("kind", string(e.Kind)).
			Int("delta", e.PointDelta).
			Int("score", e.RunningScore).
			Msg("fatigue event recorded")
	}
	if after.rank() > before.rank() {
		l.logger.Warn().
			Str("person_id", personID).
			Int("score", running).
			Str("level", string(after)).
			Msg("fatigue level raised")
	}

	out := make([]generic.FatigueEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// =============================================================================
// READ
// =============================================================================

// CurrentScore returns the person's score as of a moment.
func (l *Ledger) CurrentScore(ctx context.Context, personID string, asOf time.Time) (int, error) {
	if !l.config().Enabled {
		return 0, nil
	}
	entries, err := l.Entries(ctx, personID)
	if err != nil {
		return 0, err
	}
	return l.scoreAt(entries, asOf), nil
}

func (l *Ledger) scoreAt(entries []generic.FatigueEntry, asOf time.Time) int {
	if l.window == 0 {
		score := 0
		for _, e := range entries {
			if e.Timestamp.After(asOf) {
				break
			}
			score = e.RunningScore
		}
		return score
	}

	from := asOf.Add(-time.Duration(l.window) * 24 * time.Hour)
	score := 0
	for _, e := range entries {
		if e.Timestamp.After(asOf) {
			break
		}
		if e.Timestamp.After(from) {
			score = clamp(score + e.PointDelta)
		}
	}
	return score
}

// Entries returns the person's timeline, oldest first.
func (l *Ledger) Entries(ctx context.Context, personID string) ([]generic.FatigueEntry, error) {
	if personID == "" {
		return nil, generic.ErrPersonRequired
	}
	p := l.person(personID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := l.load(ctx, personID, p); err != nil {
		return nil, err
	}
	out := make([]generic.FatigueEntry, len(p.entries))
	copy(out, p.entries)
	return out, nil
}

// Classify maps a score to a level using the catalog in force.
func (l *Ledger) Classify(score int) Level {
	return classify(l.config(), score)
}

// Project returns the score and level the person would reach if the given
// accrual kinds were recorded at asOf. Nothing is written.
func (l *Ledger) Project(ctx context.Context, personID string, asOf time.Time, kinds []generic.EventKind) (int, Level, error) {
	cfg := l.config()
	if !cfg.Enabled {
		return 0, LevelOK, nil
	}
	score, err := l.CurrentScore(ctx, personID, asOf)
	if err != nil {
		return 0, LevelOK, err
	}
	for _, k := range kinds {
		delta, ok := cfg.Delta(k)
		if !ok {
			return 0, LevelOK, fmt.Errorf("%w: %q", generic.ErrUnknownEventKind, k)
		}
		score = clamp(score + delta)
	}
	return score, classify(cfg, score), nil
}

func classify(cfg catalog.FatigueConfig, score int) Level {
	switch {
	case !cfg.Enabled:
		return LevelOK
	case score >= cfg.Thresholds.Critical:
		return LevelCritical
	case score >= cfg.Thresholds.Alert:
		return LevelAlert
	default:
		return LevelOK
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	return score
}
