/*
ledger.go - Fatigue ledger contract

PURPOSE:
  The ledger is the source of truth for a person's fatigue. Every duty
  and every rest is an entry; the score is the running total, clamped at
  zero, carried on each entry.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. DERIVED SCORE: RunningScore = max(0, previous + delta), computed at
     append time and never edited.
  3. ALL-OR-NOTHING: a failed append leaves the ledger unchanged.
  4. SINGLE TIMELINE: appends for one person are serialized.

SEE ALSO:
  - store.go: Low-level persistence interface
  - fatigue/ledger.go: Implementation with per-person locking
*/
package generic

import (
	"context"
	"time"
)

// ScoreReader is the read side used by the evaluator and the scorer.
type ScoreReader interface {
	CurrentScore(ctx context.Context, personID string, asOf time.Time) (int, error)
}

// Ledger records fatigue events.
type Ledger interface {
	ScoreReader

	// RecordEvent appends one event.
	RecordEvent(ctx context.Context, personID string, kind EventKind, at time.Time) (FatigueEntry, error)

	// RecordEvents appends several events at one timestamp, all or nothing.
	RecordEvents(ctx context.Context, personID string, kinds []EventKind, at time.Time) ([]FatigueEntry, error)

	// Entries returns the person's audit trail, oldest first.
	Entries(ctx context.Context, personID string) ([]FatigueEntry, error)
}
