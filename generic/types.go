/*
Package generic provides the shared vocabulary of the planning engine.

PURPOSE:
  Domain-agnostic building blocks used by every other package: calendar
  days and periods, holiday calendars and work schedules, fatigue event
  kinds and ledger entries, the entry store contract, and the error
  taxonomy.

KEY CONCEPTS IN THIS FILE (types.go):
  - EventKind: what happened to a person (a duty accrues points, a rest
    recovers them)
  - FatigueEntry: one immutable line of a person's fatigue ledger
  - Decimal helpers for day counts

DESIGN PRINCIPLES:
  1. Immutability: ledger entries are never modified
  2. Precision: day counts use decimal.Decimal, never float64
  3. Auditability: every entry carries its delta and the resulting score

SEE ALSO:
  - store.go: EntryStore contract
  - fatigue/ledger.go: The ledger built on these types
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENT KINDS - Fatigue accruals and recoveries
// =============================================================================

type EventKind string

// Accrual kinds add points.
const (
	KindGarde               EventKind = "garde"
	KindAstreinte           EventKind = "astreinte"
	KindSupervisionMultiple EventKind = "supervisionMultiple"
	KindPediatrie           EventKind = "pediatrie"
	KindSpecialiteLourde    EventKind = "specialiteLourde"
)

// Recovery kinds subtract points.
const (
	KindJourOff        EventKind = "jourOff"
	KindWeekendOff     EventKind = "weekendOff"
	KindDemiJourneeOff EventKind = "demiJourneeOff"
)

var (
	AccrualKinds  = []EventKind{KindGarde, KindAstreinte, KindSupervisionMultiple, KindPediatrie, KindSpecialiteLourde}
	RecoveryKinds = []EventKind{KindJourOff, KindWeekendOff, KindDemiJourneeOff}
)

func (k EventKind) IsAccrual() bool {
	for _, a := range AccrualKinds {
		if a == k {
			return true
		}
	}
	return false
}

func (k EventKind) IsRecovery() bool {
	for _, r := range RecoveryKinds {
		if r == k {
			return true
		}
	}
	return false
}

func (k EventKind) Valid() bool { return k.IsAccrual() || k.IsRecovery() }

// =============================================================================
// FATIGUE ENTRY - One immutable ledger line
// =============================================================================

// FatigueEntry records a single event and the score it produced.
// RunningScore is derived when the entry is created and never edited.
type FatigueEntry struct {
	ID           string    `json:"id"`
	PersonID     string    `json:"personId"`
	Timestamp    time.Time `json:"timestamp"`
	Kind         EventKind `json:"eventKind"`
	PointDelta   int       `json:"pointDelta"`
	RunningScore int       `json:"runningScore"`
	CreatedAt    time.Time `json:"createdAt"`
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

var (
	Half = decimal.NewFromFloat(0.5)
	One  = decimal.NewFromInt(1)
	two  = decimal.NewFromInt(2)
)

// RoundToHalf rounds to the nearest multiple of 0.5.
func RoundToHalf(d decimal.Decimal) decimal.Decimal {
	return d.Mul(two).Round(0).Div(two)
}
