/*
errors.go - Centralized error types for the planning engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these (or wrap them) so callers can classify
  failures with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Catalog errors - ValidationError, ConfigurationInconsistencyError
  2. Counting errors - InvalidRangeError, half-day misuse
  3. Evaluation errors - ContextMissingError (isolated to one rule)
  4. Ledger errors - unknown event kind, out-of-order events, store failures

USAGE:
  if errors.Is(err, generic.ErrInvalidRange) {
      // caller bug: start after end
  }

  var verr *generic.ValidationError
  if errors.As(err, &verr) {
      for _, p := range verr.Problems { ... }
  }

SEE ALSO:
  - catalog/load.go: Builds ValidationError / ConfigurationInconsistencyError
  - leave/counter.go: InvalidRangeError
  - rules/evaluator.go: ContextMissingError
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidCatalog is wrapped by every ValidationError.
	ErrInvalidCatalog = errors.New("invalid rule catalog")

	// ErrConfigurationInconsistent is wrapped by ConfigurationInconsistencyError.
	ErrConfigurationInconsistent = errors.New("inconsistent rule catalog")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: start after end")

	// ErrUnknownCountingMethod is returned for an unrecognised counting method.
	ErrUnknownCountingMethod = errors.New("unknown counting method")

	// ErrHalfDayNotAllowed is returned when half days are flagged on a leave
	// type that does not allow them.
	ErrHalfDayNotAllowed = errors.New("half days not allowed")

	// ErrHalfDayOutsideRange is returned when a half-day flag is outside the range.
	ErrHalfDayOutsideRange = errors.New("half day outside range")

	// ErrContextMissing is wrapped by ContextMissingError.
	ErrContextMissing = errors.New("evaluation context missing data")

	// ErrUnknownEventKind is returned for an event kind absent from the
	// fatigue configuration.
	ErrUnknownEventKind = errors.New("unknown fatigue event kind")

	// ErrOutOfOrderEvent is returned when an event predates the person's
	// latest ledger entry.
	ErrOutOfOrderEvent = errors.New("event older than latest ledger entry")

	// ErrPersonRequired is returned when an operation has no person ID.
	ErrPersonRequired = errors.New("person id is required")

	// ErrEquityOutOfRange is returned when an equity deviation is outside [0,1].
	ErrEquityOutOfRange = errors.New("equity deviation must be within [0,1]")

	// ErrUnknownCategory is returned for a rule category that does not exist.
	ErrUnknownCategory = errors.New("unknown rule category")

	// ErrInvalidHoliday is returned for a holiday without a date or with a
	// malformed RRULE.
	ErrInvalidHoliday = errors.New("invalid holiday")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Problem is one finding of a catalog check.
type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}

// Problems collects findings so that all of them can be reported at once.
type Problems []Problem

func (ps *Problems) Add(path, format string, args ...any) {
	*ps = append(*ps, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (ps Problems) Empty() bool { return len(ps) == 0 }

func (ps Problems) join() string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return strings.Join(parts, "; ")
}

// ValidationError lists every structural problem found in a catalog.
type ValidationError struct {
	Problems Problems
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule catalog (%d problems): %s", len(e.Problems), e.Problems.join())
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCatalog
}

// ConfigurationInconsistencyError lists cross-reference problems, such as a
// sector override naming a sector absent from the topology.
type ConfigurationInconsistencyError struct {
	Problems Problems
}

func (e *ConfigurationInconsistencyError) Error() string {
	return fmt.Sprintf("inconsistent rule catalog (%d problems): %s", len(e.Problems), e.Problems.join())
}

func (e *ConfigurationInconsistencyError) Unwrap() error {
	return ErrConfigurationInconsistent
}

// InvalidRangeError provides details about a reversed date range.
type InvalidRangeError struct {
	Start TimePoint
	End   TimePoint
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: start %s is after end %s", e.Start, e.End)
}

func (e *InvalidRangeError) Unwrap() error {
	return ErrInvalidRange
}

// ContextMissingError reports the data a single rule needed but did not get.
type ContextMissingError struct {
	Rule    string
	Missing string
}

func (e *ContextMissingError) Error() string {
	return fmt.Sprintf("rule %q: missing context: %s", e.Rule, e.Missing)
}

func (e *ContextMissingError) Unwrap() error {
	return ErrContextMissing
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrUnknownCountingMethod) ||
		errors.Is(err, ErrHalfDayNotAllowed) ||
		errors.Is(err, ErrHalfDayOutsideRange) ||
		errors.Is(err, ErrUnknownEventKind) ||
		errors.Is(err, ErrOutOfOrderEvent) ||
		errors.Is(err, ErrPersonRequired) ||
		errors.Is(err, ErrEquityOutOfRange) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrInvalidHoliday)
}

// IsCatalogError returns true if the error comes from catalog loading.
func IsCatalogError(err error) bool {
	return errors.Is(err, ErrInvalidCatalog) || errors.Is(err, ErrConfigurationInconsistent)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
