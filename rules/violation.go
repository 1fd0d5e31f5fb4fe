package rules

import (
	"encoding/json"
	"errors"

	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/generic"
)

// Violation is one broken rule. Severity is always derived from the rule
// priority, except for the explicit WARNING notes (ideal gap, exceptional
// band, fatigue alert, half-day balance).
type Violation struct {
	RuleName string           `json:"ruleName"`
	Severity catalog.Severity `json:"severity"`
	Message  string           `json:"message"`
	Context  map[string]any   `json:"context,omitempty"`
}

func (v Violation) Blocking() bool { return v.Severity.Blocking() }

// RuleError is a rule that could not be evaluated. It is not a violation.
type RuleError struct {
	RuleName string
	Err      error
}

func (e RuleError) Error() string { return e.RuleName + ": " + e.Err.Error() }

func (e RuleError) Unwrap() error { return e.Err }

func (e RuleError) MarshalJSON() ([]byte, error) {
	out := struct {
		RuleName string `json:"ruleName"`
		Error    string `json:"error"`
		Missing  string `json:"missing,omitempty"`
	}{RuleName: e.RuleName, Error: e.Err.Error()}

	var missing *generic.ContextMissingError
	if errors.As(e.Err, &missing) {
		out.Missing = missing.Missing
	}
	return json.Marshal(out)
}

// Outcome summarizes what happened to one rule.
type Outcome string

const (
	OutcomeSatisfied     Outcome = "SATISFIED"
	OutcomeViolated      Outcome = "VIOLATED"
	OutcomeNotApplicable Outcome = "NOT_APPLICABLE"
	OutcomeError         Outcome = "ERROR"
)

type RuleOutcome struct {
	RuleName string  `json:"ruleName"`
	Outcome  Outcome `json:"outcome"`
}

// Report is the result of one evaluation pass.
type Report struct {
	Category       catalog.Category `json:"category"`
	CatalogVersion string           `json:"catalogVersion,omitempty"`
	Violations     []Violation      `json:"violations"`
	Errors         []RuleError      `json:"errors"`
	Outcomes       []RuleOutcome    `json:"outcomes"`
}

// Blocking reports whether any violation must stop the fact from being
// accepted.
func (r Report) Blocking() bool {
	for _, v := range r.Violations {
		if v.Blocking() {
			return true
		}
	}
	return false
}

// Outcome returns the outcome of a rule by name.
func (r Report) Outcome(ruleName string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.RuleName == ruleName {
			return o.Outcome, true
		}
	}
	return "", false
}

// ViolationsOf returns the violations raised by one rule.
func (r Report) ViolationsOf(ruleName string) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.RuleName == ruleName {
			out = append(out, v)
		}
	}
	return out
}
