/*
evaluator.go - Dispatch of active rules to their predicates

PURPOSE:
  Evaluate walks the active rules of one category, in catalog order, and
  hands each one to the predicate of its type. Results are gathered into
  a Report: violations, rule-level errors and one outcome per rule.

ISOLATION:
  A predicate that lacks data returns a *generic.ContextMissingError.
  That rule is reported under Report.Errors with outcome ERROR and the
  next rule is evaluated. Only an unknown category, a missing person or a
  cancelled context stop the whole pass.

PRECEDENCE (assignment rules):
  Each assignment check (consecutive sector days, rooms per supervisor,
  topology, consultations) has exactly one owner for a given candidate:

    1. an active rule whose sectorId is the candidate's sector
    2. otherwise the active general rule (no sectorId)

  Inside the owning rule a sectorOverrides entry beats the rule default.
  Catalog loading guarantees that each (scope, check) pair has a single
  owner, so the result never depends on rule order.

LEAVE TYPES:
  For the leave category the limits carried by the leave type itself
  (eligible roles, half days, maximum duration) are checked first and
  reported once, as the pseudo rule "leaveType:<code>".

SEE ALSO:
  - catalog/types.go: Rule configurations
  - fatigue/ledger.go: Projection used by the fatigue gate
*/
package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/fatigue"
	"github.com/warp/planning-engine/generic"
)

// FatigueProjector is the read side of the fatigue ledger used by the
// fatigue gate of duty rules.
type FatigueProjector interface {
	Project(ctx context.Context, personID string, asOf time.Time, kinds []generic.EventKind) (int, fatigue.Level, error)
}

// errNotApplicable is returned by predicates whose rule does not concern
// the fact.
var errNotApplicable = errors.New("rule not applicable")

type predicate func(ctx context.Context, ev *evaluation, rule catalog.Rule) ([]Violation, error)

var predicates = map[catalog.RuleType]predicate{
	catalog.TypeLeave:               evaluateLeave,
	catalog.TypeDuty:                evaluateDuty,
	catalog.TypeDutyIncompatibility: evaluateIncompatibility,
	catalog.TypeAssignment:          evaluateAssignment,
	catalog.TypeSupervisionSource:   evaluateSupervisionSource,
}

// =============================================================================
// EVALUATOR
// =============================================================================

type Evaluator struct {
	provider catalog.Provider
	fatigue  FatigueProjector
	logger   zerolog.Logger
}

type Option func(*Evaluator)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger.With().Str("component", "rules").Logger() }
}

// NewEvaluator builds an evaluator. projector may be nil; duty rules with a
// fatigue gate then report a ContextMissingError.
func NewEvaluator(provider catalog.Provider, projector FatigueProjector, opts ...Option) *Evaluator {
	e := &Evaluator{provider: provider, fatigue: projector, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// evaluation carries one pass: a single catalog snapshot, the fact and
// its context.
type evaluation struct {
	catalog  *catalog.Catalog
	personID string
	fact     Fact
	env      Context
	fatigue  FatigueProjector
	owners   map[catalog.AssignmentCheck]string
}

// Evaluate checks fact against every active rule of category.
func (e *Evaluator) Evaluate(ctx context.Context, category catalog.Category, fact Fact, env Context) (Report, error) {
	if !category.Valid() {
		return Report{}, fmt.Errorf("%w: %q", generic.ErrUnknownCategory, category)
	}
	personID := fact.PersonID
	switch {
	case personID != "":
	case fact.Assignment != nil && fact.Assignment.PersonID != "":
		personID = fact.Assignment.PersonID
	case fact.Leave != nil && fact.Leave.PersonID != "":
		personID = fact.Leave.PersonID
	default:
		return Report{}, generic.ErrPersonRequired
	}

	cat := e.provider.Current()
	ev := &evaluation{
		catalog:  cat,
		personID: personID,
		fact:     fact,
		env:      env,
		fatigue:  e.fatigue,
	}
	if fact.Assignment != nil {
		ev.owners = assignmentOwners(cat.ActiveRules(catalog.CategoryAssignment), ev.sectorOf(*fact.Assignment))
	}

	report := Report{
		Category:       category,
		CatalogVersion: cat.Version,
		Violations:     []Violation{},
		Errors:         []RuleError{},
		Outcomes:       []RuleOutcome{},
	}

	if category == catalog.CategoryLeave && fact.Leave != nil {
		name, violations, err := ev.leaveTypeCheck()
		report.record(name, violations, err)
	}

	for _, rule := range cat.ActiveRules(category) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		check, ok := predicates[rule.Type]
		if !ok {
			report.record(rule.Name, nil, fmt.Errorf("no predicate for rule type %s", rule.Type))
			continue
		}
		violations, err := check(ctx, ev, rule)
		if err != nil && !errors.Is(err, errNotApplicable) {
			e.logger.Warn().Err(err).Str("rule", rule.Name).Str("person_id", personID).Msg("rule evaluation failed")
		}
		report.record(rule.Name, violations, err)
	}

	e.logger.Debug().
		Str("category", string(category)).
		Str("person_id", personID).
		Int("violations", len(report.Violations)).
		Int("errors", len(report.Errors)).
		Bool("blocking", report.Blocking()).
		Msg("evaluation done")
	return report, nil
}

func (r *Report) record(ruleName string, violations []Violation, err error) {
	switch {
	case errors.Is(err, errNotApplicable):
		r.Outcomes = append(r.Outcomes, RuleOutcome{RuleName: ruleName, Outcome: OutcomeNotApplicable})
	case err != nil:
		r.Errors = append(r.Errors, RuleError{RuleName: ruleName, Err: err})
		r.Outcomes = append(r.Outcomes, RuleOutcome{RuleName: ruleName, Outcome: OutcomeError})
	case len(violations) > 0:
		r.Violations = append(r.Violations, violations...)
		r.Outcomes = append(r.Outcomes, RuleOutcome{RuleName: ruleName, Outcome: OutcomeViolated})
	default:
		r.Outcomes = append(r.Outcomes, RuleOutcome{RuleName: ruleName, Outcome: OutcomeSatisfied})
	}
}

// assignmentOwners picks, per check, the rule that governs a candidate in
// sectorID: the sector-scoped rule first, the general rule otherwise.
func assignmentOwners(rules []catalog.Rule, sectorID string) map[catalog.AssignmentCheck]string {
	owners := make(map[catalog.AssignmentCheck]string)
	claim := func(scoped bool) {
		for _, r := range rules {
			cfg, ok := r.Config.(catalog.AssignmentConfig)
			if !ok {
				continue
			}
			if scoped && (cfg.SectorID == "" || cfg.SectorID != sectorID) {
				continue
			}
			if !scoped && cfg.SectorID != "" {
				continue
			}
			for _, check := range catalog.AssignmentChecks {
				if _, taken := owners[check]; !taken && cfg.Defines(check) {
					owners[check] = r.Name
				}
			}
		}
	}
	claim(true)
	claim(false)
	return owners
}

// =============================================================================
// HELPERS SHARED BY PREDICATES
// =============================================================================

func missing(rule catalog.Rule, what string) error {
	return &generic.ContextMissingError{Rule: rule.Name, Missing: what}
}

func violation(rule catalog.Rule, severity catalog.Severity, ctx map[string]any, format string, args ...any) Violation {
	return Violation{
		RuleName: rule.Name,
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
		Context:  ctx,
	}
}

// history returns the person's existing assignments, the candidate excluded.
func (ev *evaluation) history(candidate *Assignment) []Assignment {
	var out []Assignment
	for _, a := range ev.env.History {
		if a.PersonID != ev.personID {
			continue
		}
		if candidate != nil && candidate.ID != "" && a.ID == candidate.ID {
			continue
		}
		out = append(out, a)
	}
	return out
}

// sectorOf resolves the sector of an assignment, through its room if needed.
func (ev *evaluation) sectorOf(a Assignment) string {
	if a.SectorID != "" {
		return a.SectorID
	}
	if a.RoomID != "" && ev.catalog.Topology != nil {
		if s, ok := ev.catalog.Topology.RoomSector(a.RoomID); ok {
			return s
		}
	}
	return ""
}

func dates(days []generic.TimePoint) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.String()
	}
	return out
}
