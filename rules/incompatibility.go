package rules

import (
	"context"
	"sort"

	"github.com/warp/planning-engine/catalog"
)

// evaluateIncompatibility forbids assignmentType and any of incompatibleWith
// on the same day for the same person. The rule is symmetric: a GARDE added
// next to an existing ASTREINTE breaks it just like the reverse.
func evaluateIncompatibility(_ context.Context, ev *evaluation, rule catalog.Rule) ([]Violation, error) {
	a := ev.fact.Assignment
	if a == nil {
		return nil, missing(rule, "assignment")
	}
	cfg, ok := rule.Config.(catalog.IncompatibilityConfig)
	if !ok {
		return nil, missing(rule, "incompatibility configuration")
	}
	if a.Date.IsZero() {
		return nil, missing(rule, "assignment date")
	}

	candidateIsAnchor := a.Type == cfg.AssignmentType
	if !candidateIsAnchor && !cfg.Incompatible(a.Type) {
		return nil, errNotApplicable
	}

	seen := make(map[string]bool)
	for _, h := range ev.history(a) {
		if !h.Date.Equal(a.Date) {
			continue
		}
		if (candidateIsAnchor && cfg.Incompatible(h.Type)) || (!candidateIsAnchor && h.Type == cfg.AssignmentType) {
			seen[h.Type] = true
		}
	}
	if len(seen) == 0 {
		return nil, nil
	}

	conflicts := make([]string, 0, len(seen))
	for t := range seen {
		conflicts = append(conflicts, t)
	}
	sort.Strings(conflicts)
	return []Violation{violation(rule, rule.Severity(), map[string]any{
		"date":           a.Date.String(),
		"assignmentType": a.Type,
		"conflictsWith":  conflicts,
	}, "%s on %s conflicts with %v the same day", a.Type, a.Date, conflicts)}, nil
}
