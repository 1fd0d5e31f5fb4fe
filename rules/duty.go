package rules

import (
	"context"
	"sort"

	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/fatigue"
	"github.com/warp/planning-engine/generic"
)

// =============================================================================
// DUTY RULES
// =============================================================================
//
// A duty rule concerns one duty type (GARDE, ASTREINTE, ...). For a
// candidate of that type it checks, in order:
//
//   restDayAfter   nothing but rest the day after the duty
//   minGapDays     days to the nearest duty of the same type, both ways
//   idealGapDays   below it (but above the minimum) is a WARNING note
//   maxPerPeriod   duties in the trailing periodDays, candidate included;
//                  up to exceptionalMax is a WARNING that carries the
//                  assignment's justification, beyond it the rule severity
//   fatigueGate    projected fatigue: ALERT is a WARNING, CRITICAL blocks
//
// For a candidate of any other type only restDayAfter applies: it may
// not fall on the day after a duty of the rule's type.

func evaluateDuty(ctx context.Context, ev *evaluation, rule catalog.Rule) ([]Violation, error) {
	a := ev.fact.Assignment
	if a == nil {
		return nil, missing(rule, "assignment")
	}
	cfg, ok := rule.Config.(catalog.DutyConfig)
	if !ok {
		return nil, missing(rule, "duty configuration")
	}
	if a.Date.IsZero() {
		return nil, missing(rule, "assignment date")
	}
	history := ev.history(a)

	if a.Type != cfg.DutyType {
		if !cfg.RestDayAfter || restTypes[a.Type] {
			return nil, errNotApplicable
		}
		return restAfterPreviousDuty(rule, cfg, *a, history), nil
	}

	var out []Violation
	out = append(out, restAroundDuty(rule, cfg, *a, history)...)
	out = append(out, gap(rule, cfg, *a, history)...)
	out = append(out, window(rule, cfg, *a, history)...)

	if cfg.FatigueGate {
		vs, err := ev.fatigueGate(ctx, rule, *a)
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}
	return out, nil
}

func restAfterPreviousDuty(rule catalog.Rule, cfg catalog.DutyConfig, a Assignment, history []Assignment) []Violation {
	previous := a.Date.AddDays(-1)
	for _, h := range history {
		if h.Type == cfg.DutyType && h.Date.Equal(previous) {
			return []Violation{violation(rule, rule.Severity(), map[string]any{
				"check":    "restDayAfter",
				"date":     a.Date.String(),
				"dutyDate": previous.String(),
				"dutyType": cfg.DutyType,
			}, "%s on %s falls on the rest day after the %s of %s", a.Type, a.Date, cfg.DutyType, previous)}
		}
	}
	return nil
}

func restAroundDuty(rule catalog.Rule, cfg catalog.DutyConfig, a Assignment, history []Assignment) []Violation {
	if !cfg.RestDayAfter {
		return nil
	}
	if vs := restAfterPreviousDuty(rule, cfg, a, history); vs != nil {
		return vs
	}
	next := a.Date.AddDays(1)
	var busy []string
	for _, h := range history {
		if h.Date.Equal(next) && !restTypes[h.Type] {
			busy = append(busy, h.Type)
		}
	}
	if len(busy) == 0 {
		return nil
	}
	sort.Strings(busy)
	return []Violation{violation(rule, rule.Severity(), map[string]any{
		"check":       "restDayAfter",
		"date":        a.Date.String(),
		"restDay":     next.String(),
		"assignments": busy,
	}, "%s on %s requires rest on %s, already assigned %v", cfg.DutyType, a.Date, next, busy)}
}

func gap(rule catalog.Rule, cfg catalog.DutyConfig, a Assignment, history []Assignment) []Violation {
	if cfg.MinGapDays == 0 && cfg.IdealGapDays == 0 {
		return nil
	}
	nearest, nearestDate := -1, generic.TimePoint{}
	for _, h := range history {
		if h.Type != cfg.DutyType {
			continue
		}
		d := generic.AbsDaysBetween(a.Date, h.Date)
		if nearest < 0 || d < nearest {
			nearest, nearestDate = d, h.Date
		}
	}
	if nearest < 0 {
		return nil
	}

	ctx := map[string]any{
		"check":        "minGapDays",
		"gapDays":      nearest,
		"nearestDuty":  nearestDate.String(),
		"minGapDays":   cfg.MinGapDays,
		"idealGapDays": cfg.IdealGapDays,
	}
	switch {
	case nearest < cfg.MinGapDays:
		return []Violation{violation(rule, rule.Severity(), ctx,
			"%s %d day(s) from the %s of %s, minimum gap is %d", cfg.DutyType, nearest, cfg.DutyType, nearestDate, cfg.MinGapDays)}
	case nearest < cfg.IdealGapDays:
		ctx["check"] = "idealGapDays"
		return []Violation{violation(rule, catalog.SeverityWarning, ctx,
			"%s %d day(s) from the %s of %s, ideal gap is %d", cfg.DutyType, nearest, cfg.DutyType, nearestDate, cfg.IdealGapDays)}
	}
	return nil
}

func window(rule catalog.Rule, cfg catalog.DutyConfig, a Assignment, history []Assignment) []Violation {
	if cfg.MaxPerPeriod == 0 {
		return nil
	}
	period := generic.Trailing(a.Date, cfg.PeriodDays)
	count := 1
	for _, h := range history {
		if h.Type == cfg.DutyType && period.Contains(h.Date) {
			count++
		}
	}
	if count <= cfg.MaxPerPeriod {
		return nil
	}

	ctx := map[string]any{
		"check":          "maxPerPeriod",
		"count":          count,
		"from":           period.Start.String(),
		"to":             period.End.String(),
		"maxPerPeriod":   cfg.MaxPerPeriod,
		"exceptionalMax": cfg.ExceptionalMax,
	}
	if count <= cfg.ExceptionalMax {
		ctx["check"] = "exceptionalMax"
		ctx["justified"] = a.Justification != ""
		ctx["justification"] = a.Justification
		msg := "%d %s in %d days exceeds %d, within the exceptional maximum of %d"
		if a.Justification == "" {
			msg += "; a justification is required"
		}
		return []Violation{violation(rule, catalog.SeverityWarning, ctx, msg,
			count, cfg.DutyType, cfg.PeriodDays, cfg.MaxPerPeriod, cfg.ExceptionalMax)}
	}
	return []Violation{violation(rule, rule.Severity(), ctx,
		"%d %s in %d days exceeds the maximum of %d", count, cfg.DutyType, cfg.PeriodDays, max(cfg.MaxPerPeriod, cfg.ExceptionalMax))}
}

func (ev *evaluation) fatigueGate(ctx context.Context, rule catalog.Rule, a Assignment) ([]Violation, error) {
	if ev.fatigue == nil {
		return nil, missing(rule, "fatigue ledger")
	}
	kinds := AccrualKinds(a, ev.catalog.Topology)
	score, level, err := ev.fatigue.Project(ctx, ev.personID, a.Date.EndOfDay(), kinds)
	if err != nil {
		return nil, err
	}

	severity := catalog.SeverityWarning
	switch level {
	case fatigue.LevelCritical:
		severity = catalog.SeverityCritical
	case fatigue.LevelAlert:
	default:
		return nil, nil
	}
	t := ev.catalog.Fatigue.Thresholds
	return []Violation{violation(rule, severity, map[string]any{
		"check":          "fatigueGate",
		"projectedScore": score,
		"level":          level,
		"alert":          t.Alert,
		"critical":       t.Critical,
		"accruals":       kinds,
	}, "projected fatigue score %d after this %s is %s", score, a.Type, level)}, nil
}
