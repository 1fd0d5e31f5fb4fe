package rules

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/generic"
	"github.com/warp/planning-engine/leave"
)

// =============================================================================
// LEAVE TYPE LIMITS - Carried by the leave type, not by a rule
// =============================================================================

// leaveTypeCheck applies role eligibility, maximum duration and half-day
// allowance of the requested leave type. It is reported as the pseudo
// rule "leaveType:<code>".
func (ev *evaluation) leaveTypeCheck() (string, []Violation, error) {
	req := ev.fact.Leave
	name := "leaveType:" + req.LeaveType
	pseudo := catalog.Rule{Name: name}

	lt, ok := ev.catalog.LeaveType(req.LeaveType)
	if !ok {
		return name, []Violation{violation(pseudo, catalog.SeverityCritical,
			map[string]any{"leaveType": req.LeaveType},
			"unknown leave type %q", req.LeaveType)}, nil
	}

	var out []Violation
	role := ev.env.roleOf(ev.personID, firstNonEmpty(req.Role, ev.fact.Role))
	if role == "" {
		return name, nil, missing(pseudo, "role of the requesting person")
	}
	if !lt.Roles.Includes(role) {
		out = append(out, violation(pseudo, catalog.SeverityCritical,
			map[string]any{"leaveType": lt.Code, "role": role, "eligibleRoles": lt.Roles.Roles()},
			"leave type %s is not open to role %s", lt.Code, role))
	}
	if len(req.HalfDays) > 0 && !lt.AllowHalfDays {
		out = append(out, violation(pseudo, catalog.SeverityHigh,
			map[string]any{"leaveType": lt.Code, "halfDays": dates(req.HalfDays)},
			"leave type %s does not allow half days", lt.Code))
	}
	if lt.MaxDurationDays > 0 {
		days, err := ev.count(lt.CountingMethod, req.Period(), req.HalfDays, lt.AllowHalfDays)
		if err != nil {
			return name, nil, err
		}
		if days.GreaterThan(decimal.NewFromInt(int64(lt.MaxDurationDays))) {
			out = append(out, violation(pseudo, catalog.SeverityHigh,
				map[string]any{"leaveType": lt.Code, "days": days, "maxDurationDays": lt.MaxDurationDays},
				"%s request of %s days exceeds the %d day maximum", lt.Code, days, lt.MaxDurationDays))
		}
	}
	return name, out, nil
}

// =============================================================================
// LEAVE RULES
// =============================================================================

func evaluateLeave(_ context.Context, ev *evaluation, rule catalog.Rule) ([]Violation, error) {
	req := ev.fact.Leave
	if req == nil {
		return nil, missing(rule, "leave request")
	}
	cfg, ok := rule.Config.(catalog.LeaveConfig)
	if !ok {
		return nil, missing(rule, "leave configuration")
	}
	if cfg.LeaveType != "" && cfg.LeaveType != req.LeaveType {
		return nil, errNotApplicable
	}
	role := ev.env.roleOf(ev.personID, firstNonEmpty(req.Role, ev.fact.Role))
	if role == "" {
		return nil, missing(rule, "role of the requesting person")
	}
	if !cfg.Roles.Includes(role) {
		return nil, errNotApplicable
	}

	method := cfg.CountingMethod
	allowHalf := false
	if lt, ok := ev.catalog.LeaveType(req.LeaveType); ok {
		allowHalf = lt.AllowHalfDays
		if method == "" {
			method = lt.CountingMethod
		}
	}
	if method == "" {
		method = leave.WeekdaysIfWorking
	}
	halfDays := req.HalfDays
	if !allowHalf {
		// Reported once by the leave type check; count them as full days here.
		halfDays = nil
	}

	requested, err := ev.count(method, req.Period(), halfDays, allowHalf)
	if err != nil {
		return nil, err
	}

	var out []Violation
	checks := []func() ([]Violation, error){
		func() ([]Violation, error) { return ev.maxConsecutive(rule, cfg, method, halfDays, allowHalf) },
		func() ([]Violation, error) { return ev.absentRatio(rule, cfg, method, role) },
		func() ([]Violation, error) { return ev.quota(rule, cfg, requested) },
		func() ([]Violation, error) { return ev.leadTime(rule, cfg) },
	}
	for _, check := range checks {
		vs, err := check()
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}
	return out, nil
}

func (ev *evaluation) count(method leave.Method, period generic.Period, halfDays []generic.TimePoint, allowHalf bool) (decimal.Decimal, error) {
	return leave.Count(leave.Request{
		Start:         period.Start,
		End:           period.End,
		Method:        method,
		HalfDays:      halfDays,
		AllowHalfDays: allowHalf,
	}, ev.env.holidays(), ev.env.schedule(ev.personID))
}

// maxConsecutive merges the request with the person's existing leaves that
// touch it, directly or across days the method does not count (a weekend
// between two weeks of leave), and counts the whole block.
func (ev *evaluation) maxConsecutive(rule catalog.Rule, cfg catalog.LeaveConfig, method leave.Method, halfDays []generic.TimePoint, allowHalf bool) ([]Violation, error) {
	if cfg.MaxConsecutiveDays == 0 {
		return nil, nil
	}
	req := ev.fact.Leave

	var others []generic.Period
	for _, l := range ev.env.Leaves {
		if l.PersonID != ev.personID || (req.ID != "" && l.ID == req.ID) {
			continue
		}
		if cfg.LeaveType != "" && l.LeaveType != cfg.LeaveType {
			continue
		}
		if l.Start.After(l.End) {
			return nil, &generic.InvalidRangeError{Start: l.Start, End: l.End}
		}
		others = append(others, l.Period())
	}
	sort.Slice(others, func(i, j int) bool { return others[i].Start.Before(others[j].Start) })

	block := req.Period()
	for merged := true; merged; {
		merged = false
		for _, o := range others {
			if ev.chained(method, block, o) && (o.Start.Before(block.Start) || o.End.After(block.End)) {
				block = block.Union(o)
				merged = true
			}
		}
	}

	total, err := ev.count(method, block, halfDays, allowHalf)
	if err != nil {
		return nil, err
	}
	limit := decimal.NewFromInt(int64(cfg.MaxConsecutiveDays))
	if total.LessThanOrEqual(limit) {
		return nil, nil
	}
	return []Violation{violation(rule, rule.Severity(), map[string]any{
		"check":              "maxConsecutiveDays",
		"from":               block.Start.String(),
		"to":                 block.End.String(),
		"consecutiveDays":    total,
		"maxConsecutiveDays": cfg.MaxConsecutiveDays,
	}, "%s consecutive days of leave from %s to %s exceed the maximum of %d",
		total, block.Start, block.End, cfg.MaxConsecutiveDays)}, nil
}

// chained reports whether two periods form one absence: they overlap, are
// adjacent, or only days the method does not count lie between them.
func (ev *evaluation) chained(method leave.Method, a, b generic.Period) bool {
	if a.Touches(b) {
		return true
	}
	first, second := a, b
	if b.Start.Before(a.Start) {
		first, second = b, a
	}
	holidays, schedule := ev.env.holidays(), ev.env.schedule(ev.personID)
	for d := first.End.AddDays(1); d.Before(second.Start); d = d.AddDays(1) {
		if leave.CountsDay(method, d, holidays, schedule) {
			return false
		}
	}
	return true
}

// absentRatio checks, for every counted day of the request, the share of
// the role that would be away.
func (ev *evaluation) absentRatio(rule catalog.Rule, cfg catalog.LeaveConfig, method leave.Method, role string) ([]Violation, error) {
	if cfg.MaxAbsentPercent == 0 {
		return nil, nil
	}
	headcount, ok := ev.env.RoleHeadcount[role]
	if !ok || headcount <= 0 {
		return nil, missing(rule, "headcount of role "+role)
	}
	req := ev.fact.Leave
	holidays, schedule := ev.env.holidays(), ev.env.schedule(ev.personID)

	type overDay struct {
		Date    string  `json:"date"`
		Absent  int     `json:"absent"`
		Percent float64 `json:"percent"`
	}
	var over []overDay
	for _, day := range req.Period().Days() {
		if method != leave.None && !leave.CountsDay(method, day, holidays, schedule) {
			continue
		}
		absent := map[string]bool{ev.personID: true}
		for _, l := range ev.env.Leaves {
			if l.PersonID == ev.personID || !l.Period().Contains(day) {
				continue
			}
			other := ev.env.roleOf(l.PersonID, l.Role)
			if other == "" {
				return nil, missing(rule, "role of person "+l.PersonID)
			}
			if other == role {
				absent[l.PersonID] = true
			}
		}
		percent := float64(len(absent)) * 100 / float64(headcount)
		if percent > cfg.MaxAbsentPercent {
			over = append(over, overDay{Date: day.String(), Absent: len(absent), Percent: percent})
		}
	}
	if len(over) == 0 {
		return nil, nil
	}
	return []Violation{violation(rule, rule.Severity(), map[string]any{
		"check":            "maxAbsentPercent",
		"role":             role,
		"headcount":        headcount,
		"maxAbsentPercent": cfg.MaxAbsentPercent,
		"days":             over,
	}, "%d day(s) with more than %.0f%% of %s absent (first: %s, %.1f%%)",
		len(over), cfg.MaxAbsentPercent, role, over[0].Date, over[0].Percent)}, nil
}

func (ev *evaluation) quota(rule catalog.Rule, cfg catalog.LeaveConfig, requested decimal.Decimal) ([]Violation, error) {
	if cfg.QuotaDays == nil {
		return nil, nil
	}
	if ev.env.LeaveUsage == nil {
		return nil, missing(rule, "leave usage")
	}
	leaveType := firstNonEmpty(cfg.LeaveType, ev.fact.Leave.LeaveType)
	used := ev.env.LeaveUsage[UsageKey{PersonID: ev.personID, LeaveType: leaveType}]
	if used.Add(requested).LessThanOrEqual(*cfg.QuotaDays) {
		return nil, nil
	}
	remaining := cfg.QuotaDays.Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return []Violation{violation(rule, rule.Severity(), map[string]any{
		"check":     "quotaDays",
		"leaveType": leaveType,
		"used":      used,
		"requested": requested,
		"quotaDays": *cfg.QuotaDays,
		"remaining": remaining,
	}, "%s days requested but only %s of %s %s days remain", requested, remaining, cfg.QuotaDays.String(), leaveType)}, nil
}

func (ev *evaluation) leadTime(rule catalog.Rule, cfg catalog.LeaveConfig) ([]Violation, error) {
	if cfg.MinLeadDays == 0 {
		return nil, nil
	}
	req := ev.fact.Leave
	requestedOn := req.RequestedOn
	if requestedOn.IsZero() {
		requestedOn = ev.env.AsOf
	}
	if requestedOn.IsZero() {
		return nil, missing(rule, "request date")
	}
	lead := generic.DaysBetween(requestedOn, req.Start)
	if lead >= cfg.MinLeadDays {
		return nil, nil
	}
	return []Violation{violation(rule, rule.Severity(), map[string]any{
		"check":       "minLeadDays",
		"requestedOn": requestedOn.String(),
		"start":       req.Start.String(),
		"leadDays":    lead,
		"minLeadDays": cfg.MinLeadDays,
	}, "requested %d day(s) ahead, at least %d required", lead, cfg.MinLeadDays)}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
