package rules

import (
	"context"
	"sort"

	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/generic"
)

// evaluateAssignment runs the checks this rule owns for the candidate's
// sector (see assignmentOwners). A rule scoped to another sector, or
// owning no check for this candidate, is not applicable.
func evaluateAssignment(_ context.Context, ev *evaluation, rule catalog.Rule) ([]Violation, error) {
	a := ev.fact.Assignment
	if a == nil {
		return nil, missing(rule, "assignment")
	}
	cfg, ok := rule.Config.(catalog.AssignmentConfig)
	if !ok {
		return nil, missing(rule, "assignment configuration")
	}
	sector := ev.sectorOf(*a)
	if cfg.SectorID != "" && cfg.SectorID != sector {
		return nil, errNotApplicable
	}

	var owned []catalog.AssignmentCheck
	for _, check := range catalog.AssignmentChecks {
		if ev.owners[check] == rule.Name {
			owned = append(owned, check)
		}
	}
	if len(owned) == 0 {
		return nil, errNotApplicable
	}

	applied := false
	var out []Violation
	for _, check := range owned {
		var (
			vs  []Violation
			ran bool
			err error
		)
		switch check {
		case catalog.CheckConsecutiveSector:
			vs, ran, err = ev.consecutiveSector(rule, cfg, *a, sector)
		case catalog.CheckMaxRooms:
			vs, ran = ev.roomLimit(rule, cfg, *a, sector)
		case catalog.CheckTopology:
			vs, ran, err = ev.topology(rule, cfg, *a, sector)
		case catalog.CheckConsultations:
			vs, ran = ev.consultations(rule, cfg, *a)
		}
		if err != nil {
			return nil, err
		}
		applied = applied || ran
		out = append(out, vs...)
	}
	if !applied {
		return nil, errNotApplicable
	}
	return out, nil
}

// consecutiveSector counts the run of consecutive days the person works in
// the same sector, the candidate day included.
func (ev *evaluation) consecutiveSector(rule catalog.Rule, cfg catalog.AssignmentConfig, a Assignment, sector string) ([]Violation, bool, error) {
	if cfg.MaxConsecutiveSameSector == 0 {
		return nil, false, nil
	}
	if sector == "" {
		return nil, false, missing(rule, "sector of the assignment")
	}
	if a.Date.IsZero() {
		return nil, false, missing(rule, "assignment date")
	}

	days := make(map[string]bool)
	for _, h := range ev.history(&a) {
		if ev.sectorOf(h) == sector {
			days[h.Date.String()] = true
		}
	}
	start, end := a.Date, a.Date
	for days[start.AddDays(-1).String()] {
		start = start.AddDays(-1)
	}
	for days[end.AddDays(1).String()] {
		end = end.AddDays(1)
	}
	run := generic.DaysBetween(start, end) + 1
	if run <= cfg.MaxConsecutiveSameSector {
		return nil, true, nil
	}
	return []Violation{violation(rule, rule.Severity(), map[string]any{
		"check":                    string(catalog.CheckConsecutiveSector),
		"sectorId":                 sector,
		"from":                     start.String(),
		"to":                       end.String(),
		"days":                     run,
		"maxConsecutiveSameSector": cfg.MaxConsecutiveSameSector,
	}, "%d consecutive days in sector %s (%s to %s), maximum is %d", run, sector, start, end, cfg.MaxConsecutiveSameSector)}, true, nil
}

// roomLimit applies maxRooms of the sector override, else the rule default.
// Between the limit and exceptionalMaxRooms the overrun is a WARNING.
func (ev *evaluation) roomLimit(rule catalog.Rule, cfg catalog.AssignmentConfig, a Assignment, sector string) ([]Violation, bool) {
	rooms := a.supervisedRooms()
	if len(rooms) == 0 {
		return nil, false
	}
	limit, exceptional := cfg.RoomLimit(sector)
	if limit == 0 {
		return nil, false
	}
	n := len(rooms)
	if n <= limit {
		return nil, true
	}
	ctx := map[string]any{
		"check":               string(catalog.CheckMaxRooms),
		"sectorId":            sector,
		"rooms":               rooms,
		"maxRooms":            limit,
		"exceptionalMaxRooms": exceptional,
	}
	if n <= exceptional {
		return []Violation{violation(rule, catalog.SeverityWarning, ctx,
			"supervising %d rooms exceeds %d, within the exceptional maximum of %d", n, limit, exceptional)}, true
	}
	return []Violation{violation(rule, rule.Severity(), ctx,
		"supervising %d rooms exceeds the maximum of %d", n, exceptional)}, true
}

// topology checks which rooms may be supervised together.
func (ev *evaluation) topology(rule catalog.Rule, cfg catalog.AssignmentConfig, a Assignment, sector string) ([]Violation, bool, error) {
	rooms := a.supervisedRooms()
	if len(rooms) == 0 {
		return nil, false, nil
	}
	mode, allowed := cfg.TopologyFor(sector)
	if mode == "" {
		return nil, false, nil
	}
	topo := ev.catalog.Topology
	if sector == "" {
		return nil, false, missing(rule, "sector of the assignment")
	}

	sectors := make(map[string]string, len(rooms))
	for _, r := range rooms {
		s, ok := topo.RoomSector(r)
		if !ok {
			return nil, false, missing(rule, "room "+r+" in the topology")
		}
		sectors[r] = s
	}

	var offending []string
	switch mode {
	case catalog.TopologySameSector:
		for _, r := range rooms {
			if sectors[r] != sector {
				offending = append(offending, r)
			}
		}
	case catalog.TopologyContiguous:
		group := rooms
		if a.RoomID != "" && !contains(rooms, a.RoomID) {
			group = append([]string{a.RoomID}, rooms...)
		}
		if !topo.Contiguous(group...) {
			offending = append(offending, rooms...)
		}
	case catalog.TopologyCrossSector:
		ok := map[string]bool{sector: true}
		for _, s := range allowed {
			ok[s] = true
		}
		for _, r := range rooms {
			if !ok[sectors[r]] {
				offending = append(offending, r)
			}
		}
	}
	if len(offending) == 0 {
		return nil, true, nil
	}
	sort.Strings(offending)
	return []Violation{violation(rule, rule.Severity(), map[string]any{
		"check":          string(catalog.CheckTopology),
		"sectorId":       sector,
		"topology":       mode,
		"allowedSectors": allowed,
		"rooms":          rooms,
		"offendingRooms": offending,
	}, "rooms %v break the %s supervision topology of sector %s", offending, mode, sector)}, true, nil
}

// consultations caps consultations per ISO week and, when asked, notes an
// unbalanced morning/afternoon split.
func (ev *evaluation) consultations(rule catalog.Rule, cfg catalog.AssignmentConfig, a Assignment) ([]Violation, bool) {
	if a.Type != TypeConsultation {
		return nil, false
	}
	count := 1
	morning, afternoon := 0, 0
	tally := func(s Slot) {
		if s.covers(SlotMorning) {
			morning++
		}
		if s.covers(SlotAfternoon) {
			afternoon++
		}
	}
	tally(a.Slot)
	for _, h := range ev.history(&a) {
		if h.Type == TypeConsultation && h.Date.SameISOWeek(a.Date) {
			count++
			tally(h.Slot)
		}
	}
	year, week := a.Date.ISOWeek()

	var out []Violation
	if cfg.MaxConsultationsPerWeek > 0 && count > cfg.MaxConsultationsPerWeek {
		out = append(out, violation(rule, rule.Severity(), map[string]any{
			"check":                   string(catalog.CheckConsultations),
			"isoYear":                 year,
			"isoWeek":                 week,
			"count":                   count,
			"maxConsultationsPerWeek": cfg.MaxConsultationsPerWeek,
		}, "%d consultations in week %d-W%02d, maximum is %d", count, year, week, cfg.MaxConsultationsPerWeek))
	}
	if cfg.BalanceHalfDays && abs(morning-afternoon) > 1 {
		out = append(out, violation(rule, catalog.SeverityWarning, map[string]any{
			"check":     "balanceHalfDays",
			"isoYear":   year,
			"isoWeek":   week,
			"morning":   morning,
			"afternoon": afternoon,
		}, "consultations in week %d-W%02d are unbalanced: %d mornings, %d afternoons", year, week, morning, afternoon))
	}
	return out, true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
