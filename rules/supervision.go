package rules

import (
	"context"

	"github.com/warp/planning-engine/catalog"
)

// evaluateSupervisionSource requires a supervisor covering any room of the
// target sector to sit in one of the allowed source rooms. The candidate's
// room must resolve in the topology before the allow list is consulted.
func evaluateSupervisionSource(_ context.Context, ev *evaluation, rule catalog.Rule) ([]Violation, error) {
	a := ev.fact.Assignment
	if a == nil {
		return nil, missing(rule, "assignment")
	}
	cfg, ok := rule.Config.(catalog.SupervisionSourceConfig)
	if !ok {
		return nil, missing(rule, "supervision source configuration")
	}
	topo := ev.catalog.Topology

	var targeted []string
	for _, r := range a.supervisedRooms() {
		s, ok := topo.RoomSector(r)
		if !ok {
			return nil, missing(rule, "room "+r+" in the topology")
		}
		if s == cfg.TargetSectorID {
			targeted = append(targeted, r)
		}
	}
	if len(targeted) == 0 {
		return nil, errNotApplicable
	}

	if a.RoomID == "" {
		return nil, missing(rule, "current room of the supervisor")
	}
	if _, ok := topo.Room(a.RoomID); !ok {
		return nil, missing(rule, "room "+a.RoomID+" in the topology")
	}
	if cfg.Allows(a.RoomID) {
		return nil, nil
	}
	return []Violation{violation(rule, rule.Severity(), map[string]any{
		"sourceRoom":         a.RoomID,
		"targetSectorId":     cfg.TargetSectorID,
		"supervisedRooms":    targeted,
		"allowedSourceRooms": cfg.AllowedSourceRooms,
	}, "sector %s cannot be supervised from room %s (allowed: %v)", cfg.TargetSectorID, a.RoomID, cfg.AllowedSourceRooms)}, nil
}
