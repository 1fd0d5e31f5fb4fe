package rules

import (
	"context"
	"fmt"

	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/generic"
)

// AccrualKinds maps a finalized assignment to the fatigue events it
// accrues. Point values live in the catalog; this only names the kinds.
//
//	GARDE                         garde
//	ASTREINTE                     astreinte
//	more than one supervised room supervisionMultiple
//	room in a PEDIATRIC sector    pediatrie
//	room in a HEAVY_SPECIALTY one specialiteLourde
func AccrualKinds(a Assignment, topo *catalog.Topology) []generic.EventKind {
	var kinds []generic.EventKind
	switch a.Type {
	case TypeGarde:
		kinds = append(kinds, generic.KindGarde)
	case TypeAstreinte:
		kinds = append(kinds, generic.KindAstreinte)
	}
	if len(a.supervisedRooms()) > 1 {
		kinds = append(kinds, generic.KindSupervisionMultiple)
	}

	if topo == nil {
		return kinds
	}
	sectorID := a.SectorID
	if sectorID == "" && a.RoomID != "" {
		sectorID, _ = topo.RoomSector(a.RoomID)
	}
	if sector, ok := topo.Sector(sectorID); ok {
		switch sector.Category {
		case catalog.SectorPediatric:
			kinds = append(kinds, generic.KindPediatrie)
		case catalog.SectorHeavySpecialty:
			kinds = append(kinds, generic.KindSpecialiteLourde)
		}
	}
	return kinds
}

// RecordAssignment writes the accruals of a finalized assignment to the
// ledger, in AccrualKinds order, all at the assignment date. Nothing is
// written when any of them fails.
func RecordAssignment(ctx context.Context, ledger generic.Ledger, a Assignment, topo *catalog.Topology) ([]generic.FatigueEntry, error) {
	if a.PersonID == "" {
		return nil, generic.ErrPersonRequired
	}
	if a.Date.IsZero() {
		return nil, fmt.Errorf("assignment date is required")
	}
	kinds := AccrualKinds(a, topo)
	entries, err := ledger.RecordEvents(ctx, a.PersonID, kinds, a.Date.Time)
	if err != nil {
		return nil, fmt.Errorf("record %v for %s: %w", kinds, a.PersonID, err)
	}
	return entries, nil
}
