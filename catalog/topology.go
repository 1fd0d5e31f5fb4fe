package catalog

import "sort"

// =============================================================================
// TOPOLOGY - Sectors and the rooms they contain
// =============================================================================

type SectorCategory string

const (
	SectorStandard       SectorCategory = "STANDARD"
	SectorPediatric      SectorCategory = "PEDIATRIC"
	SectorHeavySpecialty SectorCategory = "HEAVY_SPECIALTY"
)

type Room struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type Sector struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Category SectorCategory `json:"category"`
	Rooms    []Room         `json:"rooms"`
}

// Topology indexes sectors and rooms. Built once by NewTopology.
type Topology struct {
	Sectors []Sector `json:"sectors"`

	sectors    map[string]int
	roomSector map[string]string
	rooms      map[string]Room
}

// NewTopology indexes the sectors. Rooms inside a sector are kept sorted
// by Order; duplicate IDs keep the first occurrence (load.go reports them).
func NewTopology(sectors []Sector) *Topology {
	t := &Topology{
		sectors:    make(map[string]int, len(sectors)),
		roomSector: make(map[string]string),
		rooms:      make(map[string]Room),
	}
	for _, s := range sectors {
		if _, dup := t.sectors[s.ID]; dup {
			continue
		}
		rooms := append([]Room(nil), s.Rooms...)
		sort.SliceStable(rooms, func(i, j int) bool { return rooms[i].Order < rooms[j].Order })
		s.Rooms = rooms
		if s.Category == "" {
			s.Category = SectorStandard
		}

		t.sectors[s.ID] = len(t.Sectors)
		t.Sectors = append(t.Sectors, s)
		for _, r := range rooms {
			if _, dup := t.rooms[r.ID]; dup {
				continue
			}
			t.rooms[r.ID] = r
			t.roomSector[r.ID] = s.ID
		}
	}
	return t
}

// Lookups on a nil Topology find nothing.

func (t *Topology) HasSector(id string) bool {
	if t == nil {
		return false
	}
	_, ok := t.sectors[id]
	return ok
}

func (t *Topology) Sector(id string) (Sector, bool) {
	if t == nil {
		return Sector{}, false
	}
	i, ok := t.sectors[id]
	if !ok {
		return Sector{}, false
	}
	return t.Sectors[i], true
}

func (t *Topology) Room(id string) (Room, bool) {
	if t == nil {
		return Room{}, false
	}
	r, ok := t.rooms[id]
	return r, ok
}

// RoomSector returns the sector containing a room.
func (t *Topology) RoomSector(roomID string) (string, bool) {
	if t == nil {
		return "", false
	}
	s, ok := t.roomSector[roomID]
	return s, ok
}

// Contiguous reports whether the rooms all belong to one sector and their
// orders form an unbroken run within that sector.
func (t *Topology) Contiguous(roomIDs ...string) bool {
	if len(roomIDs) == 0 {
		return true
	}
	sectorID, ok := t.RoomSector(roomIDs[0])
	if !ok {
		return false
	}
	sector, _ := t.Sector(sectorID)

	want := make(map[string]bool, len(roomIDs))
	for _, id := range roomIDs {
		s, ok := t.RoomSector(id)
		if !ok || s != sectorID {
			return false
		}
		want[id] = true
	}

	// Rooms are sorted by order: the wanted ones must be adjacent positions.
	first, last := -1, -1
	for i, r := range sector.Rooms {
		if want[r.ID] {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	return last-first+1 == len(want)
}
