package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/planning-engine/generic"
	"github.com/warp/planning-engine/leave"
	"gopkg.in/yaml.v3"
)

// weightingEpsilon is the tolerance on equity + fatigue == 1.
const weightingEpsilon = 0.001

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// LoadFile reads and loads a catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Load(data)
}

// Load parses and validates a catalog. On failure the error joins a
// *generic.ValidationError (structural problems) and/or a
// *generic.ConfigurationInconsistencyError (broken cross references), each
// listing every problem found.
func Load(source []byte) (*Catalog, error) {
	var doc catalogDoc
	dec := yaml.NewDecoder(bytes.NewReader(source))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		msg := err.Error()
		if errors.Is(err, io.EOF) {
			msg = "catalog is empty"
		}
		return nil, &generic.ValidationError{Problems: generic.Problems{{Message: msg}}}
	}

	b := &builder{}
	c := b.build(&doc)

	var errs []error
	if !b.problems.Empty() {
		errs = append(errs, &generic.ValidationError{Problems: b.problems})
	}
	if !b.inconsistencies.Empty() {
		errs = append(errs, &generic.ConfigurationInconsistencyError{Problems: b.inconsistencies})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// =============================================================================
// BUILDER - Collects every problem instead of stopping at the first
// =============================================================================

type builder struct {
	problems        generic.Problems
	inconsistencies generic.Problems
}

func (b *builder) build(doc *catalogDoc) *Catalog {
	b.check("", doc)

	c := &Catalog{Version: doc.Version}
	c.Topology = b.topology(doc.Sectors)
	c.LeaveTypes = b.leaveTypes(doc.LeaveTypes)
	c.LeaveRules = b.rules(CategoryLeave, doc.LeaveRules)
	c.DutyRules = b.rules(CategoryDuty, doc.DutyRules)
	c.AssignmentRules = b.rules(CategoryAssignment, doc.AssignmentRules)
	if doc.FatigueRules != nil {
		c.Fatigue = b.fatigue(doc.FatigueRules)
	}

	b.crossReferences(c)
	return c
}

// check runs struct-tag validation and records every failure under prefix.
func (b *builder) check(prefix string, v any) {
	err := validate.Struct(v)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		b.problems.Add(prefix, "%v", err)
		return
	}
	for _, fe := range verrs {
		b.problems.Add(joinPath(prefix, trimRoot(fe.Namespace())), "%s", describe(fe))
	}
}

func trimRoot(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func joinPath(prefix, path string) string {
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix
	default:
		return prefix + "." + path
	}
}

func describe(fe validator.FieldError) string {
	collection := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if collection {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be > %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// decode decodes a configuration node into out, reporting unknown keys.
func (b *builder) decode(path string, node *yaml.Node, out any) bool {
	if node == nil || node.Kind == 0 {
		b.problems.Add(path, "is required")
		return false
	}
	if node.Kind != yaml.MappingNode {
		b.problems.Add(path, "must be a mapping")
		return false
	}

	known := yamlKeys(reflect.TypeOf(out).Elem())
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if !known[key] {
			b.problems.Add(joinPath(path, key), "unknown field")
		}
	}
	if err := node.Decode(out); err != nil {
		b.problems.Add(path, "%v", err)
		return false
	}
	return true
}

func yamlKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("yaml"), ",", 2)[0]
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}

func (b *builder) roles(path string, d rolesDoc) RoleScope {
	switch {
	case !d.set:
		b.problems.Add(path, "is required (%s or a list of roles)", allRolesKeyword)
	case d.problem != "":
		b.problems.Add(path, "%s", d.problem)
	case d.all:
		return AllRoles()
	default:
		return SpecificRoles(d.list...)
	}
	return RoleScope{}
}

// =============================================================================
// TOPOLOGY AND LEAVE TYPES
// =============================================================================

func (b *builder) topology(docs []sectorDoc) *Topology {
	sectors := make([]Sector, 0, len(docs))
	seenSector := make(map[string]bool)
	seenRoom := make(map[string]string)

	for i, sd := range docs {
		path := fmt.Sprintf("sectors[%d]", i)
		if sd.ID != "" && seenSector[sd.ID] {
			b.problems.Add(path+".id", "duplicate sector id %q", sd.ID)
		}
		seenSector[sd.ID] = true

		s := Sector{ID: sd.ID, Name: sd.Name, Category: SectorCategory(sd.Category)}
		orders := make(map[int]string)
		for j, rd := range sd.Rooms {
			rpath := fmt.Sprintf("%s.rooms[%d]", path, j)
			if other, dup := seenRoom[rd.ID]; dup && rd.ID != "" {
				b.problems.Add(rpath+".id", "duplicate room id %q (already in sector %q)", rd.ID, other)
			}
			seenRoom[rd.ID] = sd.ID
			if other, dup := orders[rd.Order]; dup {
				b.problems.Add(rpath+".order", "order %d already used by room %q", rd.Order, other)
			}
			orders[rd.Order] = rd.ID
			s.Rooms = append(s.Rooms, Room{ID: rd.ID, Name: rd.Name, Order: rd.Order})
		}
		sectors = append(sectors, s)
	}
	return NewTopology(sectors)
}

func (b *builder) leaveTypes(docs []leaveTypeDoc) []LeaveType {
	out := make([]LeaveType, 0, len(docs))
	seen := make(map[string]bool)
	for i, d := range docs {
		path := fmt.Sprintf("leaveTypes[%d]", i)
		if d.Code != "" && seen[d.Code] {
			b.problems.Add(path+".code", "duplicate leave type %q", d.Code)
		}
		seen[d.Code] = true

		lt := LeaveType{
			Code:            d.Code,
			Name:            d.Name,
			AllowHalfDays:   d.AllowHalfDays,
			MaxDurationDays: d.MaxDurationDays,
			MinLeadDays:     d.MinLeadDays,
			Roles:           b.roles(path+".roles", d.Roles),
		}
		if d.CountingMethod != "" {
			m, err := leave.ParseMethod(d.CountingMethod)
			if err != nil {
				b.problems.Add(path+".countingMethod", "%v", err)
			}
			lt.CountingMethod = m
		}
		out = append(out, lt)
	}
	return out
}

// =============================================================================
// RULES
// =============================================================================

func (b *builder) rules(category Category, docs []ruleDoc) []Rule {
	out := make([]Rule, 0, len(docs))
	seen := make(map[string]int)

	for i, d := range docs {
		path := fmt.Sprintf("%s[%d]", category, i)
		if d.Name != "" {
			if first, dup := seen[d.Name]; dup {
				b.problems.Add(path+".name", "duplicate rule name %q (first at %s[%d])", d.Name, category, first)
			} else {
				seen[d.Name] = i
			}
		}

		rt := RuleType(d.Type)
		if d.Type != "" && !category.Allows(rt) {
			b.problems.Add(path+".type", "rule type %s is not allowed in %s", rt, category)
			continue
		}

		r := Rule{
			Name:        d.Name,
			Description: d.Description,
			Type:        rt,
			Priority:    Priority(d.Priority),
			Active:      d.IsActive == nil || *d.IsActive,
		}
		cfgPath := path + ".configuration"
		node := &docs[i].Configuration
		switch rt {
		case TypeLeave:
			r.Config = b.leaveConfig(cfgPath, node)
		case TypeDuty:
			r.Config = b.dutyConfig(cfgPath, node)
		case TypeDutyIncompatibility:
			r.Config = b.incompatibilityConfig(cfgPath, node)
		case TypeAssignment:
			r.Config = b.assignmentConfig(cfgPath, node)
		case TypeSupervisionSource:
			r.Config = b.supervisionSourceConfig(cfgPath, node)
		}
		out = append(out, r)
	}
	return out
}

func (b *builder) leaveConfig(path string, node *yaml.Node) RuleConfig {
	var d leaveRuleDoc
	if !b.decode(path, node, &d) {
		return nil
	}
	b.check(path, &d)

	cfg := LeaveConfig{
		LeaveType:          d.LeaveType,
		Roles:              b.roles(path+".roles", d.Roles),
		MaxConsecutiveDays: d.MaxConsecutiveDays,
		MaxAbsentPercent:   d.MaxAbsentPercent,
		MinLeadDays:        d.MinLeadDays,
	}
	switch {
	case d.CountingMethod != "":
		m, err := leave.ParseMethod(d.CountingMethod)
		if err != nil {
			b.problems.Add(path+".countingMethod", "%v", err)
		}
		cfg.CountingMethod = m
	case d.LeaveType == "":
		b.problems.Add(path+".countingMethod", "is required when leaveType is not set")
	}
	if d.QuotaDays != nil {
		if d.QuotaDays.IsNegative() {
			b.problems.Add(path+".quotaDays", "must be >= 0")
		}
		cfg.QuotaDays = d.QuotaDays
	}
	if d.MaxConsecutiveDays == 0 && d.MaxAbsentPercent == 0 && d.QuotaDays == nil && d.MinLeadDays == 0 {
		b.problems.Add(path, "configure at least one of maxConsecutiveDays, maxAbsentPercent, quotaDays, minLeadDays")
	}
	return cfg
}

func (b *builder) dutyConfig(path string, node *yaml.Node) RuleConfig {
	var d dutyRuleDoc
	if !b.decode(path, node, &d) {
		return nil
	}
	b.check(path, &d)

	if !d.RestDayAfter && d.MinGapDays == 0 && d.IdealGapDays == 0 && d.MaxPerPeriod == 0 && !d.FatigueGate {
		b.problems.Add(path, "configure at least one of restDayAfter, minGapDays, idealGapDays, maxPerPeriod, fatigueGate")
	}
	if d.IdealGapDays > 0 && d.IdealGapDays < d.MinGapDays {
		b.problems.Add(path+".idealGapDays", "must be >= minGapDays (%d)", d.MinGapDays)
	}
	if d.MaxPerPeriod > 0 && d.PeriodDays == 0 {
		b.problems.Add(path+".periodDays", "is required with maxPerPeriod")
	}
	if d.ExceptionalMax > 0 {
		if d.MaxPerPeriod == 0 {
			b.problems.Add(path+".exceptionalMax", "requires maxPerPeriod")
		} else if d.ExceptionalMax < d.MaxPerPeriod {
			b.problems.Add(path+".exceptionalMax", "must be >= maxPerPeriod (%d)", d.MaxPerPeriod)
		}
	}

	return DutyConfig{
		DutyType:       d.DutyType,
		RestDayAfter:   d.RestDayAfter,
		MinGapDays:     d.MinGapDays,
		IdealGapDays:   d.IdealGapDays,
		MaxPerPeriod:   d.MaxPerPeriod,
		PeriodDays:     d.PeriodDays,
		ExceptionalMax: d.ExceptionalMax,
		FatigueGate:    d.FatigueGate,
	}
}

func (b *builder) incompatibilityConfig(path string, node *yaml.Node) RuleConfig {
	var d incompatibilityDoc
	if !b.decode(path, node, &d) {
		return nil
	}
	b.check(path, &d)

	set := make(map[string]bool)
	var kinds []string
	for _, k := range d.IncompatibleWith {
		if k == d.AssignmentType && k != "" {
			b.problems.Add(path+".incompatibleWith", "must not contain assignmentType %q", k)
		}
		if !set[k] {
			set[k] = true
			kinds = append(kinds, k)
		}
	}
	return IncompatibilityConfig{AssignmentType: d.AssignmentType, IncompatibleWith: kinds}
}

func (b *builder) assignmentConfig(path string, node *yaml.Node) RuleConfig {
	var d assignmentRuleDoc
	if !b.decode(path, node, &d) {
		return nil
	}
	b.check(path, &d)

	cfg := AssignmentConfig{
		SectorID:                 d.SectorID,
		MaxConsecutiveSameSector: d.MaxConsecutiveSameSector,
		MaxRoomsPerSupervisor:    d.MaxRoomsPerSupervisor,
		ExceptionalMaxRooms:      d.ExceptionalMaxRooms,
		SupervisionTopology:      SupervisionTopology(d.SupervisionTopology),
		AllowedSectors:           d.AllowedSectors,
		MaxConsultationsPerWeek:  d.MaxConsultationsPerWeek,
		BalanceHalfDays:          d.BalanceHalfDays,
	}
	if len(d.SectorOverrides) > 0 {
		cfg.SectorOverrides = make(map[string]SectorOverride, len(d.SectorOverrides))
		for id, o := range d.SectorOverrides {
			cfg.SectorOverrides[id] = SectorOverride{
				MaxRooms:       o.MaxRooms,
				Topology:       SupervisionTopology(o.Topology),
				AllowedSectors: o.AllowedSectors,
			}
		}
	}

	if d.ExceptionalMaxRooms > 0 && d.ExceptionalMaxRooms < d.MaxRoomsPerSupervisor {
		b.problems.Add(path+".exceptionalMaxRooms", "must be >= maxRoomsPerSupervisor (%d)", d.MaxRoomsPerSupervisor)
	}
	defined := false
	for _, check := range AssignmentChecks {
		defined = defined || cfg.Defines(check)
	}
	if !defined {
		b.problems.Add(path, "configure at least one of maxConsecutiveSameSector, maxRoomsPerSupervisor, supervisionTopology, maxConsultationsPerWeek, balanceHalfDays or a sector override")
	}
	return cfg
}

func (b *builder) supervisionSourceConfig(path string, node *yaml.Node) RuleConfig {
	var d supervisionSourceDoc
	if !b.decode(path, node, &d) {
		return nil
	}
	b.check(path, &d)
	return SupervisionSourceConfig{TargetSectorID: d.TargetSectorID, AllowedSourceRooms: d.AllowedSourceRooms}
}

// =============================================================================
// FATIGUE
// =============================================================================

func (b *builder) fatigue(d *fatigueDoc) FatigueConfig {
	for _, path := range d.unknown {
		b.problems.Add(path, "unknown field")
	}
	val := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	fval := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}

	cfg := FatigueConfig{
		Enabled: d.Enabled != nil && *d.Enabled,
		Points: map[generic.EventKind]int{
			generic.KindGarde:               val(d.Points.Garde),
			generic.KindAstreinte:           val(d.Points.Astreinte),
			generic.KindSupervisionMultiple: val(d.Points.SupervisionMultiple),
			generic.KindPediatrie:           val(d.Points.Pediatrie),
			generic.KindSpecialiteLourde:    val(d.Points.SpecialiteLourde),
		},
		Recovery: map[generic.EventKind]int{
			generic.KindJourOff:        val(d.Recovery.JourOff),
			generic.KindWeekendOff:     val(d.Recovery.WeekendOff),
			generic.KindDemiJourneeOff: val(d.Recovery.DemiJourneeOff),
		},
		Thresholds: Thresholds{Alert: val(d.Thresholds.Alert), Critical: val(d.Thresholds.Critical)},
		Weighting:  Weighting{Equity: fval(d.Weighting.Equity), Fatigue: fval(d.Weighting.Fatigue)},
	}

	if d.Thresholds.Alert != nil && d.Thresholds.Critical != nil && cfg.Thresholds.Alert >= cfg.Thresholds.Critical {
		b.problems.Add("fatigueRules.thresholds", "alert (%d) must be < critical (%d)", cfg.Thresholds.Alert, cfg.Thresholds.Critical)
	}
	if d.Weighting.Equity != nil && d.Weighting.Fatigue != nil {
		sum := cfg.Weighting.Equity + cfg.Weighting.Fatigue
		if math.Abs(sum-1) > weightingEpsilon {
			b.problems.Add("fatigueRules.weighting", "equity + fatigue must equal 1 (±%.3f), got %.4f", weightingEpsilon, sum)
		}
	}
	return cfg
}

// =============================================================================
// CROSS REFERENCES - ConfigurationInconsistencyError
// =============================================================================

func (b *builder) crossReferences(c *Catalog) {
	topo := c.Topology
	sector := func(path, id string) {
		if id != "" && !topo.HasSector(id) {
			b.inconsistencies.Add(path, "unknown sector %q", id)
		}
	}

	for i, r := range c.LeaveRules {
		cfg, ok := r.Config.(LeaveConfig)
		if !ok || cfg.LeaveType == "" {
			continue
		}
		lt, found := c.LeaveType(cfg.LeaveType)
		if !found {
			b.inconsistencies.Add(fmt.Sprintf("leaveRules[%d].configuration.leaveType", i), "unknown leave type %q", cfg.LeaveType)
			continue
		}
		if cfg.CountingMethod == "" {
			cfg.CountingMethod = lt.CountingMethod
			c.LeaveRules[i].Config = cfg
		}
	}

	owners := make(map[string]string)
	targets := make(map[string]string)
	for i, r := range c.AssignmentRules {
		path := fmt.Sprintf("assignmentRules[%d].configuration", i)
		switch cfg := r.Config.(type) {
		case AssignmentConfig:
			sector(path+".sectorId", cfg.SectorID)
			for _, s := range cfg.AllowedSectors {
				sector(path+".allowedSectors", s)
			}
			for _, id := range sortedKeys(cfg.SectorOverrides) {
				sector(path+".sectorOverrides", id)
				for _, s := range cfg.SectorOverrides[id].AllowedSectors {
					sector(path+".sectorOverrides."+id+".allowedSectors", s)
				}
			}
			if !r.Active {
				continue
			}
			for _, check := range AssignmentChecks {
				if !cfg.Defines(check) {
					continue
				}
				key := cfg.SectorID + "/" + string(check)
				if other, dup := owners[key]; dup {
					b.inconsistencies.Add(path, "%s for %s is already defined by rule %q", check, scopeName(cfg.SectorID), other)
					continue
				}
				owners[key] = r.Name
			}
		case SupervisionSourceConfig:
			sector(path+".targetSectorId", cfg.TargetSectorID)
			for _, room := range cfg.AllowedSourceRooms {
				if _, ok := topo.Room(room); !ok {
					b.inconsistencies.Add(path+".allowedSourceRooms", "unknown room %q", room)
				}
			}
			if !r.Active {
				continue
			}
			if other, dup := targets[cfg.TargetSectorID]; dup {
				b.inconsistencies.Add(path+".targetSectorId", "sector %q already has a supervision source rule (%q)", cfg.TargetSectorID, other)
				continue
			}
			targets[cfg.TargetSectorID] = r.Name
		}
	}
}

func scopeName(sectorID string) string {
	if sectorID == "" {
		return "all sectors"
	}
	return fmt.Sprintf("sector %q", sectorID)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
