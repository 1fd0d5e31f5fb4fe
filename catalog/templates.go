package catalog

import "github.com/warp/planning-engine/generic"

// Fatigue presets by establishment profile. Weighting defaults to an even
// split; catalogs override it explicitly when needed.
var fatigueTemplates = map[string]FatigueConfig{
	// Classic team
	"STANDARD": fatiguePreset(30, 10, 15, 10, 20, 15, 30, 8, 50, 80),
	// Large university hospital
	"INTENSIF": fatiguePreset(35, 12, 20, 15, 25, 12, 25, 6, 60, 90),
	// Small structure
	"ALLEGE": fatiguePreset(25, 8, 10, 8, 15, 20, 40, 10, 40, 70),
	// Children's hospital
	"PEDIATRIE": fatiguePreset(35, 12, 18, 15, 25, 18, 35, 9, 45, 75),
}

func fatiguePreset(garde, astreinte, supervision, pediatrie, lourde, jourOff, weekendOff, demiJournee, alert, critical int) FatigueConfig {
	return FatigueConfig{
		Enabled: true,
		Points: map[generic.EventKind]int{
			generic.KindGarde:               garde,
			generic.KindAstreinte:           astreinte,
			generic.KindSupervisionMultiple: supervision,
			generic.KindPediatrie:           pediatrie,
			generic.KindSpecialiteLourde:    lourde,
		},
		Recovery: map[generic.EventKind]int{
			generic.KindJourOff:        jourOff,
			generic.KindWeekendOff:     weekendOff,
			generic.KindDemiJourneeOff: demiJournee,
		},
		Thresholds: Thresholds{Alert: alert, Critical: critical},
		Weighting:  Weighting{Equity: 0.5, Fatigue: 0.5},
	}
}

// FatigueTemplate returns a copy of a named preset.
func FatigueTemplate(name string) (FatigueConfig, bool) {
	tpl, ok := fatigueTemplates[name]
	if !ok {
		return FatigueConfig{}, false
	}
	out := tpl
	out.Points = make(map[generic.EventKind]int, len(tpl.Points))
	for k, v := range tpl.Points {
		out.Points[k] = v
	}
	out.Recovery = make(map[generic.EventKind]int, len(tpl.Recovery))
	for k, v := range tpl.Recovery {
		out.Recovery[k] = v
	}
	return out, true
}

// FatigueTemplateNames lists the presets.
func FatigueTemplateNames() []string {
	return []string{"STANDARD", "INTENSIF", "ALLEGE", "PEDIATRIE"}
}
