package telemetry

// Params is one simulation parameter set. Swapping mode swaps the whole set
// atomically under the simulator's lock.
type Params struct {
	Mode      string
	LeftBase  [3]int
	RightBase [3]int
	Variation int
}

// Simulation modes.
const (
	ModeNormal   = "normal"
	ModeExercise = "exercise"
	ModeRest     = "rest"
)

// modeParams maps a mode name to its parameter set.
var modeParams = map[string]Params{
	ModeNormal: {
		Mode:      ModeNormal,
		LeftBase:  [3]int{120, 115, 110},
		RightBase: [3]int{125, 120, 115},
		Variation: 30,
	},
	ModeExercise: {
		Mode:      ModeExercise,
		LeftBase:  [3]int{200, 190, 180},
		RightBase: [3]int{210, 200, 190},
		Variation: 50,
	},
	ModeRest: {
		Mode:      ModeRest,
		LeftBase:  [3]int{80, 75, 70},
		RightBase: [3]int{85, 80, 75},
		Variation: 20,
	},
}

// ParamsForMode returns the parameter set for the given mode name and
// whether the name is a known mode.
func ParamsForMode(mode string) (Params, bool) {
	p, ok := modeParams[mode]
	return p, ok
}
