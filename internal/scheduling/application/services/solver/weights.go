package solver

// Weights holds the per-soft-constraint multipliers of spec §4.3's penalty
// table. DefaultWeights matches the table's "Default weight" column exactly;
// a WeightProvider collaborator may override some or all of these per user.
type Weights struct {
	ContextSwitch float64
	AvoidWindow   float64
	LateNight     float64
	EarlyMorning  float64
	Weekend       float64
	Fragmentation float64
	Fairness      float64
	Spacing       float64
	Inertia       float64
}

// DefaultWeights returns the static fallback weights used when the weight
// provider collaborator is unavailable (spec §4.8 step 6).
func DefaultWeights() Weights {
	return Weights{
		ContextSwitch: 2.0,
		AvoidWindow:   1.5,
		LateNight:     3.0,
		EarlyMorning:  1.0,
		Weekend:       1.0,
		Fragmentation: 1.2,
		Fairness:      1.0,
		Spacing:       2.0,
		Inertia:       5.0,
	}
}
