package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidGranularity = errors.New("session granularity must be 15 or 30 minutes")
	ErrInvalidDuration    = errors.New("preference durations must be positive")
)

// SpacingPolicy controls how a task kind's work is spread across days.
type SpacingPolicy struct {
	Kind           TaskKind
	MinDaysBetween int
	MaxPerDay      time.Duration
}

// PenaltyMultipliers scales the soft-constraint penalties in §4.3.
type PenaltyMultipliers struct {
	LateNight     float64
	EarlyMorning  float64
	ContextSwitch float64
}

// Preferences is the user's read-only scheduling configuration.
type Preferences struct {
	Timezone            *time.Location
	WorkdayStartHHMM     string
	WorkdayEndHHMM       string
	BreakCadence         time.Duration // e.g. every 90 minutes
	BreakDuration        time.Duration
	DeepWorkWindows      []PreferredWindow
	NoStudyWindows       []PreferredWindow
	MaxDailyEffortMinutes int
	MaxConcurrentCourses int
	SpacingPolicies      []SpacingPolicy
	PenaltyMultipliers   PenaltyMultipliers
	MinGapBetweenBlocks  time.Duration
	GranularityMinutes   int
}

// Validate enforces granularity ∈ {15,30}, a positive daily effort cap, and
// non-negative break and between-block gap durations.
func (p Preferences) Validate() error {
	if p.GranularityMinutes != 15 && p.GranularityMinutes != 30 {
		return ErrInvalidGranularity
	}
	if p.MaxDailyEffortMinutes <= 0 || p.BreakDuration < 0 || p.MinGapBetweenBlocks < 0 {
		return ErrInvalidDuration
	}
	return nil
}

// DefaultPreferences returns conservative defaults used when the weight
// provider collaborator is unavailable (spec §4.8 step 6 fallback).
func DefaultPreferences(tz *time.Location) Preferences {
	if tz == nil {
		tz = time.UTC
	}
	return Preferences{
		Timezone:              tz,
		WorkdayStartHHMM:      "09:00",
		WorkdayEndHHMM:        "17:00",
		BreakCadence:          90 * time.Minute,
		BreakDuration:         10 * time.Minute,
		MaxDailyEffortMinutes: 240,
		MaxConcurrentCourses:  6,
		PenaltyMultipliers: PenaltyMultipliers{
			LateNight:     3.0,
			EarlyMorning:  1.0,
			ContextSwitch: 2.0,
		},
		MinGapBetweenBlocks: 10 * time.Minute,
		GranularityMinutes:  30,
	}
}
