package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReplanScope is the tagged variant for how much the optimizer may change
// an existing schedule, from most to least conservative.
type ReplanScope string

const (
	ScopeMinimal      ReplanScope = "minimal"
	ScopeConservative ReplanScope = "conservative"
	ScopeModerate     ReplanScope = "moderate"
	ScopeAggressive   ReplanScope = "aggressive"
	ScopeComplete     ReplanScope = "complete"
)

// ReplanConstraint governs the scope of changes a replan may make to an
// existing schedule.
type ReplanConstraint struct {
	EarliestChange      *time.Time
	LatestChange        *time.Time
	FrozenPeriods        []TimeSlot
	ProtectedTaskIDs     []uuid.UUID
	ProtectedBlockTaskIDs []uuid.UUID // identifies protected blocks by task id (blocks have no independent id in this model)
	MaxBlocksToMove      int // 0 means unbounded (COMPLETE)
	MaxMoveDistanceHours float64
	MinStabilityRatio    float64
	MaxDisruptionScore   float64
	PreserveAdjacency    bool
}

// scopePreset holds the unmerged, scope-only defaults from spec §4.6's table.
type scopePreset struct {
	maxBlocksToMove      int
	maxMoveDistanceHours float64
	minStabilityRatio    float64
	maxDisruption        float64
	preserveAdjacency    bool
}

var scopePresets = map[ReplanScope]scopePreset{
	ScopeMinimal:      {2, 1, 0.95, 20, true},
	ScopeConservative: {5, 4, 0.85, 40, true},
	ScopeModerate:     {10, 12, 0.70, 60, true},
	ScopeAggressive:   {20, 48, 0.50, 80, false},
	ScopeComplete:     {0, 0, 0.0, 100, false}, // 0 encodes "unbounded" for both move fields
}

// unbounded sentinels used when rendering a preset's ∞ fields for COMPLETE.
const unboundedBlocks = 1 << 30

var unboundedHours = 24.0 * 365 * 100

// ReplanOverrides carries user-supplied field overrides for a replan
// request. Pointer fields distinguish "not specified" from the zero value,
// since a user may legitimately ask for PreserveAdjacency=false.
type ReplanOverrides struct {
	EarliestChange        *time.Time
	LatestChange          *time.Time
	FrozenPeriods         []TimeSlot
	ProtectedTaskIDs      []uuid.UUID
	ProtectedBlockTaskIDs []uuid.UUID
	MaxBlocksToMove       *int
	MaxMoveDistanceHours  *float64
	MinStabilityRatio     *float64
	MaxDisruptionScore    *float64
	PreserveAdjacency     *bool
}

// ResolveReplanConstraint merges a scope preset with user overrides: user
// overrides win per-field, stability ratios combine as max, disruption
// budgets as min (spec §4.6).
func ResolveReplanConstraint(scope ReplanScope, overrides *ReplanOverrides) ReplanConstraint {
	preset, ok := scopePresets[scope]
	if !ok {
		preset = scopePresets[ScopeModerate]
	}

	maxBlocks := preset.maxBlocksToMove
	maxHours := preset.maxMoveDistanceHours
	if scope == ScopeComplete {
		maxBlocks = unboundedBlocks
		maxHours = unboundedHours
	}

	result := ReplanConstraint{
		MaxBlocksToMove:      maxBlocks,
		MaxMoveDistanceHours: maxHours,
		MinStabilityRatio:    preset.minStabilityRatio,
		MaxDisruptionScore:   preset.maxDisruption,
		PreserveAdjacency:    preset.preserveAdjacency,
	}

	if overrides == nil {
		return result
	}

	if overrides.MaxBlocksToMove != nil {
		result.MaxBlocksToMove = *overrides.MaxBlocksToMove
	}
	if overrides.MaxMoveDistanceHours != nil {
		result.MaxMoveDistanceHours = *overrides.MaxMoveDistanceHours
	}
	if overrides.MinStabilityRatio != nil {
		result.MinStabilityRatio = maxFloat(result.MinStabilityRatio, *overrides.MinStabilityRatio)
	}
	if overrides.MaxDisruptionScore != nil {
		result.MaxDisruptionScore = minFloat(result.MaxDisruptionScore, *overrides.MaxDisruptionScore)
	}
	if overrides.PreserveAdjacency != nil {
		result.PreserveAdjacency = *overrides.PreserveAdjacency
	}
	result.EarliestChange = overrides.EarliestChange
	result.LatestChange = overrides.LatestChange
	result.FrozenPeriods = overrides.FrozenPeriods
	result.ProtectedTaskIDs = overrides.ProtectedTaskIDs
	result.ProtectedBlockTaskIDs = overrides.ProtectedBlockTaskIDs

	return result
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
