// Package slo implements the real-time performance supervisor of spec
// §4.7: a bounded ring of per-request metrics, GREEN/YELLOW/ORANGE/RED
// classification, and the coarsening parameters other components consume.
// Grounded on the teacher's gobreaker-wrapped executor
// (internal/engine/runtime/executor.go), which tracks a similar rolling
// health signal to gate admission — generalized here from a binary
// open/closed breaker into spec's four-level classification with graduated
// coarsening severity.
package slo

import (
	"sync"
	"time"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// Level is the tagged variant for SLO health.
type Level string

const (
	LevelGreen  Level = "green"
	LevelYellow Level = "yellow"
	LevelOrange Level = "orange"
	LevelRed    Level = "red"
)

// Strategy is the tagged variant for a coarsening lever.
type Strategy string

const (
	StrategyLimitIterations   Strategy = "limit_iterations"
	StrategyDisableLearning   Strategy = "disable_learning"
	StrategyIncreaseGranularity Strategy = "increase_granularity"
	StrategyReduceHorizon     Strategy = "reduce_horizon"
	StrategySimplifyConstraints Strategy = "simplify_constraints"
)

// RequestMetric is one entry in the sliding ring, spec §4.7.
type RequestMetric struct {
	Timestamp          time.Time
	LatencyMS          int64
	MemoryMB           float64
	CPUPercent         float64
	ConcurrentRequests int
	Feasible           bool
	BlocksScheduled    int
	TotalTasks         int
	Error              string
}

// CoarseningParams is the map of levers emitted per classification.
type CoarseningParams struct {
	MaxSolveTimeSeconds int
	DisableMLFeatures   bool
	UseSimpleUtilities  bool
	ForceGranularityMinutes int
	MaxHorizonDays      int
	DisableSoftConstraints bool
	Strategies          []Strategy
}

// Classification is the result of a health check.
type Classification struct {
	Level      Level
	Violations []string
	Coarsening CoarseningParams
}

// Config tunes the gate's windows and thresholds; zero-value Config falls
// back to spec §4.7's defaults via NewGate.
type Config struct {
	RingCapacity         int
	LatencyWindow        time.Duration
	QualityWindow        time.Duration
	MaxConcurrentOnRed   int
	P95ThresholdMS       int64
	P99ThresholdMS       int64
	FeasibilityThreshold float64
	BlocksRatioThreshold float64
}

// DefaultConfig matches spec §4.7's literal thresholds.
func DefaultConfig() Config {
	return Config{
		RingCapacity:         1000,
		LatencyWindow:        5 * time.Minute,
		QualityWindow:        10 * time.Minute,
		MaxConcurrentOnRed:   5,
		P95ThresholdMS:       8000,
		P99ThresholdMS:       15000,
		FeasibilityThreshold: 0.95,
		BlocksRatioThreshold: 0.80,
	}
}

// Gate is the process-wide singleton spec §9 calls out as one of the few
// confined-state objects; the core is handed one instance at construction
// and never reaches a package-level global.
type Gate struct {
	mu                 sync.Mutex
	cfg                Config
	ring               []RequestMetric
	ringStart          int
	ringLen            int
	activeRequests     map[string]time.Time
	consecutiveViolations int
}

// NewGate builds a Gate; a zero Config is replaced with DefaultConfig.
func NewGate(cfg Config) *Gate {
	if cfg.RingCapacity <= 0 {
		cfg = DefaultConfig()
	}
	return &Gate{
		cfg:            cfg,
		ring:           make([]RequestMetric, cfg.RingCapacity),
		activeRequests: make(map[string]time.Time),
	}
}

// PreCheckResult is returned by CheckBeforeRequest on admission.
type PreCheckResult struct {
	RequestID             string
	Level                 Level
	Coarsening            CoarseningParams
	AutoCoarseningEnabled bool
}

// CheckBeforeRequest classifies current health and either admits the
// request (tracking its start time) or rejects it with a SchedulerError of
// kind SLOViolation when RED and at the concurrency ceiling.
func (g *Gate) CheckBeforeRequest(requestID string, now time.Time) (*PreCheckResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	classification := g.classifyLocked(now)

	if classification.Level == LevelRed && len(g.activeRequests) >= g.cfg.MaxConcurrentOnRed {
		return nil, domain.NewSchedulerError(domain.KindSLOViolation, "SLO gate is RED and at max concurrent requests").
			WithContext("slo_level", string(classification.Level)).
			WithContext("concurrent_requests", len(g.activeRequests))
	}

	g.activeRequests[requestID] = now

	return &PreCheckResult{
		RequestID:             requestID,
		Level:                 classification.Level,
		Coarsening:            classification.Coarsening,
		AutoCoarseningEnabled: classification.Level != LevelGreen,
	}, nil
}

// RecordCompletion removes the request from the active map, computes
// latency, and appends a RequestMetric to the ring.
func (g *Gate) RecordCompletion(requestID string, end time.Time, feasible bool, blocksScheduled, totalTasks int, errMsg string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	start, tracked := g.activeRequests[requestID]
	delete(g.activeRequests, requestID)

	latencyMS := int64(0)
	if tracked {
		latencyMS = end.Sub(start).Milliseconds()
	}

	g.pushLocked(RequestMetric{
		Timestamp:          end,
		LatencyMS:          latencyMS,
		ConcurrentRequests: len(g.activeRequests),
		Feasible:           feasible,
		BlocksScheduled:    blocksScheduled,
		TotalTasks:         totalTasks,
		Error:              errMsg,
	})
}

func (g *Gate) pushLocked(m RequestMetric) {
	idx := (g.ringStart + g.ringLen) % len(g.ring)
	g.ring[idx] = m
	if g.ringLen < len(g.ring) {
		g.ringLen++
	} else {
		g.ringStart = (g.ringStart + 1) % len(g.ring)
	}
}

// Classify runs a fresh classification without admitting a request — used
// by health_status() and by tests.
func (g *Gate) Classify(now time.Time) Classification {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.classifyLocked(now)
}

func (g *Gate) classifyLocked(now time.Time) Classification {
	latencySamples := g.windowLocked(now, g.cfg.LatencyWindow)
	qualitySamples := g.windowLocked(now, g.cfg.QualityWindow)

	p50, p95, p99 := percentiles(latencySamples)
	feasibilityRate := feasibilityRate(qualitySamples)
	blocksRatio := blocksRatio(qualitySamples)

	var violations []string
	if p95 > g.cfg.P95ThresholdMS {
		violations = append(violations, "p95_latency")
	}
	p99Over := p99 > g.cfg.P99ThresholdMS
	if p99Over {
		violations = append(violations, "p99_latency")
	}
	if feasibilityRate < g.cfg.FeasibilityThreshold {
		violations = append(violations, "feasibility_rate")
	}
	if blocksRatio < g.cfg.BlocksRatioThreshold {
		violations = append(violations, "blocks_scheduled_ratio")
	}
	_ = p50

	var level Level
	switch {
	case len(violations) == 0:
		level = LevelGreen
	case len(violations) == 1 && !p99Over:
		level = LevelYellow
	case len(violations) <= 2 || p99Over:
		level = LevelOrange
	default:
		level = LevelRed
	}

	if level == LevelGreen {
		g.consecutiveViolations = 0
	} else {
		g.consecutiveViolations++
	}

	return Classification{
		Level:      level,
		Violations: violations,
		Coarsening: coarseningFor(level, g.consecutiveViolations),
	}
}

func (g *Gate) windowLocked(now time.Time, window time.Duration) []RequestMetric {
	cutoff := now.Add(-window)
	out := make([]RequestMetric, 0, g.ringLen)
	for i := 0; i < g.ringLen; i++ {
		idx := (g.ringStart + i) % len(g.ring)
		m := g.ring[idx]
		if !m.Timestamp.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

func coarseningFor(level Level, consecutive int) CoarseningParams {
	params := CoarseningParams{}
	switch level {
	case LevelGreen:
		return params
	case LevelYellow:
		params.Strategies = []Strategy{StrategyLimitIterations, StrategyDisableLearning}
	case LevelOrange:
		params.Strategies = []Strategy{StrategyLimitIterations, StrategyDisableLearning, StrategyIncreaseGranularity, StrategyReduceHorizon}
	case LevelRed:
		params.Strategies = []Strategy{StrategyLimitIterations, StrategyDisableLearning, StrategyIncreaseGranularity, StrategyReduceHorizon, StrategySimplifyConstraints}
	}

	for _, s := range params.Strategies {
		switch s {
		case StrategyLimitIterations:
			params.MaxSolveTimeSeconds = maxInt(1, 10-2*consecutive)
		case StrategyDisableLearning:
			params.DisableMLFeatures = true
			params.UseSimpleUtilities = true
		case StrategyIncreaseGranularity:
			params.ForceGranularityMinutes = 60
		case StrategyReduceHorizon:
			params.MaxHorizonDays = maxInt(1, 3-consecutive)
		case StrategySimplifyConstraints:
			params.DisableSoftConstraints = true
		}
	}
	return params
}

func percentiles(samples []RequestMetric) (p50, p95, p99 int64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	latencies := make([]int64, len(samples))
	for i, s := range samples {
		latencies[i] = s.LatencyMS
	}
	sortInt64s(latencies)
	return percentileAt(latencies, 0.50), percentileAt(latencies, 0.95), percentileAt(latencies, 0.99)
}

func percentileAt(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func sortInt64s(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func feasibilityRate(samples []RequestMetric) float64 {
	if len(samples) == 0 {
		return 1.0
	}
	feasible := 0
	for _, s := range samples {
		if s.Feasible {
			feasible++
		}
	}
	return float64(feasible) / float64(len(samples))
}

func blocksRatio(samples []RequestMetric) float64 {
	var scheduled, total int
	for _, s := range samples {
		scheduled += s.BlocksScheduled
		total += s.TotalTasks
	}
	if total == 0 {
		return 1.0
	}
	return float64(scheduled) / float64(total)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
