package core

import (
	"context"
	"time"

	"github.com/flowforge/scheduler/internal/scheduling/application/services/slo"
)

// Check is one named health probe and its outcome.
type Check struct {
	Name    string
	Healthy bool
	Detail  string
}

// Status is the response shape of spec §6's health_status() operation.
type Status struct {
	Timestamp           time.Time
	SolverAvailable     bool
	RepositoryConnected bool
	Version             string
	SafetyRailsEnabled  bool
	SLOLevel            slo.Level
	SLOViolations       []string
	Recommendations     []string
	Healthy             bool
	Checks              []Check
}

// HealthMonitor snapshots SLO classification, repository reachability, and
// solver availability, mirroring the original's HealthMonitor class
// (checks + aggregate healthy bool) rather than being inlined into Service.
type HealthMonitor struct {
	service *Service
	version string
	ping    func(ctx context.Context) error
}

// NewHealthMonitor builds a HealthMonitor bound to svc. ping is an optional
// cheap repository reachability probe; when nil the repository check is
// reported healthy iff a repository was configured at all.
func NewHealthMonitor(svc *Service, version string, ping func(ctx context.Context) error) *HealthMonitor {
	return &HealthMonitor{service: svc, version: version, ping: ping}
}

// Snapshot runs all checks and aggregates them into a Status.
func (h *HealthMonitor) Snapshot(ctx context.Context) Status {
	now := time.Now()
	classification := h.service.gate.Classify(now)

	repoHealthy := h.service.repo != nil
	repoDetail := "no repository configured"
	if h.service.repo != nil {
		repoDetail = "repository configured"
		if h.ping != nil {
			if err := h.ping(ctx); err != nil {
				repoHealthy = false
				repoDetail = err.Error()
			}
		}
	}

	solverHealthy := h.service.solver != nil

	checks := []Check{
		{Name: "solver", Healthy: solverHealthy, Detail: "constraint solver ready"},
		{Name: "repository", Healthy: repoHealthy, Detail: repoDetail},
		{Name: "slo", Healthy: classification.Level != slo.LevelRed, Detail: string(classification.Level)},
	}

	recommendations := recommendationsFor(classification)

	healthy := solverHealthy && repoHealthy && classification.Level != slo.LevelRed

	return Status{
		Timestamp:           now,
		SolverAvailable:     solverHealthy,
		RepositoryConnected: repoHealthy,
		Version:             h.version,
		SafetyRailsEnabled:  true,
		SLOLevel:            classification.Level,
		SLOViolations:       classification.Violations,
		Recommendations:     recommendations,
		Healthy:             healthy,
		Checks:              checks,
	}
}

func recommendationsFor(c slo.Classification) []string {
	switch c.Level {
	case slo.LevelYellow:
		return []string{"monitor latency trend; no action required yet"}
	case slo.LevelOrange:
		return []string{"consider reducing concurrent request volume", "coarsening is active on new requests"}
	case slo.LevelRed:
		return []string{"system is shedding load; investigate solver or repository latency", "coarsening and soft-constraint simplification are both active"}
	default:
		return nil
	}
}
