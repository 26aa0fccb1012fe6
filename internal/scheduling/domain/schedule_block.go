package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlockInvalidRange  = errors.New("schedule block end must be after start")
	ErrBlockNotAligned    = errors.New("schedule block is not aligned to the time index granularity")
)

// ScheduleBlock is a contiguous run of slots assigned to one task, produced
// by the solver or the fallback and handed to the repository collaborator
// for persistence.
type ScheduleBlock struct {
	TaskID                  uuid.UUID
	Start                   time.Time
	End                     time.Time
	UtilityScore            float64
	CompletionProbability   float64
	PenaltiesApplied        map[string]float64
	Alternatives            []TimeSlot
}

// DurationMinutes returns (End-Start) in minutes.
func (b ScheduleBlock) DurationMinutes() int {
	return int(b.End.Sub(b.Start).Minutes())
}

// Validate enforces end > start and granularity alignment against the
// supplied index.
func (b ScheduleBlock) Validate(ti *TimeIndex) error {
	if !b.End.After(b.Start) {
		return ErrBlockInvalidRange
	}
	if ti != nil {
		g := ti.Granularity()
		if b.Start.Sub(ti.Start())%g != 0 || b.End.Sub(b.Start)%g != 0 {
			return ErrBlockNotAligned
		}
	}
	return nil
}

// OverlapsWith reports whether two blocks share any time, using the
// max(start)>=min(end) rule from spec §4.5.
func (b ScheduleBlock) OverlapsWith(other ScheduleBlock) bool {
	overlapStart := b.Start
	if other.Start.After(overlapStart) {
		overlapStart = other.Start
	}
	overlapEnd := b.End
	if other.End.Before(overlapEnd) {
		overlapEnd = other.End
	}
	return overlapStart.Before(overlapEnd)
}
