package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidTaskDuration = errors.New("estimated minutes must be >= min block minutes >= 1")
	ErrInvalidTaskBlock    = errors.New("max block minutes must be >= min block minutes")
	ErrPastDeadline        = errors.New("deadline must be in the future")
	ErrSelfPrerequisite    = errors.New("task cannot be its own prerequisite")
)

// TaskKind is the tagged variant for what a task represents.
type TaskKind string

const (
	TaskKindStudy      TaskKind = "study"
	TaskKindAssignment TaskKind = "assignment"
	TaskKindExam       TaskKind = "exam"
	TaskKindReading    TaskKind = "reading"
	TaskKindProject    TaskKind = "project"
	TaskKindAdmin      TaskKind = "admin"
)

// PreferredWindow names a recurring window of a day a task likes to run in,
// e.g. {Monday, 14:00, 16:00} for a deep-work slot.
type PreferredWindow struct {
	DayOfWeek time.Weekday
	StartHHMM string // "HH:MM"
	EndHHMM   string
}

// Task is a unit of work the scheduler may place into one or more slots.
// Borrowed read-only from the repository collaborator for the duration of a request.
type Task struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Title             string
	Kind              TaskKind
	EstimatedMinutes  int
	MinBlockMinutes   int
	MaxBlockMinutes   int
	Deadline          *time.Time
	EarliestStart     *time.Time
	PreferredWindows  []PreferredWindow
	AvoidWindows      []PreferredWindow
	Fixed             bool
	Parent            *uuid.UUID
	Prerequisites     []uuid.UUID
	Weight            float64
	Course            string
	Tags              []string
	PinnedSlots       []TimeSlot
	CreatedAt         time.Time
}

// Validate checks the invariants from §3: estimated >= min >= 1; max >= min;
// deadline (if set) in the future; no self-prerequisite.
func (t Task) Validate(now time.Time) error {
	if t.MinBlockMinutes < 1 || t.EstimatedMinutes < t.MinBlockMinutes {
		return ErrInvalidTaskDuration
	}
	if t.MaxBlockMinutes > 0 && t.MaxBlockMinutes < t.MinBlockMinutes {
		return ErrInvalidTaskBlock
	}
	if t.Deadline != nil && !t.Deadline.After(now) {
		return ErrPastDeadline
	}
	for _, p := range t.Prerequisites {
		if p == t.ID {
			return ErrSelfPrerequisite
		}
	}
	return nil
}

// MaxSplits reads the "max_splits:N" tag if present, defaulting to 3.
func (t Task) MaxSplits() int {
	const prefix = "max_splits:"
	for _, tag := range t.Tags {
		if len(tag) > len(prefix) && tag[:len(prefix)] == prefix {
			n := 0
			for _, ch := range tag[len(prefix):] {
				if ch < '0' || ch > '9' {
					return 3
				}
				n = n*10 + int(ch-'0')
			}
			if n > 0 {
				return n
			}
		}
	}
	return 3
}

// HasPrerequisite reports whether id is among the task's prerequisites.
func (t Task) HasPrerequisite(id uuid.UUID) bool {
	for _, p := range t.Prerequisites {
		if p == id {
			return true
		}
	}
	return false
}
