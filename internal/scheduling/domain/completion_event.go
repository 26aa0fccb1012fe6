package domain

import (
	"time"

	"github.com/google/uuid"
)

// CompletionEvent is produced externally (user action) and consumed to
// compute stability and reward signals; the core treats it as read-only
// history.
type CompletionEvent struct {
	TaskID          uuid.UUID
	ScheduledSlot   time.Time
	CompletedAt     *time.Time
	Skipped         bool
	DelayMinutes    int
	RescheduledCount int
}
