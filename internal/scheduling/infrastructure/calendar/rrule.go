// Package calendar expands RRULE-recurring busy events into concrete
// per-occurrence domain.BusyEvent rows before they reach the Time Index's
// blocked-slot computation, using github.com/teambition/rrule-go — an
// indirect dependency of the teacher's calendar import path promoted here
// to direct use.
package calendar

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// RecurringEvent is a busy event template plus its RRULE string (RFC 5545,
// e.g. "FREQ=WEEKLY;BYDAY=MO,WE,FR"). Duration is held fixed across
// occurrences; only the start time varies per expanded event.
type RecurringEvent struct {
	ID       string
	Source   domain.EventSource
	Title    string
	Location string
	Movable  bool
	Hard     bool
	DTStart  time.Time
	Duration time.Duration
	RRule    string
}

// Expand produces one domain.BusyEvent per occurrence of rec falling
// within [from, to), with a distinct ID per occurrence so the invariant
// checker's block-overlap logic treats each as independent.
func Expand(rec RecurringEvent, from, to time.Time) ([]domain.BusyEvent, error) {
	option, err := rrule.StrToROption(rec.RRule)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", rec.RRule, err)
	}
	option.Dtstart = rec.DTStart

	rule, err := rrule.NewRRule(*option)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}

	occurrences := rule.Between(from, to, true)
	events := make([]domain.BusyEvent, 0, len(occurrences))
	for i, occ := range occurrences {
		events = append(events, domain.BusyEvent{
			ID:       fmt.Sprintf("%s-%d", rec.ID, i),
			Source:   rec.Source,
			Start:    occ,
			End:      occ.Add(rec.Duration),
			Title:    rec.Title,
			Movable:  rec.Movable,
			Hard:     rec.Hard,
			Location: rec.Location,
		})
	}
	return events, nil
}

// ExpandAll expands every recurring event in recs and flattens the result,
// skipping (not failing) any entry whose RRULE fails to parse; callers
// that need strict validation should call Expand directly per entry.
func ExpandAll(recs []RecurringEvent, from, to time.Time) []domain.BusyEvent {
	var out []domain.BusyEvent
	for _, rec := range recs {
		expanded, err := Expand(rec, from, to)
		if err != nil {
			continue
		}
		out = append(out, expanded...)
	}
	return out
}
