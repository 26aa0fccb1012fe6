package domain

import (
	"errors"
	"sort"
	"time"
)

var (
	ErrInvalidHorizon      = errors.New("time index end must be after start")
	ErrInvalidGranularityG = errors.New("granularity must be 15 or 30 minutes")
)

// TimeIndex discretizes a [Start, End) horizon into contiguous slots of
// duration Granularity. It is a pure function of (timezone, start, end,
// granularity) and lives only for the duration of one scheduling request.
type TimeIndex struct {
	timezone    *time.Location
	start       time.Time
	end         time.Time
	granularity time.Duration
	numSlots    int
}

// NewTimeIndex builds a TimeIndex over [start, end) at the given granularity
// in minutes (15 or 30). Naive (zone-less UTC-looking) inputs are promoted
// to tz by the caller before construction; this constructor only validates
// ordering and granularity.
func NewTimeIndex(tz *time.Location, start, end time.Time, granularityMinutes int) (*TimeIndex, error) {
	if tz == nil {
		tz = time.UTC
	}
	if granularityMinutes != 15 && granularityMinutes != 30 {
		return nil, ErrInvalidGranularityG
	}
	if !end.After(start) {
		return nil, ErrInvalidHorizon
	}
	g := time.Duration(granularityMinutes) * time.Minute
	numSlots := int(end.Sub(start) / g)
	return &TimeIndex{
		timezone:    tz,
		start:       start.In(tz),
		end:         end.In(tz),
		granularity: g,
		numSlots:    numSlots,
	}, nil
}

func (ti *TimeIndex) Timezone() *time.Location  { return ti.timezone }
func (ti *TimeIndex) Start() time.Time          { return ti.start }
func (ti *TimeIndex) End() time.Time             { return ti.end }
func (ti *TimeIndex) Granularity() time.Duration { return ti.granularity }
func (ti *TimeIndex) NumSlots() int              { return ti.numSlots }

// SlotOf rounds dt down to its slot boundary and returns the slot index, or
// ok=false if dt lies outside the horizon.
func (ti *TimeIndex) SlotOf(dt time.Time) (index int, ok bool) {
	dt = dt.In(ti.timezone)
	if dt.Before(ti.start) || !dt.Before(ti.end) {
		return 0, false
	}
	idx := int(dt.Sub(ti.start) / ti.granularity)
	return idx, true
}

// DatetimeOf returns the wall-clock start time of the given slot index.
// Slots are produced by repeatedly adding granularity to Start (the
// "wall-clock consecutive" choice documented in DESIGN.md for the DST
// open question in spec §9).
func (ti *TimeIndex) DatetimeOf(index int) time.Time {
	return ti.start.Add(time.Duration(index) * ti.granularity)
}

// WindowToIndices returns the indices whose slot boundaries fall inside
// [start, end). If inclusiveEnd is true, a slot starting exactly at end is
// also included.
func (ti *TimeIndex) WindowToIndices(start, end time.Time, inclusiveEnd bool) []int {
	var out []int
	for i := 0; i < ti.numSlots; i++ {
		slotStart := ti.DatetimeOf(i)
		if slotStart.Before(start) {
			continue
		}
		if inclusiveEnd {
			if slotStart.After(end) {
				break
			}
		} else if !slotStart.Before(end) {
			break
		}
		out = append(out, i)
	}
	return out
}

// IndicesToWindow returns (start, end) spanning the given indices, where end
// is the slot boundary AFTER the last assigned slot.
func (ti *TimeIndex) IndicesToWindow(indices []int) (TimeSlot, bool) {
	if len(indices) == 0 {
		return TimeSlot{}, false
	}
	min, max := indices[0], indices[0]
	for _, i := range indices[1:] {
		if i < min {
			min = i
		}
		if i > max {
			max = i
		}
	}
	return TimeSlot{Start: ti.DatetimeOf(min), End: ti.DatetimeOf(max + 1)}, true
}

// WorkdayIndices intersects the given date's slots with the workday bounds
// from prefs (HH:MM strings).
func (ti *TimeIndex) WorkdayIndices(date time.Time, prefs Preferences) []int {
	date = date.In(ti.timezone)
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, ti.timezone)
	workStart := addHHMM(dayStart, prefs.WorkdayStartHHMM)
	workEnd := addHHMM(dayStart, prefs.WorkdayEndHHMM)
	return ti.WindowToIndices(workStart, workEnd, false)
}

// BlockedSlots returns the union of all slots intersecting any hard=true event.
func (ti *TimeIndex) BlockedSlots(events []BusyEvent) map[int]bool {
	blocked := make(map[int]bool)
	for _, e := range events {
		if !e.Hard {
			continue
		}
		for i := 0; i < ti.numSlots; i++ {
			slotStart := ti.DatetimeOf(i)
			slotEnd := ti.DatetimeOf(i + 1)
			if slotStart.Before(e.End) && e.Start.Before(slotEnd) {
				blocked[i] = true
			}
		}
	}
	return blocked
}

// FreeSlots returns workday indices minus blocked slots, sorted ascending.
func (ti *TimeIndex) FreeSlots(date time.Time, events []BusyEvent, prefs Preferences) []int {
	blocked := ti.BlockedSlots(events)
	workday := ti.WorkdayIndices(date, prefs)
	free := make([]int, 0, len(workday))
	for _, i := range workday {
		if !blocked[i] {
			free = append(free, i)
		}
	}
	return free
}

// ContiguousBlocks splits a set of indices into maximal runs of consecutive integers.
func ContiguousBlocks(indices []int) [][]int {
	if len(indices) == 0 {
		return nil
	}
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	var blocks [][]int
	run := []int{sorted[0]}
	for _, idx := range sorted[1:] {
		if idx == run[len(run)-1]+1 {
			run = append(run, idx)
			continue
		}
		blocks = append(blocks, run)
		run = []int{idx}
	}
	blocks = append(blocks, run)
	return blocks
}

// SlotContext describes a slot's calendar position.
func (ti *TimeIndex) SlotContext(index int) SlotContext {
	t := ti.DatetimeOf(index)
	hour := t.Hour()
	dow := t.Weekday()
	_, week := t.ISOWeek()
	return SlotContext{
		Hour:        hour,
		Minute:      t.Minute(),
		DayOfWeek:   dow,
		IsWeekend:   dow == time.Saturday || dow == time.Sunday,
		IsMorning:   hour >= 6 && hour < 12,
		IsAfternoon: hour >= 12 && hour < 18,
		IsEvening:   hour >= 18 || hour < 6,
		WeekOfYear:  week,
	}
}

func addHHMM(base time.Time, hhmm string) time.Time {
	h, m := parseHHMM(hhmm)
	return time.Date(base.Year(), base.Month(), base.Day(), h, m, 0, 0, base.Location())
}

func parseHHMM(hhmm string) (hour, minute int) {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return 0, 0
	}
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	return h, m
}
