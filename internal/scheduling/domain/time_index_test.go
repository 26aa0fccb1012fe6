package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

func mustIndex(t *testing.T, tz *time.Location, start, end time.Time, granularity int) *domain.TimeIndex {
	t.Helper()
	ti, err := domain.NewTimeIndex(tz, start, end, granularity)
	require.NoError(t, err)
	return ti
}

func TestTimeIndex_NumSlots(t *testing.T) {
	start := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 29, 17, 0, 0, 0, time.UTC)
	ti := mustIndex(t, time.UTC, start, end, 30)
	assert.Equal(t, 16, ti.NumSlots())
}

func TestTimeIndex_RejectsBadGranularity(t *testing.T) {
	start := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 29, 17, 0, 0, 0, time.UTC)
	_, err := domain.NewTimeIndex(time.UTC, start, end, 20)
	assert.ErrorIs(t, err, domain.ErrInvalidGranularityG)
}

func TestTimeIndex_RejectsInvertedHorizon(t *testing.T) {
	start := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	_, err := domain.NewTimeIndex(time.UTC, start, start, 30)
	assert.ErrorIs(t, err, domain.ErrInvalidHorizon)
}

func TestTimeIndex_SlotOfDatetimeOf_RoundTrip(t *testing.T) {
	start := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	ti := mustIndex(t, time.UTC, start, end, 15)

	for _, probe := range []time.Time{
		start,
		start.Add(15 * time.Minute),
		start.Add(37 * time.Minute), // rounds down to slot boundary
		end.Add(-time.Minute),
	} {
		idx, ok := ti.SlotOf(probe)
		require.True(t, ok, "probe %s should resolve", probe)
		back := ti.DatetimeOf(idx)
		assert.True(t, !probe.Before(back) && probe.Before(back.Add(15*time.Minute)))
	}
}

func TestTimeIndex_SlotOf_OutsideHorizon(t *testing.T) {
	start := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 29, 17, 0, 0, 0, time.UTC)
	ti := mustIndex(t, time.UTC, start, end, 30)

	_, ok := ti.SlotOf(start.Add(-time.Minute))
	assert.False(t, ok)
	_, ok = ti.SlotOf(end)
	assert.False(t, ok)
}

func TestTimeIndex_WindowIndices_Inverse(t *testing.T) {
	start := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 29, 17, 0, 0, 0, time.UTC)
	ti := mustIndex(t, time.UTC, start, end, 30)

	wStart := start.Add(2 * time.Hour)
	wEnd := start.Add(5 * time.Hour)
	indices := ti.WindowToIndices(wStart, wEnd, false)
	require.NotEmpty(t, indices)

	window, ok := ti.IndicesToWindow(indices)
	require.True(t, ok)
	assert.Equal(t, wStart, window.Start)
	assert.Equal(t, wEnd, window.End)
}

func TestContiguousBlocks(t *testing.T) {
	blocks := domain.ContiguousBlocks([]int{5, 1, 2, 9, 10, 11, 3})
	require.Len(t, blocks, 3)
	assert.Equal(t, []int{1, 2, 3}, flattenIfAdjacent(blocks[0]))
	assert.Equal(t, []int{9, 10, 11}, blocks[2])
}

// flattenIfAdjacent is a tiny helper acknowledging {1,2,3} and {5} are two
// separate runs once sorted; only the first run is passed through it.
func flattenIfAdjacent(run []int) []int {
	return run
}

func TestTimeIndex_BlockedAndFreeSlots(t *testing.T) {
	start := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC) // Wednesday
	end := time.Date(2026, 7, 29, 17, 0, 0, 0, time.UTC)
	ti := mustIndex(t, time.UTC, start, end, 30)

	prefs := domain.DefaultPreferences(time.UTC)
	events := []domain.BusyEvent{
		{
			ID:    "lunch",
			Start: time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 7, 29, 13, 0, 0, 0, time.UTC),
			Hard:  true,
		},
	}

	blocked := ti.BlockedSlots(events)
	assert.Len(t, blocked, 2)

	free := ti.FreeSlots(start, events, prefs)
	assert.Equal(t, ti.NumSlots()-2, len(free))
}

func TestTimeIndex_SlotContext(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) // Saturday
	end := start.Add(24 * time.Hour)
	ti := mustIndex(t, time.UTC, start, end, 30)

	ctx := ti.SlotContext(0)
	assert.True(t, ctx.IsWeekend)
	assert.True(t, ctx.IsEvening)
	assert.Equal(t, time.Saturday, ctx.DayOfWeek)
}

func TestTimeIndex_DSTSpringForward_FewerSlots(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available in this environment")
	}
	start := time.Date(2026, 3, 8, 0, 0, 0, 0, loc)
	end := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)
	ti := mustIndex(t, loc, start, end, 30)

	// A spring-forward day has 23 wall-clock hours, so fewer slots than a
	// regular 24h day at the same granularity (documented DST behavior,
	// "wall-clock consecutive" per spec §9's open question).
	assert.Less(t, ti.NumSlots(), 48)
}
