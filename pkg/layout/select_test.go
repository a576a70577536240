package layout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/orphanrun/pkg/core"
)

func runAt(start, end int64, ts ...time.Time) core.Run {
	r := core.Run{StartHeight: start, EndHeight: end}
	for i, t := range ts {
		r.OrphanBlocks = append(r.OrphanBlocks, core.BlockRecord{Height: start + int64(i), IsOrphan: true, Timestamp: t})
	}
	return r
}

func TestMostRecent(t *testing.T) {
	runs := []core.Run{runAt(10, 12), runAt(50, 53), runAt(30, 31), runAt(70, 72)}

	got := MostRecent(runs, 2)
	require.Len(t, got, 2)
	assert.Equal(t, int64(72), got[0].EndHeight)
	assert.Equal(t, int64(53), got[1].EndHeight)

	assert.Equal(t, int64(12), runs[0].EndHeight, "input order is preserved")
	assert.Len(t, MostRecent(runs, 10), 4)
	assert.Empty(t, MostRecent(nil, 3))
}

func TestInDayRange(t *testing.T) {
	lastMilli := time.Date(2024, 5, 1, 23, 59, 59, 999_000_000, time.UTC)
	nextDay := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 4, 30, 23, 59, 59, 0, time.UTC)

	inside := runAt(1, 3, lastMilli)
	after := runAt(5, 7, nextDay)
	earlier := runAt(9, 11, before)
	viaWindow := core.Run{
		StartHeight:     20,
		EndHeight:       22,
		OrphanBlocks:    []core.BlockRecord{{Height: 20, IsOrphan: true}},
		MainchainWindow: []core.BlockRecord{{Height: 19, Timestamp: lastMilli.Add(-time.Hour)}},
	}
	runs := []core.Run{inside, after, earlier, viaWindow}

	got, err := InDayRange(runs, "2024-05-01", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].StartHeight)
	assert.Equal(t, int64(20), got[1].StartHeight)

	got, err = InDayRange(runs, "2024-04-30", "2024-05-02")
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = InDayRange(runs, "", "")
	require.NoError(t, err)
	assert.Empty(t, got)

	// no start: everything up to the end of the end day
	got, err = InDayRange(runs, "", "2024-05-01")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 9, 20}, []int64{got[0].StartHeight, got[1].StartHeight, got[2].StartHeight})

	_, err = InDayRange(runs, "2024/05/01", "")
	assert.Error(t, err)
}

func TestParseDayRange(t *testing.T) {
	r, err := ParseDayRange("2024-05-01", "2024-05-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2024, 5, 3, 23, 59, 59, 999_000_000, time.UTC), r.End)
	assert.True(t, r.Contains(r.End))
	assert.False(t, r.Contains(r.End.Add(time.Millisecond)))

	open, err := ParseDayRange("", "2024-05-02")
	require.NoError(t, err)
	assert.True(t, open.Start.IsZero())
	assert.True(t, open.Contains(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, open.Contains(time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)))
}

func TestInDayRange_OpenStart(t *testing.T) {
	older := runAt(1, 3, time.Date(2024, 4, 20, 8, 0, 0, 0, time.UTC))
	newer := runAt(5, 7, time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC))
	later := runAt(9, 11, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC))

	got, err := InDayRange([]core.Run{older, newer, later}, "", "2024-05-02")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].StartHeight)
	assert.Equal(t, int64(5), got[1].StartHeight)
}
