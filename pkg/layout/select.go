package layout

import (
	"fmt"
	"sort"
	"time"

	"github.com/username/orphanrun/pkg/core"
)

// DayLayout is the accepted form of day bounds
const DayLayout = "2006-01-02"

// DefaultRecentRuns is the number of runs shown when no range is requested
const DefaultRecentRuns = 10

// MostRecent returns the n runs with the largest end height, newest first.
// The input slice is left untouched.
func MostRecent(runs []core.Run, n int) []core.Run {
	sorted := make([]core.Run, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EndHeight > sorted[j].EndHeight
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// DayRange is an inclusive UTC interval of whole days. A zero Start leaves
// the lower end open.
type DayRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in the range
func (r DayRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	return !t.After(r.End)
}

// ParseDayRange parses YYYY-MM-DD bounds into [start 00:00:00, end 23:59:59.999] UTC.
// An empty end defaults to start; an empty start leaves the range open below end.
func ParseDayRange(start, end string) (DayRange, error) {
	if end == "" {
		end = start
	}
	e, err := time.Parse(DayLayout, end)
	if err != nil {
		return DayRange{}, fmt.Errorf("invalid end day %q: %w", end, err)
	}
	r := DayRange{End: e.UTC().Add(24*time.Hour - time.Millisecond)}
	if start == "" {
		return r, nil
	}
	s, err := time.Parse(DayLayout, start)
	if err != nil {
		return DayRange{}, fmt.Errorf("invalid start day %q: %w", start, err)
	}
	r.Start = s.UTC()
	return r, nil
}

// InDayRange returns the runs with at least one orphan or mainchain-window
// block timestamped inside the inclusive day range. Both bounds empty selects
// nothing.
func InDayRange(runs []core.Run, start, end string) ([]core.Run, error) {
	out := []core.Run{}
	if start == "" && end == "" {
		return out, nil
	}
	r, err := ParseDayRange(start, end)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if anyInRange(run.OrphanBlocks, r) || anyInRange(run.MainchainWindow, r) {
			out = append(out, run)
		}
	}
	return out, nil
}

func anyInRange(bs []core.BlockRecord, r DayRange) bool {
	for _, b := range bs {
		if b.HasTimestamp() && r.Contains(b.Timestamp) {
			return true
		}
	}
	return false
}
