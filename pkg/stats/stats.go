// Package stats buckets raw feed rows into per-day and per-hour orphan and
// qubic counters.
package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/username/orphanrun/pkg/feed"
)

// DefaultDays is the window used when no start day is requested
const DefaultDays = 14

const (
	dayKeyLayout  = "2006-01-02"
	hourKeyLayout = "2006-01-02T15:00:00Z"
)

// Sample is the part of a row the counters look at.
// Rows are counted as they appear, duplicates included.
type Sample struct {
	Time     time.Time
	IsOrphan bool
	IsQubic  bool
}

// SamplesFromRows extracts samples from raw rows. Rows without a valid
// timestamp are skipped; the height column is not consulted.
func SamplesFromRows(header []string, rows [][]string) []Sample {
	cols := feed.ResolveColumns(header)
	out := make([]Sample, 0, len(rows))
	for _, row := range rows {
		ts, ok := feed.ParseTimestamp(feed.Cell(row, cols.Timestamp))
		if !ok {
			continue
		}
		out = append(out, Sample{
			Time:     ts,
			IsOrphan: feed.ParseFlag(feed.Cell(row, cols.IsOrphan)),
			IsQubic:  feed.ParseFlag(feed.Cell(row, cols.IsQubic)),
		})
	}
	return out
}

// Bucket is one day or hour of counters. Daily buckets carry Date, hourly
// buckets carry Hour.
type Bucket struct {
	Date        string `json:"date,omitempty"`
	Hour        string `json:"ts,omitempty"`
	Total       int    `json:"total"`
	Orphan      int    `json:"orphan"`
	OrphanQubic int    `json:"orphan_qubic"`
	Qubic       int    `json:"qubic"`
	QubicOrphan int    `json:"qubic_orphan"`

	RateOrphan      float64 `json:"rate_orphan"`
	RateOrphanQubic float64 `json:"rate_orphan_qubic"`
	RateQubic       float64 `json:"rate_qubic"`
	RateQubicOrphan float64 `json:"rate_qubic_orphan"`
}

// Range is an inclusive UTC time window
type Range struct {
	Start time.Time
	End   time.Time
}

// StartDay formats the first day of r
func (r Range) StartDay() string { return r.Start.UTC().Format(dayKeyLayout) }

// EndDay formats the last day of r
func (r Range) EndDay() string { return r.End.UTC().Format(dayKeyLayout) }

func (r Range) contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// ParseRange builds the query window from optional YYYY-MM-DD bounds. A
// missing end is today; a missing start is DefaultDays days back from end.
func ParseRange(start, end string, now time.Time) (Range, error) {
	today := truncateDay(now)
	endDay := today
	if end != "" {
		d, err := time.Parse(dayKeyLayout, end)
		if err != nil {
			return Range{}, fmt.Errorf("invalid end day %q: %w", end, err)
		}
		endDay = d
	}
	startDay := endDay.AddDate(0, 0, -(DefaultDays - 1))
	if start != "" {
		d, err := time.Parse(dayKeyLayout, start)
		if err != nil {
			return Range{}, fmt.Errorf("invalid start day %q: %w", start, err)
		}
		startDay = d
	}
	return Range{Start: startDay, End: endOfDay(endDay)}, nil
}

// LatestWindow is the days-long window ending on the day of the newest sample.
// ok is false when there are no samples.
func LatestWindow(samples []Sample, days int) (Range, bool) {
	var latest time.Time
	for _, s := range samples {
		if s.Time.After(latest) {
			latest = s.Time
		}
	}
	if latest.IsZero() {
		return Range{}, false
	}
	last := truncateDay(latest)
	return Range{Start: last.AddDate(0, 0, -(days - 1)), End: endOfDay(last)}, true
}

// Daily buckets samples inside r by UTC day
func Daily(samples []Sample, r Range) []Bucket {
	return aggregate(samples, r, dayKeyLayout, func(b *Bucket, key string) { b.Date = key })
}

// Hourly buckets samples inside r by UTC hour
func Hourly(samples []Sample, r Range) []Bucket {
	return aggregate(samples, r, hourKeyLayout, func(b *Bucket, key string) { b.Hour = key })
}

func aggregate(samples []Sample, r Range, keyLayout string, setKey func(*Bucket, string)) []Bucket {
	by := make(map[string]*Bucket)
	for _, s := range samples {
		if !r.contains(s.Time) {
			continue
		}
		key := s.Time.UTC().Format(keyLayout)
		b, ok := by[key]
		if !ok {
			b = &Bucket{}
			setKey(b, key)
			by[key] = b
		}
		b.Total++
		if s.IsOrphan {
			b.Orphan++
			if s.IsQubic {
				b.OrphanQubic++
			}
		}
		if s.IsQubic {
			b.Qubic++
			if s.IsOrphan {
				b.QubicOrphan++
			}
		}
	}

	out := make([]Bucket, 0, len(by))
	for _, b := range by {
		b.RateOrphan = rate(b.Orphan, b.Total)
		b.RateOrphanQubic = rate(b.OrphanQubic, b.Total)
		b.RateQubic = rate(b.Qubic, b.Total)
		b.RateQubicOrphan = rate(b.QubicOrphan, b.Total)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Key is the bucket's day or hour
func (b Bucket) Key() string {
	if b.Hour != "" {
		return b.Hour
	}
	return b.Date
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1e4) / 1e4
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(day time.Time) time.Time {
	return day.Add(24*time.Hour - time.Millisecond)
}
