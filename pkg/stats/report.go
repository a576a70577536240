package stats

import "time"

// Granularity selects day or hour buckets
type Granularity string

const (
	ByDay  Granularity = "daily"
	ByHour Granularity = "hourly"
)

// Report is the response body of the counter endpoints
type Report struct {
	GeneratedAt int64    `json:"ts"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Data        []Bucket `json:"data"`
}

// Build aggregates samples for the requested bounds. With no bounds and no
// data in the default window it falls back to the DefaultDays ending on the
// newest sample.
func Build(samples []Sample, start, end string, g Granularity, now time.Time) (*Report, error) {
	r, err := ParseRange(start, end, now)
	if err != nil {
		return nil, err
	}
	agg := Daily
	if g == ByHour {
		agg = Hourly
	}

	data := agg(samples, r)
	if start == "" && end == "" && len(data) == 0 {
		if fb, ok := LatestWindow(samples, DefaultDays); ok {
			r = fb
			data = agg(samples, r)
		}
	}
	return &Report{
		GeneratedAt: now.UnixMilli(),
		Start:       r.StartDay(),
		End:         r.EndDay(),
		Data:        data,
	}, nil
}
