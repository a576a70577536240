package core

import (
	"encoding/json"
	"math"
	"time"
)

// TimestampLayout is the wire form of block timestamps (UTC, millisecond precision)
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// BlockRecord represents one observed block, mainchain or orphaned
type BlockRecord struct {
	Height     int64
	Hash       string
	Timestamp  time.Time // zero when the feed value was absent or unparseable
	IsOrphan   bool
	IsQubic    bool
	Difficulty float64 // NaN when the feed value was unparseable
	ExtraNonce string
}

// HasTimestamp reports whether the record carries a usable timestamp
func (b BlockRecord) HasTimestamp() bool {
	return !b.Timestamp.IsZero()
}

// TimestampString returns the wire form of the timestamp, or "" when absent
func (b BlockRecord) TimestampString() string {
	if !b.HasTimestamp() {
		return ""
	}
	return b.Timestamp.UTC().Format(TimestampLayout)
}

type blockRecordJSON struct {
	Height     int64    `json:"height"`
	Hash       string   `json:"hash"`
	Timestamp  string   `json:"ts,omitempty"`
	ExtraNonce string   `json:"extra_nonce,omitempty"`
	IsQubic    bool     `json:"is_qubic"`
	IsOrphan   bool     `json:"is_orphan"`
	Difficulty *float64 `json:"difficulty"`
}

// MarshalJSON encodes the record with the field names the visualizer consumes.
// A NaN difficulty is encoded as null.
func (b BlockRecord) MarshalJSON() ([]byte, error) {
	out := blockRecordJSON{
		Height:     b.Height,
		Hash:       b.Hash,
		Timestamp:  b.TimestampString(),
		ExtraNonce: b.ExtraNonce,
		IsQubic:    b.IsQubic,
		IsOrphan:   b.IsOrphan,
	}
	if !math.IsNaN(b.Difficulty) && !math.IsInf(b.Difficulty, 0) {
		d := b.Difficulty
		out.Difficulty = &d
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON
func (b *BlockRecord) UnmarshalJSON(data []byte) error {
	var in blockRecordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = BlockRecord{
		Height:     in.Height,
		Hash:       in.Hash,
		ExtraNonce: in.ExtraNonce,
		IsQubic:    in.IsQubic,
		IsOrphan:   in.IsOrphan,
		Difficulty: math.NaN(),
	}
	if in.Difficulty != nil {
		b.Difficulty = *in.Difficulty
	}
	if in.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, in.Timestamp)
		if err != nil {
			return err
		}
		b.Timestamp = ts.UTC()
	}
	return nil
}

// Run is a maximal band of consecutive orphaned heights whose mainchain
// counterparts were all mined by the qubic origin.
type Run struct {
	StartHeight int64 `json:"start_height"`
	EndHeight   int64 `json:"end_height"`

	// OrphanBlocks holds the orphan records in [StartHeight, EndHeight], ascending.
	OrphanBlocks []BlockRecord `json:"orphan_blocks"`

	// MainchainWindow holds the mainchain records in [StartHeight-1, EndHeight+1], ascending.
	MainchainWindow []BlockRecord `json:"mainchain_window"`
}

// Length is the number of heights covered by the run
func (r Run) Length() int64 {
	return r.EndHeight - r.StartHeight + 1
}

// Summary carries the observability counters of one detection pass
type Summary struct {
	Source         string        `json:"source,omitempty"`
	MinRunLength   int           `json:"minRun"`
	RowsSeen       int           `json:"rowsSeen"`
	DroppedRows    int           `json:"droppedRows"`
	OrphanCount    int           `json:"orphan_count"`
	MainCount      int           `json:"main_count"`
	CandidateRuns  int           `json:"run_count_total"`
	QualifyingRuns int           `json:"run_count_qubic"`
	Elapsed        time.Duration `json:"-"`
}

// MarshalJSON adds the elapsed time in milliseconds under "ms"
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return json.Marshal(struct {
		plain
		Millis int64 `json:"ms"`
	}{plain(s), s.Elapsed.Milliseconds()})
}

// Result is the output of one detection pass
type Result struct {
	Summary Summary `json:"meta"`
	Runs    []Run   `json:"runs"`
}

// Feed is one raw snapshot of the block log as delivered by a FeedSource
type Feed struct {
	Header  []string
	Rows    [][]string
	ModTime time.Time
	Size    int64
}
