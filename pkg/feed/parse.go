// Package feed turns raw block-log rows into BlockRecords.
//
// Parsing never fails: malformed cells degrade to sentinel values (invalid
// height, zero time, false, NaN) and rows without a usable height are counted
// as dropped.
package feed

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/username/orphanrun/pkg/core"
)

// Recognized column names (matched case-insensitively after trimming)
const (
	ColTimestamp  = "timestamp"
	ColHeight     = "height"
	ColHash       = "block hash"
	ColExtraNonce = "extra nonce"
	ColIsOrphan   = "is_orphan"
	ColIsQubic    = "is_qubic"
	ColDifficulty = "difficulty"
)

// MillisThreshold separates epoch seconds from epoch milliseconds.
// Numeric timestamps strictly greater than this are milliseconds.
const MillisThreshold = 1e12

var numericRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

var calendarLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Columns maps recognized column names to their index in a header; -1 marks a missing column.
type Columns struct {
	Timestamp  int
	Height     int
	Hash       int
	ExtraNonce int
	IsOrphan   int
	IsQubic    int
	Difficulty int
}

// ResolveColumns looks the recognized names up in header
func ResolveColumns(header []string) Columns {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}
	indexOf := func(name string) int {
		for i, h := range lower {
			if h == name {
				return i
			}
		}
		return -1
	}
	return Columns{
		Timestamp:  indexOf(ColTimestamp),
		Height:     indexOf(ColHeight),
		Hash:       indexOf(ColHash),
		ExtraNonce: indexOf(ColExtraNonce),
		IsOrphan:   indexOf(ColIsOrphan),
		IsQubic:    indexOf(ColIsQubic),
		Difficulty: indexOf(ColDifficulty),
	}
}

// Cell reads row[i]; a missing column or short row reads as empty
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// ParseHeight parses a height with thousands separators.
// Negative values round toward positive infinity, others toward negative infinity.
func ParseHeight(s string) (int64, bool) {
	f, ok := parseNumber(s)
	if !ok {
		return 0, false
	}
	if f < 0 {
		f = math.Ceil(f)
	} else {
		f = math.Floor(f)
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// ParseDifficulty parses a locale-formatted number; NaN on failure
func ParseDifficulty(s string) float64 {
	f, ok := parseNumber(s)
	if !ok {
		return math.NaN()
	}
	return f
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseFlag is true only for the literal TRUE, any case
func ParseFlag(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "TRUE")
}

// ParseTimestamp parses epoch seconds, epoch milliseconds (above MillisThreshold)
// or a calendar timestamp. Zone-less calendar values are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if numericRe.MatchString(s) {
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, false
		}
		ms := num * 1000
		if num > MillisThreshold {
			ms = num
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	for _, layout := range calendarLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Snapshot is a parsed feed: records in arrival order plus row counters
type Snapshot struct {
	Records  []core.BlockRecord
	RowsSeen int
	Dropped  int
}

// Parse converts rows into records. Rows whose height cannot be parsed are
// counted in Dropped and omitted from Records.
func Parse(header []string, rows [][]string) Snapshot {
	cols := ResolveColumns(header)
	snap := Snapshot{
		Records:  make([]core.BlockRecord, 0, len(rows)),
		RowsSeen: len(rows),
	}
	for _, row := range rows {
		rec, ok := ParseRow(cols, row)
		if !ok {
			snap.Dropped++
			continue
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap
}

// ParseRow converts one row; ok is false when the height is unusable
func ParseRow(cols Columns, row []string) (core.BlockRecord, bool) {
	h, ok := ParseHeight(Cell(row, cols.Height))
	if !ok {
		return core.BlockRecord{}, false
	}
	ts, _ := ParseTimestamp(Cell(row, cols.Timestamp))
	return core.BlockRecord{
		Height:     h,
		Hash:       Cell(row, cols.Hash),
		Timestamp:  ts,
		IsOrphan:   ParseFlag(Cell(row, cols.IsOrphan)),
		IsQubic:    ParseFlag(Cell(row, cols.IsQubic)),
		Difficulty: ParseDifficulty(Cell(row, cols.Difficulty)),
		ExtraNonce: Cell(row, cols.ExtraNonce),
	}, true
}
