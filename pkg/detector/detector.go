// Package detector finds qubic-selfish orphan runs in a block log.
//
// A candidate run is a maximal stretch of consecutive orphaned heights of at
// least MinRunLength. It qualifies when every mainchain record inside the
// stretch was mined by the qubic origin. Heights with no mainchain record are
// ignored, and the one block of context on either side is never checked.
package detector

import (
	"time"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/feed"
)

const (
	// DefaultMinRunLength is used when callers do not ask for a length
	DefaultMinRunLength = 3

	// MinRunLengthFloor is the smallest length a run may be asked to have
	MinRunLengthFloor = 2
)

// Span is an inclusive height interval
type Span struct {
	Start int64
	End   int64
}

// Len is the number of heights in the span
func (s Span) Len() int64 { return s.End - s.Start + 1 }

// Options tune a detection pass
type Options struct {
	MinRunLength int
	Source       string

	// Now is the clock used for the elapsed counter; time.Now when nil
	Now func() time.Time
}

// ClampMinRunLength raises n to MinRunLengthFloor
func ClampMinRunLength(n int) int {
	if n < MinRunLengthFloor {
		return MinRunLengthFloor
	}
	return n
}

// FindConsecutiveRuns scans ascending heights for maximal stretches of
// consecutive integers and keeps those with at least minLen heights.
func FindConsecutiveRuns(sorted []int64, minLen int) []Span {
	var spans []Span
	if len(sorted) == 0 {
		return spans
	}
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if prev-start+1 >= int64(minLen) {
			spans = append(spans, Span{Start: start, End: prev})
		}
	}
	for _, h := range sorted[1:] {
		if h == prev+1 {
			prev = h
			continue
		}
		flush()
		start, prev = h, h
	}
	flush()
	return spans
}

// QualifiesQubicSelfish reports whether every mainchain record in span is qubic
func QualifiesQubicSelfish(span Span, idx *ChainIndex) bool {
	for h := span.Start; h <= span.End; h++ {
		m, ok := idx.Main(h)
		if ok && !m.IsQubic {
			return false
		}
	}
	return true
}

// BuildRun assembles the orphan blocks and mainchain window of span
func BuildRun(span Span, idx *ChainIndex) core.Run {
	return core.Run{
		StartHeight:     span.Start,
		EndHeight:       span.End,
		OrphanBlocks:    idx.OrphansIn(span.Start, span.End),
		MainchainWindow: idx.MainIn(span.Start-1, span.End+1),
	}
}

// Detect runs a full pass over snap. It never fails: an empty snapshot yields
// no runs and zero counters.
func Detect(snap feed.Snapshot, opts Options) *core.Result {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	started := now()
	minRun := ClampMinRunLength(opts.MinRunLength)

	idx := NewChainIndex(snap.Records)
	spans := FindConsecutiveRuns(idx.OrphanHeights(), minRun)

	runs := []core.Run{}
	for _, span := range spans {
		if !QualifiesQubicSelfish(span, idx) {
			continue
		}
		runs = append(runs, BuildRun(span, idx))
	}

	return &core.Result{
		Summary: core.Summary{
			Source:         opts.Source,
			MinRunLength:   minRun,
			RowsSeen:       snap.RowsSeen,
			DroppedRows:    snap.Dropped,
			OrphanCount:    idx.OrphanCount(),
			MainCount:      idx.MainCount(),
			CandidateRuns:  len(spans),
			QualifyingRuns: len(runs),
			Elapsed:        now().Sub(started),
		},
		Runs: runs,
	}
}

// DetectRows parses header and rows and detects runs in one call
func DetectRows(header []string, rows [][]string, opts Options) *core.Result {
	return Detect(feed.Parse(header, rows), opts)
}
