package detector

import (
	"sort"

	"github.com/username/orphanrun/pkg/core"
)

// ChainIndex holds at most one mainchain and one orphan record per height.
// The first record seen for a (height, chain) pair wins; the index is never
// modified after NewChainIndex returns.
type ChainIndex struct {
	main   map[int64]core.BlockRecord
	orphan map[int64]core.BlockRecord
}

// NewChainIndex partitions records by chain membership, keeping the first per height
func NewChainIndex(records []core.BlockRecord) *ChainIndex {
	idx := &ChainIndex{
		main:   make(map[int64]core.BlockRecord),
		orphan: make(map[int64]core.BlockRecord),
	}
	for _, r := range records {
		m := idx.main
		if r.IsOrphan {
			m = idx.orphan
		}
		if _, exists := m[r.Height]; !exists {
			m[r.Height] = r
		}
	}
	return idx
}

// Main returns the mainchain record at height h
func (idx *ChainIndex) Main(h int64) (core.BlockRecord, bool) {
	r, ok := idx.main[h]
	return r, ok
}

// Orphan returns the orphan record at height h
func (idx *ChainIndex) Orphan(h int64) (core.BlockRecord, bool) {
	r, ok := idx.orphan[h]
	return r, ok
}

// MainCount is the number of distinct mainchain heights
func (idx *ChainIndex) MainCount() int { return len(idx.main) }

// OrphanCount is the number of distinct orphan heights
func (idx *ChainIndex) OrphanCount() int { return len(idx.orphan) }

// OrphanHeights returns every orphan height in ascending order
func (idx *ChainIndex) OrphanHeights() []int64 {
	hs := make([]int64, 0, len(idx.orphan))
	for h := range idx.orphan {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}

// OrphansIn returns the orphan records present in [from, to], ascending
func (idx *ChainIndex) OrphansIn(from, to int64) []core.BlockRecord {
	return collect(idx.orphan, from, to)
}

// MainIn returns the mainchain records present in [from, to], ascending
func (idx *ChainIndex) MainIn(from, to int64) []core.BlockRecord {
	return collect(idx.main, from, to)
}

func collect(m map[int64]core.BlockRecord, from, to int64) []core.BlockRecord {
	out := []core.BlockRecord{}
	for h := from; h <= to; h++ {
		if r, ok := m[h]; ok {
			out = append(out, r)
		}
	}
	return out
}
