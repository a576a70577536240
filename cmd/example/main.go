package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/username/orphanrun"
	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/feed"
	"github.com/username/orphanrun/pkg/layout"
	"github.com/username/orphanrun/pkg/render"
)

// MemorySource implements core.FeedSource over a fixed slice of records
type MemorySource struct {
	records []core.BlockRecord
}

func (m *MemorySource) Fetch(ctx context.Context) (*core.Feed, error) {
	if len(m.records) == 0 {
		return nil, core.ErrFeedUnavailable
	}
	header, rows := feed.FormatRecords(m.records)
	return &core.Feed{Header: header, Rows: rows, Size: int64(len(rows))}, nil
}

func (m *MemorySource) Describe() string { return "memory" }

func main() {
	// 1. A short chain: qubic mined 3101..3104 while four orphans were left behind
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var records []core.BlockRecord
	for i, h := 0, int64(3100); h <= 3106; i, h = i+1, h+1 {
		ts := start.Add(time.Duration(i) * 2 * time.Minute)
		records = append(records, core.BlockRecord{
			Height:    h,
			Hash:      fmt.Sprintf("%064x", h),
			Timestamp: ts,
			IsQubic:   h >= 3101 && h <= 3104,
		})
		if h >= 3101 && h <= 3104 {
			records = append(records, core.BlockRecord{
				Height:    h,
				Hash:      fmt.Sprintf("%064x", h*31),
				Timestamp: ts.Add(20 * time.Second),
				IsOrphan:  true,
			})
		}
	}

	// 2. Analyze
	analyzer := orphanrun.New(&MemorySource{records: records})
	res, err := analyzer.Analyze(context.Background(), 3)
	if err != nil {
		log.Fatal(err)
	}

	for _, run := range res.Runs {
		fmt.Fprintf(os.Stderr, "[Run] %d..%d (%d orphans, %d mainchain blocks in view)\n",
			run.StartHeight, run.EndHeight, len(run.OrphanBlocks), len(run.MainchainWindow))
	}

	// 3. Draw the runs
	if err := render.Page(os.Stdout, "Example runs", layout.All(res.Runs, layout.DefaultConfig())); err != nil {
		log.Fatal(err)
	}
}
