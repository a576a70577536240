package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/username/orphanrun/pkg/config"
	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/layout"
	"github.com/username/orphanrun/pkg/render"
	"github.com/username/orphanrun/pkg/stats"
)

type selectFlags struct {
	CSVPath string
	MinRun  int
	Recent  int
	From    string
	To      string
}

var (
	detectSel   selectFlags
	renderSel   selectFlags
	renderOut   string
	renderStart int64
	statsCSV    string
	statsHourly bool
	statsStart  string
	statsEnd    string
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Print the qubic-selfish orphan runs as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, runs, err := selectRuns(contextOf(cmd), detectSel)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"meta": res.Summary, "runs": runs})
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the selected runs as an HTML page of SVG timelines",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, runs, err := selectRuns(contextOf(cmd), renderSel)
		if err != nil {
			return err
		}

		out, closeOut, err := openOutput(cmd, renderOut)
		if err != nil {
			return err
		}
		defer closeOut()

		lc := cfg.LayoutConfig()
		if cmd.Flags().Changed("start-height") {
			for _, run := range res.Runs {
				if run.StartHeight == renderStart {
					return render.SVG(out, layout.New(run, lc))
				}
			}
			return fmt.Errorf("no run starts at height %d", renderStart)
		}
		return render.Page(out, "Qubic-selfish orphan runs", layout.All(runs, lc))
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print day or hour counters of orphan and qubic blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		useCSV(statsCSV)
		source, closeSource, err := openSource(cfg, logger)
		if err != nil {
			return err
		}
		defer closeSource()

		f, err := newAnalyzer(source, cfg, logger).Fetch(contextOf(cmd))
		if err != nil {
			return err
		}
		g := stats.ByDay
		if statsHourly {
			g = stats.ByHour
		}
		rep, err := stats.Build(stats.SamplesFromRows(f.Header, f.Rows), statsStart, statsEnd, g, time.Now())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rep)
	},
}

func init() {
	addSelectFlags(detectCmd, &detectSel)
	addSelectFlags(renderCmd, &renderSel)
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "-", "output file, - for stdout")
	renderCmd.Flags().Int64Var(&renderStart, "start-height", 0, "render only the run starting at this height as a bare SVG")

	statsCmd.Flags().StringVar(&statsCSV, "csv", "", "read this CSV file instead of the configured feed")
	statsCmd.Flags().BoolVar(&statsHourly, "hourly", false, "bucket by hour instead of by day")
	statsCmd.Flags().StringVar(&statsStart, "start", "", "first day, YYYY-MM-DD")
	statsCmd.Flags().StringVar(&statsEnd, "end", "", "last day, YYYY-MM-DD")
}

func addSelectFlags(cmd *cobra.Command, sel *selectFlags) {
	cmd.Flags().StringVar(&sel.CSVPath, "csv", "", "read this CSV file instead of the configured feed")
	cmd.Flags().IntVar(&sel.MinRun, "min-run", 0, "minimum run length (default from config)")
	cmd.Flags().IntVar(&sel.Recent, "recent", 0, "number of most recent runs (default from config)")
	cmd.Flags().StringVar(&sel.From, "from", "", "first day, YYYY-MM-DD; selects runs by block time")
	cmd.Flags().StringVar(&sel.To, "to", "", "last day, YYYY-MM-DD")
}

// selectRuns detects runs once and narrows them like the HTTP endpoints do
func selectRuns(ctx context.Context, sel selectFlags) (*core.Result, []core.Run, error) {
	useCSV(sel.CSVPath)
	source, closeSource, err := openSource(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	defer closeSource()

	minRun := cfg.MinRunLength
	if sel.MinRun > 0 {
		minRun = sel.MinRun
	}
	res, err := newAnalyzer(source, cfg, logger).Analyze(ctx, minRun)
	if err != nil {
		return nil, nil, err
	}

	if sel.From != "" || sel.To != "" {
		runs, err := layout.InDayRange(res.Runs, sel.From, sel.To)
		if err != nil {
			return nil, nil, err
		}
		return res, runs, nil
	}
	recent := cfg.RecentRuns
	if sel.Recent > 0 {
		recent = sel.Recent
	}
	return res, layout.MostRecent(res.Runs, recent), nil
}

func useCSV(path string) {
	if path != "" {
		cfg.FeedDriver = config.DriverCSV
		cfg.BlocksCSVPath = path
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
