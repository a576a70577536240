package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/username/orphanrun/pkg/core"
)

var (
	RowsSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orphanrun_rows_seen",
		Help: "Rows read from the block feed in the latest detection",
	})

	DroppedRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orphanrun_dropped_rows",
		Help: "Rows skipped in the latest detection because their height was unusable",
	})

	CandidateRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orphanrun_candidate_runs",
		Help: "Consecutive orphan runs meeting the minimum length",
	})

	QualifyingRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orphanrun_qualifying_runs",
		Help: "Runs whose covered mainchain blocks are all qubic",
	})

	DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orphanrun_detection_duration_seconds",
		Help:    "Time spent parsing and detecting runs",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	FeedReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orphanrun_feed_reloads_total",
		Help: "Number of times a changed feed was re-analyzed",
	})

	FeedErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orphanrun_feed_errors_total",
		Help: "Feed fetches that failed after retries",
	})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orphanrun_websocket_clients",
		Help: "Connected push subscribers",
	})
)

// Observe records the counters of a detection result
func Observe(res *core.Result) {
	if res == nil {
		return
	}
	s := res.Summary
	RowsSeen.Set(float64(s.RowsSeen))
	DroppedRows.Set(float64(s.DroppedRows))
	CandidateRuns.Set(float64(s.CandidateRuns))
	QualifyingRuns.Set(float64(s.QualifyingRuns))
	DetectionDuration.Observe(s.Elapsed.Seconds())
}
