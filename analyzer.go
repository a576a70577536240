package orphanrun

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/detector"
	"github.com/username/orphanrun/pkg/metrics"
	"github.com/username/orphanrun/pkg/spi"
	"github.com/username/orphanrun/pkg/util"
)

// Analyzer is the main entry point: it reads a block feed, detects
// qubic-selfish orphan runs and notifies handlers when the feed changes.
type Analyzer struct {
	source core.FeedSource
	logger *zap.Logger

	minRun           int
	pollInterval     time.Duration
	keepAlive        time.Duration
	parallelHandlers bool
	now              func() time.Time

	mu       sync.RWMutex
	handlers []core.UpdateHandler
	latest   *core.Result
	feed     *core.Feed
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMinRunLength sets the run length used by the watch loop
func WithMinRunLength(n int) Option {
	return func(a *Analyzer) { a.minRun = detector.ClampMinRunLength(n) }
}

// WithPollInterval sets how often the feed is polled when it cannot push changes
func WithPollInterval(d time.Duration) Option {
	return func(a *Analyzer) { a.pollInterval = d }
}

// WithKeepAlive sets the fetch interval used while change notifications are live
func WithKeepAlive(d time.Duration) Option {
	return func(a *Analyzer) { a.keepAlive = d }
}

// WithRetry wraps the source so failed fetches are retried with exponential backoff
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(a *Analyzer) {
		a.source = spi.NewRetryingFeedSource(a.source, util.NewBackoff(maxRetries, baseDelay, a.logger))
	}
}

// WithParallelHandlers runs update handlers concurrently
func WithParallelHandlers(enabled bool) Option {
	return func(a *Analyzer) { a.parallelHandlers = enabled }
}

// WithClock overrides the clock used for elapsed-time measurement
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates a new Analyzer reading from source.
// WithLogger should precede WithRetry so retries are logged.
func New(source core.FeedSource, opts ...Option) *Analyzer {
	a := &Analyzer{
		source:       source,
		logger:       zap.NewNop(),
		minRun:       detector.DefaultMinRunLength,
		pollInterval: 5 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnUpdate registers a handler called after every re-analysis of a changed feed
func (a *Analyzer) OnUpdate(h core.UpdateHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, h)
}

// Source returns the feed source, including any retry wrapper
func (a *Analyzer) Source() core.FeedSource { return a.source }

// MinRunLength is the run length used by the watch loop
func (a *Analyzer) MinRunLength() int { return a.minRun }

// Fetch reads the current feed. A missing feed is not an error: it reads as
// an empty feed so callers report zero runs.
func (a *Analyzer) Fetch(ctx context.Context) (*core.Feed, error) {
	f, err := a.source.Fetch(ctx)
	if errors.Is(err, core.ErrFeedUnavailable) {
		a.logger.Debug("feed unavailable", zap.String("source", a.source.Describe()), zap.Error(err))
		return &core.Feed{Header: []string{}}, nil
	}
	if err != nil {
		metrics.FeedErrors.Inc()
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	return f, nil
}

// Analyze fetches the feed and detects runs of at least minRun orphans.
// Every call works on its own snapshot.
func (a *Analyzer) Analyze(ctx context.Context, minRun int) (*core.Result, error) {
	f, err := a.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeFeed(f, minRun), nil
}

// AnalyzeFeed detects runs in an already fetched feed
func (a *Analyzer) AnalyzeFeed(f *core.Feed, minRun int) *core.Result {
	res := detector.DetectRows(f.Header, f.Rows, detector.Options{
		MinRunLength: minRun,
		Source:       a.source.Describe(),
		Now:          a.now,
	})
	metrics.Observe(res)
	return res
}

// Latest returns the result and feed of the most recent watch loop pass
func (a *Analyzer) Latest() (*core.Result, *core.Feed) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest, a.feed
}

// Run watches the feed and re-analyzes it whenever its modification time or
// size changes. It returns nil when ctx is cancelled.
func (a *Analyzer) Run(ctx context.Context) error {
	a.logger.Info("starting orphanrun analyzer",
		zap.String("source", a.source.Describe()),
		zap.Int("min_run", a.minRun),
		zap.Duration("poll_interval", a.pollInterval))

	w := spi.NewWatcher(a.source, a.pollInterval, a.logger)
	w.SetKeepAlive(a.keepAlive)
	w.Start(ctx)
	defer w.Stop()

	unavailable := false
	for {
		f, err := w.Next(ctx)
		switch {
		case err == nil:
			unavailable = false
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, core.ErrFeedUnavailable):
			// a vanished feed reads as empty once, then stays quiet until it returns
			if unavailable {
				continue
			}
			unavailable = true
			if err := w.Reset(ctx); err != nil {
				return nil
			}
			f = &core.Feed{Header: []string{}}
		default:
			metrics.FeedErrors.Inc()
			continue
		}
		if err := a.process(ctx, f); err != nil {
			a.logger.Error("update handler failed", zap.Error(err))
		}
	}
}

func (a *Analyzer) process(ctx context.Context, f *core.Feed) error {
	res := a.AnalyzeFeed(f, a.minRun)
	metrics.FeedReloads.Inc()

	a.mu.Lock()
	a.latest, a.feed = res, f
	handlers := make([]core.UpdateHandler, len(a.handlers))
	copy(handlers, a.handlers)
	a.mu.Unlock()

	a.logger.Info("feed analyzed",
		zap.Int("rows", res.Summary.RowsSeen),
		zap.Int("dropped", res.Summary.DroppedRows),
		zap.Int("candidates", res.Summary.CandidateRuns),
		zap.Int("runs", res.Summary.QualifyingRuns),
		zap.Duration("elapsed", res.Summary.Elapsed))

	return a.notify(ctx, handlers, res)
}

func (a *Analyzer) notify(ctx context.Context, handlers []core.UpdateHandler, res *core.Result) error {
	if !a.parallelHandlers {
		for _, h := range handlers {
			if err := h(ctx, res); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		h := h
		g.Go(func() error { return h(gctx, res) })
	}
	return g.Wait()
}
