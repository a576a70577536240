package spi

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/username/orphanrun/pkg/core"
)

// DefaultKeepAlive is the fetch interval used while a change subscription is live,
// in case an event is missed
const DefaultKeepAlive = 30 * time.Second

// Watcher fetches the feed in the background and hands out snapshots whose
// modification time or size differs from the last one delivered.
type Watcher struct {
	source core.FeedSource
	buffer chan *core.Feed
	errCh  chan error
	logger *zap.Logger

	// control channels
	stopCh  chan struct{}
	resetCh chan struct{}

	pollInterval time.Duration
	keepAlive    time.Duration

	// loop state
	last    *fingerprint
	active  bool
	mu      sync.Mutex
	wg      sync.WaitGroup
	stopped bool
}

type fingerprint struct {
	modTime time.Time
	size    int64
}

func fingerprintOf(f *core.Feed) *fingerprint {
	return &fingerprint{modTime: f.ModTime, size: f.Size}
}

func (fp *fingerprint) equal(o *fingerprint) bool {
	return fp != nil && o != nil && fp.modTime.Equal(o.modTime) && fp.size == o.size
}

// NewWatcher creates a Watcher polling source every pollInterval
func NewWatcher(source core.FeedSource, pollInterval time.Duration, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Watcher{
		source:       source,
		buffer:       make(chan *core.Feed, 1),
		errCh:        make(chan error, 1),
		logger:       logger,
		stopCh:       make(chan struct{}),
		resetCh:      make(chan struct{}),
		pollInterval: pollInterval,
		keepAlive:    DefaultKeepAlive,
	}
}

// SetKeepAlive overrides the subscription keep-alive interval; call before Start
func (w *Watcher) SetKeepAlive(d time.Duration) {
	if d > 0 {
		w.keepAlive = d
	}
}

// Start begins the watch loop
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.active || w.stopped {
		w.mu.Unlock()
		return
	}
	w.active = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var sub Subscription
	var changeCh chan struct{}
	defer func() {
		if sub != nil {
			sub.Unsubscribe()
		}
	}()

	if subSource, ok := SubscriptionOf(w.source); ok {
		changeCh = make(chan struct{}, 1)
		s, err := subSource.SubscribeChanges(ctx, changeCh)
		if err != nil {
			w.logger.Warn("change subscription failed, polling instead", zap.Error(err))
		} else {
			sub = s
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.resetCh:
			w.drainBuffer()
			w.last = nil
		default:
		}

		w.fetch(ctx)

		var subErr <-chan error
		wait := w.pollInterval
		if sub != nil {
			subErr = sub.Err()
			wait = w.keepAlive
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.resetCh:
			w.drainBuffer()
			w.last = nil
		case <-changeCh:
		case <-time.After(wait):
		case err := <-subErr:
			// a dead subscription degrades to polling
			w.logger.Warn("change subscription ended, polling instead", zap.Error(err))
			sub.Unsubscribe()
			sub = nil
		}
	}
}

// fetch delivers the feed when it changed since the last delivery
func (w *Watcher) fetch(ctx context.Context) {
	f, err := w.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("feed fetch failed", zap.String("source", w.source.Describe()), zap.Error(err))
		w.replaceErr(err)
		return
	}
	fp := fingerprintOf(f)
	if fp.equal(w.last) {
		return
	}
	w.last = fp
	w.replaceFeed(f)
}

// replaceFeed keeps only the newest snapshot in the buffer
func (w *Watcher) replaceFeed(f *core.Feed) {
	for {
		select {
		case w.buffer <- f:
			return
		default:
		}
		select {
		case <-w.buffer:
		default:
		}
	}
}

func (w *Watcher) replaceErr(err error) {
	select {
	case <-w.errCh:
	default:
	}
	select {
	case w.errCh <- err:
	default:
	}
}

func (w *Watcher) drainBuffer() {
	// Non-blocking drain
L:
	for {
		select {
		case <-w.buffer:
		default:
			break L
		}
	}
E:
	for {
		select {
		case <-w.errCh:
		default:
			break E
		}
	}
}

// Next returns the next changed feed or a fetch error
func (w *Watcher) Next(ctx context.Context) (*core.Feed, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-w.errCh:
		return nil, err
	case f := <-w.buffer:
		return f, nil
	}
}

// Reset forgets the last delivered snapshot so the next fetch is delivered
// even when unchanged
func (w *Watcher) Reset(ctx context.Context) error {
	select {
	case w.resetCh <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops the watcher
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return
	}
	close(w.stopCh)
	w.wg.Wait()
	w.active = false
	w.stopped = true
}
