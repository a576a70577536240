package spi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/orphanrun/pkg/core"
)

// MockPolledSource serves a feed whose size the test bumps to simulate writes
type MockPolledSource struct {
	mu     sync.Mutex
	size   int64
	err    error
	called int
}

func (s *MockPolledSource) Fetch(ctx context.Context) (*core.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called++
	if s.err != nil {
		return nil, s.err
	}
	return &core.Feed{Size: s.size, ModTime: time.Unix(1_700_000_000, 0)}, nil
}

func (s *MockPolledSource) Describe() string { return "polled" }

func (s *MockPolledSource) set(size int64, err error) {
	s.mu.Lock()
	s.size, s.err = size, err
	s.mu.Unlock()
}

func (s *MockPolledSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.called
}

func TestWatcher_DeliversOnlyChanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mock := &MockPolledSource{size: 10}
	w := NewWatcher(mock, 5*time.Millisecond, nil)
	w.Start(ctx)
	defer w.Stop()

	f, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.Size)

	// unchanged polls deliver nothing
	require.Eventually(t, func() bool { return mock.calls() >= 4 }, time.Second, time.Millisecond)
	short, stop := context.WithTimeout(ctx, 20*time.Millisecond)
	_, err = w.Next(short)
	stop()
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	mock.set(20, nil)
	f, err = w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), f.Size)
}

func TestWatcher_Reset(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mock := &MockPolledSource{size: 7}
	w := NewWatcher(mock, 5*time.Millisecond, nil)
	w.Start(ctx)
	defer w.Stop()

	_, err := w.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, w.Reset(ctx))
	f, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.Size, "same snapshot is delivered again after reset")
}

func TestWatcher_ReportsErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mock := &MockPolledSource{err: core.ErrFeedUnavailable}
	w := NewWatcher(mock, 5*time.Millisecond, nil)
	w.Start(ctx)
	defer w.Stop()

	_, err := w.Next(ctx)
	assert.ErrorIs(t, err, core.ErrFeedUnavailable)

	mock.set(3, nil)
	require.Eventually(t, func() bool {
		f, err := w.Next(ctx)
		return err == nil && f.Size == 3
	}, time.Second, time.Millisecond)
}

type MockSubscription struct {
	once  sync.Once
	errCh chan error
	done  chan struct{}
}

func (s *MockSubscription) Unsubscribe()      { s.once.Do(func() { close(s.done) }) }
func (s *MockSubscription) Err() <-chan error { return s.errCh }

// MockSubSource forwards test-driven change signals to the subscriber
type MockSubSource struct {
	MockPolledSource
	changes chan struct{}
	sub     *MockSubscription
}

func (s *MockSubSource) SubscribeChanges(ctx context.Context, ch chan<- struct{}) (Subscription, error) {
	s.sub = &MockSubscription{errCh: make(chan error, 1), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-s.sub.done:
				return
			case <-s.changes:
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return s.sub, nil
}

func TestWatcher_Subscription(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mock := &MockSubSource{changes: make(chan struct{}, 10)}
	mock.size = 1
	// poll interval is irrelevant while subscribed; keep-alive is long
	w := NewWatcher(mock, time.Millisecond, nil)
	w.SetKeepAlive(time.Hour)
	w.Start(ctx)
	defer w.Stop()

	f, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.Size)

	time.Sleep(30 * time.Millisecond)
	callsBeforeSignal := mock.calls()
	assert.Equal(t, 1, callsBeforeSignal, "no polling while subscribed")

	mock.set(2, nil)
	mock.changes <- struct{}{}

	f, err = w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.Size)
	assert.Greater(t, mock.calls(), callsBeforeSignal)
}

func TestWatcher_DeadSubscriptionFallsBackToPolling(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mock := &MockSubSource{changes: make(chan struct{})}
	w := NewWatcher(mock, 5*time.Millisecond, nil)
	w.SetKeepAlive(time.Hour)
	w.Start(ctx)
	defer w.Stop()

	_, err := w.Next(ctx)
	require.NoError(t, err)

	mock.sub.errCh <- errors.New("watch closed")
	mock.set(9, nil)

	f, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), f.Size)
}
