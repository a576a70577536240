package spi

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/util"
)

// MockFailingSource is a mock FeedSource that fails n times before succeeding
type MockFailingSource struct {
	FailCount    int
	CurrentFails int
	Err          error
}

func (m *MockFailingSource) Fetch(ctx context.Context) (*core.Feed, error) {
	if m.CurrentFails < m.FailCount {
		m.CurrentFails++
		if m.Err != nil {
			return nil, m.Err
		}
		return nil, errors.New("simulated error")
	}
	return &core.Feed{Header: []string{"height"}, Size: 42}, nil
}

func (m *MockFailingSource) Describe() string { return "mock" }

func TestRetryingFeedSource_Fetch(t *testing.T) {
	mock := &MockFailingSource{FailCount: 2}
	// fast backoff for test
	proxy := NewRetryingFeedSource(mock, util.NewBackoff(3, time.Millisecond, nil))

	f, err := proxy.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), f.Size)
	assert.Equal(t, 2, mock.CurrentFails)
	assert.Equal(t, "mock", proxy.Describe())
}

func TestRetryingFeedSource_FailEventually(t *testing.T) {
	mock := &MockFailingSource{FailCount: 5}
	// backoff only retries 3 times
	proxy := NewRetryingFeedSource(mock, util.NewBackoff(3, time.Millisecond, nil))

	_, err := proxy.Fetch(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 4, mock.CurrentFails)
}

func TestRetryingFeedSource_UnavailableIsNotRetried(t *testing.T) {
	mock := &MockFailingSource{FailCount: 5, Err: fmt.Errorf("open blocks.csv: %w", core.ErrFeedUnavailable)}
	proxy := NewRetryingFeedSource(mock, util.NewBackoff(3, time.Millisecond, nil))

	_, err := proxy.Fetch(context.Background())
	assert.ErrorIs(t, err, core.ErrFeedUnavailable)
	assert.Equal(t, 1, mock.CurrentFails)
}

func TestSubscriptionOf(t *testing.T) {
	_, ok := SubscriptionOf(&MockFailingSource{})
	assert.False(t, ok)

	sub := &MockSubSource{}
	_, ok = SubscriptionOf(sub)
	assert.True(t, ok)

	_, ok = SubscriptionOf(NewRetryingFeedSource(sub, util.NewBackoff(1, time.Millisecond, nil)))
	assert.True(t, ok, "retry wrapper is looked through")
}
