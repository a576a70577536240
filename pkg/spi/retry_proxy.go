package spi

import (
	"context"
	"errors"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/util"
)

// RetryingFeedSource wraps a FeedSource with retry logic.
// A missing feed is reported at once, without retrying.
type RetryingFeedSource struct {
	inner   core.FeedSource
	backoff *util.Backoff
}

// NewRetryingFeedSource creates a new RetryingFeedSource
func NewRetryingFeedSource(inner core.FeedSource, backoff *util.Backoff) *RetryingFeedSource {
	if backoff.Permanent == nil {
		backoff.Permanent = func(err error) bool { return errors.Is(err, core.ErrFeedUnavailable) }
	}
	return &RetryingFeedSource{
		inner:   inner,
		backoff: backoff,
	}
}

// Inner returns the underlying FeedSource
func (s *RetryingFeedSource) Inner() core.FeedSource {
	return s.inner
}

// Fetch returns the current feed snapshot with retry
func (s *RetryingFeedSource) Fetch(ctx context.Context) (*core.Feed, error) {
	var f *core.Feed

	err := s.backoff.Retry(ctx, func() error {
		var err error
		f, err = s.inner.Fetch(ctx)
		return err
	})

	return f, err
}

// Describe names the wrapped source
func (s *RetryingFeedSource) Describe() string {
	return s.inner.Describe()
}

// SubscriptionOf finds change notifications on src, looking through a retry wrapper
func SubscriptionOf(src core.FeedSource) (SubscriptionSource, bool) {
	if s, ok := src.(SubscriptionSource); ok {
		return s, true
	}
	if rs, ok := src.(*RetryingFeedSource); ok {
		s, ok := rs.Inner().(SubscriptionSource)
		return s, ok
	}
	return nil, false
}
