package spi

import (
	"context"
)

// Subscription is a live change notification stream
type Subscription interface {
	// Unsubscribe stops delivery and releases the underlying watch
	Unsubscribe()

	// Err delivers a terminal subscription failure
	Err() <-chan error
}

// SubscriptionSource is a feed source that can signal when its data changed.
// Sources without it are polled.
type SubscriptionSource interface {
	// SubscribeChanges sends on ch whenever the feed may have changed.
	// Sends never block; bursts collapse into one signal.
	SubscribeChanges(ctx context.Context, ch chan<- struct{}) (Subscription, error)
}
