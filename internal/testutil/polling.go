// Package testutil provides polling helpers for tests that wait on
// asynchronous session state, such as backend output reaching the log.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/joeycumines/one-shot-console/internal/loop"
)

// Default polling parameters for session tests.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 5 * time.Millisecond
)

// Poll repeatedly checks a condition until it becomes true or timeout expires.
func Poll(ctx context.Context, condition func() bool, timeout time.Duration, interval time.Duration) error {
	start := time.Now()
	for {
		if condition() {
			return nil
		}

		if time.Since(start) >= timeout {
			return fmt.Errorf("timeout waiting for condition (threshold: %v)", timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// WaitForState waits until getter returns a value satisfying predicate, or
// timeout expires.
//
// Example usage:
//
//	text, err := WaitForState(ctx, sess.Log().Text,
//		func(s string) bool { return strings.Contains(s, "done") },
//		DefaultTimeout, DefaultInterval)
func WaitForState[T any](ctx context.Context, getter func() T, predicate func(T) bool, timeout time.Duration, interval time.Duration) (T, error) {
	var state T
	err := Poll(ctx, func() bool {
		state = getter()
		return predicate(state)
	}, timeout, interval)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("timeout waiting for target state (type %T): %w", zero, err)
	}
	return state, nil
}

// DrainUntil drains sched until condition holds. Work reaches a Manual
// scheduler from other goroutines, so it keeps polling between drains.
func DrainUntil(ctx context.Context, sched *loop.Manual, condition func() bool, timeout time.Duration) error {
	return Poll(ctx, func() bool {
		sched.Drain()
		return condition()
	}, timeout, DefaultInterval)
}
