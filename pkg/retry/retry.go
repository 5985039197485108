// Package retry runs calls against remote stores with bounded exponential
// backoff. Backoff pacing comes from gax-go so delays carry jitter.
package retry

import (
	"context"
	"time"

	gax "github.com/googleapis/gax-go/v2"
)

// Policy configures how often and how patiently a call is retried.
type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int

	// Initial is the upper bound of the first backoff delay.
	Initial time.Duration

	// Max caps every backoff delay.
	Max time.Duration

	// Multiplier grows the delay bound after each failed attempt.
	Multiplier float64
}

// Default is used for vector index and object store calls.
var Default = Policy{
	Attempts:   3,
	Initial:    100 * time.Millisecond,
	Max:        2 * time.Second,
	Multiplier: 2,
}

// Do calls f until it succeeds, returns an error that retryable rejects, or the
// attempts are exhausted. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, retryable func(error) bool, f func(context.Context) error) error {
	_, err := Value(ctx, p, retryable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f(ctx)
	})
	return err
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, p Policy, retryable func(error) bool, f func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	bo := gax.Backoff{
		Initial:    p.Initial,
		Max:        p.Max,
		Multiplier: p.Multiplier,
	}

	var (
		out T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err = f(ctx)
		if err == nil {
			return out, nil
		}
		if attempt == attempts || !retryable(err) {
			break
		}
		if sleepErr := gax.Sleep(ctx, bo.Pause()); sleepErr != nil {
			return out, err
		}
	}
	return out, err
}
