package sync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError marks a coordinator deadline breach, carrying the operation
// name and the configured limit so it stays distinguishable from the wrapped
// call's own errors.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Limit)
}

// Timeouts holds the per-operation deadlines for every external call.
type Timeouts struct {
	Connect   time.Duration
	ListChats time.Duration
	Fetch     time.Duration
	SinkProbe time.Duration
	Upsert    time.Duration
}

// DefaultTimeouts returns the stock deadline set.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:   30 * time.Second,
		ListChats: 20 * time.Second,
		Fetch:     30 * time.Second,
		SinkProbe: 15 * time.Second,
		Upsert:    60 * time.Second,
	}
}

// callWithin runs fn under a deadline. A breach of this call's own deadline
// surfaces as *TimeoutError; cancellation of the parent context passes
// through untouched.
func callWithin[T any](ctx context.Context, op string, limit time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	v, err := fn(cctx)
	if err != nil &&
		errors.Is(cctx.Err(), context.DeadlineExceeded) &&
		!errors.Is(ctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return v, &TimeoutError{Op: op, Limit: limit}
	}
	return v, err
}

// doWithin is callWithin for calls without a return value.
func doWithin(ctx context.Context, op string, limit time.Duration, fn func(context.Context) error) error {
	_, err := callWithin(ctx, op, limit, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// sleepCtx pauses for d, returning early on context cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
