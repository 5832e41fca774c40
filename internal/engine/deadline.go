package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrItemTimeout is returned when one item exceeds its deadline.
var ErrItemTimeout = eris.New("engine: item deadline exceeded")

// PanicError carries a panic recovered from item processing.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("engine: panic during item processing: %v", e.Value)
}

// runWithDeadline runs fn under a deadline derived from ctx. The deadline is
// canceled on every return path. When it expires, fn's context is canceled
// and runWithDeadline waits up to grace for fn to return before giving up on
// it, so abandoned work does not overlap the next item for long.
func runWithDeadline[T any](ctx context.Context, timeout, grace time.Duration, fn func(context.Context) (T, error)) (T, error) {
	itemCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r = result{err: &PanicError{Value: p, Stack: debug.Stack()}}
			}
			done <- r
		}()
		r.val, r.err = fn(itemCtx)
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-itemCtx.Done():
	}

	cancel()
	timer := time.NewTimer(grace)
	select {
	case <-done:
		timer.Stop()
	case <-timer.C:
		zap.L().Warn("engine: abandoned item still running after grace period", zap.Duration("grace", grace))
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, ErrItemTimeout
}
