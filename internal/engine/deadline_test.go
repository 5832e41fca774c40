package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithDeadline_ReturnsValue(t *testing.T) {
	t.Parallel()

	var seen context.Context
	v, err := runWithDeadline(context.Background(), time.Second, 10*time.Millisecond, func(ctx context.Context) (string, error) {
		seen = ctx
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	// The deadline is disarmed as soon as the item returns.
	require.NotNil(t, seen)
	assert.ErrorIs(t, seen.Err(), context.Canceled)
}

func TestRunWithDeadline_Timeout(t *testing.T) {
	t.Parallel()

	released := make(chan struct{})
	_, err := runWithDeadline(context.Background(), 20*time.Millisecond, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(released)
		return 0, ctx.Err()
	})
	assert.True(t, errors.Is(err, ErrItemTimeout) || errors.Is(err, context.DeadlineExceeded))

	select {
	case <-released:
	default:
		t.Fatal("item goroutine not released before return")
	}
}

func TestRunWithDeadline_AbandonsStuckItem(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)

	start := time.Now()
	_, err := runWithDeadline(context.Background(), 10*time.Millisecond, 20*time.Millisecond, func(context.Context) (int, error) {
		<-block
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrItemTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunWithDeadline_ParentCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := runWithDeadline(ctx, time.Second, 10*time.Millisecond, func(ictx context.Context) (int, error) {
		cancel()
		<-ictx.Done()
		return 0, ictx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrItemTimeout)
}

func TestRunWithDeadline_RecoversPanic(t *testing.T) {
	t.Parallel()

	_, err := runWithDeadline(context.Background(), time.Second, 10*time.Millisecond, func(context.Context) (int, error) {
		panic("boom")
	})
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Contains(t, err.Error(), "boom")
}
