package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	// 600 per minute = one token every 100ms.
	l := New(Config{PerMinute: 600, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "chat"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "chat"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_DifferentOperations(t *testing.T) {
	t.Parallel()

	l := New(Config{PerMinute: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "chat"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "generate_spider"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_DeadlineTooShort(t *testing.T) {
	t.Parallel()

	l := New(Config{PerMinute: 1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "chat"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "chat"))
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for range 100 {
		require.NoError(t, l.Wait(context.Background(), ""))
	}
}
