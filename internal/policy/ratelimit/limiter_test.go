package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesRequestsToSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	l.SetInterval("en.wikipedia.org", 100*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://en.wikipedia.org/wiki/T-72"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://EN.wikipedia.org/wiki/T-80"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultInterval: time.Second})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.test/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.test/1"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterZeroIntervalIsUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 20 {
		require.NoError(t, l.Wait(ctx, "https://fast.test/"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultInterval: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://slow.test/"))
	require.Error(t, l.Wait(ctx, "https://slow.test/"))
}
