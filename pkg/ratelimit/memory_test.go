package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/healo-ai/concierge/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreWindowFollowsClock(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := ratelimit.NewMemoryStoreWithClock(clock)
	l := ratelimit.NewLimiterWithClock(store, clock)
	ctx := context.Background()

	for i := 0; i < ratelimit.Chat.Max; i++ {
		require.True(t, l.Check(ctx, "198.51.100.4", ratelimit.Chat).Allowed)
	}
	res := l.Check(ctx, "198.51.100.4", ratelimit.Chat)
	require.False(t, res.Allowed)
	assert.Equal(t, int(ratelimit.Chat.Window.Seconds()), res.RetryAfter(now))

	now = now.Add(ratelimit.Chat.Window + time.Second)
	assert.True(t, l.Check(ctx, "198.51.100.4", ratelimit.Chat).Allowed)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, store.Sweep(10*time.Minute))
	assert.Zero(t, store.Len())
}
