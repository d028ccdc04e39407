package alerts_test

import (
	"testing"
	"time"

	"github.com/healo-ai/concierge/pkg/alerts"
	"github.com/stretchr/testify/assert"
)

func TestCounterWindowFollowsClock(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	c := alerts.NewCounterWithClock(func() time.Time { return now })

	assert.Equal(t, 1, c.Increment("error:chat", time.Minute))
	now = now.Add(30 * time.Second)
	assert.Equal(t, 2, c.Increment("error:chat", time.Minute))

	now = now.Add(61 * time.Second)
	assert.Equal(t, 1, c.Increment("error:chat", time.Minute))
	assert.Equal(t, 1, c.Get("error:chat"))
}
