package cache

import (
	"testing"
	"time"

	"backoffice-service/testutil"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, int](time.Minute, clock)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1)
	c.Set("b", 2)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(59 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "expired at exactly ttl")
	assert.Equal(t, 1, c.Len())

	c.Set("a", 3)
	c.Invalidate("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Set("c", 4)
	c.Purge()
	assert.Equal(t, 0, c.Len())
}
