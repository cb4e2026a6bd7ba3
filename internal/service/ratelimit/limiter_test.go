package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLimiter_BurstAndRefill(t *testing.T) {
	c := &clock{t: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)}
	l := New(1, 2, WithClock(c.now))

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	c.t = c.t.Add(time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestLimiter_PrunesIdleKeys(t *testing.T) {
	c := &clock{t: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)}
	l := New(1, 1, WithClock(c.now), WithMaxKeys(2), WithIdleTimeout(time.Minute))

	l.Allow("a")
	l.Allow("b")
	c.t = c.t.Add(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}
