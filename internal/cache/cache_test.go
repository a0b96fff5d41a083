package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSetExpiry(t *testing.T) {
	c := New()
	c.Set("gen", 0x21, TTLIdentity)
	assert.Equal(t, 0x21, c.Get("gen"))

	c.Set("slots", "stale", -time.Second)
	assert.Nil(t, c.Get("slots"))
	assert.Nil(t, c.Get("missing"))
}

func TestCleanup(t *testing.T) {
	c := New()
	c.Set("live", 1, time.Minute)
	c.Set("dead", 2, -time.Second)
	c.Cleanup()

	assert.Equal(t, 1, c.Get("live"))
	c.mu.RLock()
	_, ok := c.entries["dead"]
	c.mu.RUnlock()
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	c := New()
	c.Set("a", 1, time.Minute)
	c.Clear()
	assert.Nil(t, c.Get("a"))
}
