package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcceptsUpToBudget(t *testing.T) {
	l := NewWithPolicy(20, time.Minute)
	defer l.Close()

	now := time.Now()
	for i := 0; i < 20; i++ {
		assert.True(t, l.Check("session-1", now))
	}
	assert.False(t, l.Check("session-1", now))
}

func TestWindowExpiresOldTimestamps(t *testing.T) {
	l := NewWithPolicy(1, time.Second)
	defer l.Close()

	now := time.Now()
	assert.True(t, l.Check("s", now))
	assert.False(t, l.Check("s", now))
	assert.True(t, l.Check("s", now.Add(2*time.Second)))
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewWithPolicy(1, time.Minute)
	defer l.Close()

	now := time.Now()
	assert.True(t, l.Check("a", now))
	assert.True(t, l.Check("b", now))
	assert.False(t, l.Check("a", now))
}

func TestSweepRemovesStaleKeys(t *testing.T) {
	l := NewWithPolicy(5, time.Millisecond)
	defer l.Close()

	now := time.Now()
	l.Check("stale", now)
	l.sweep(now.Add(10 * time.Millisecond))

	_, ok := l.windows.Load("stale")
	assert.False(t, ok)
}
