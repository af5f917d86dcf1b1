package llmclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := newCircuitBreaker()
	now := time.Now()

	for i := 0; i < breakerFailureThreshold-1; i++ {
		b.recordFailure(now)
		assert.True(t, b.allow(now))
	}
	b.recordFailure(now)

	assert.False(t, b.allow(now))
}

func TestCircuitBreakerHalfOpensAfterCooldown(t *testing.T) {
	b := newCircuitBreaker()
	now := time.Now()

	for i := 0; i < breakerFailureThreshold; i++ {
		b.recordFailure(now)
	}
	assert.False(t, b.allow(now))

	later := now.Add(breakerCooldown + time.Millisecond)
	assert.True(t, b.allow(later))
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	b := newCircuitBreaker()
	now := time.Now()

	b.recordFailure(now)
	b.recordFailure(now)
	b.recordSuccess()

	for i := 0; i < breakerFailureThreshold-1; i++ {
		b.recordFailure(now)
	}
	assert.True(t, b.allow(now))
}

func TestFailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	b := newCircuitBreaker()
	start := time.Now()

	for i := 0; i < breakerFailureThreshold-1; i++ {
		b.recordFailure(start)
	}

	later := start.Add(breakerFailureWindow + time.Second)
	b.recordFailure(later)

	assert.True(t, b.allow(later))
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	d0 := backoffDelay(0)
	d5 := backoffDelay(5)

	assert.Less(t, d0, d5)
	assert.LessOrEqual(t, d0, backoffMaxDelay+backoffMaxDelay/5)
	assert.LessOrEqual(t, d5, backoffMaxDelay+backoffMaxDelay/5)
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, isRetryableStatusCode(500))
	assert.True(t, isRetryableStatusCode(503))
	assert.True(t, isRetryableStatusCode(429))
	assert.False(t, isRetryableStatusCode(404))
	assert.False(t, isRetryableStatusCode(200))
}
