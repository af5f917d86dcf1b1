package llmclient

import (
	"errors"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// Re-themed from the teacher's fallback-cooldown state (which decided
// when to fall back to a different model) to a plain circuit breaker
// that opens and rejects fast instead of falling back.
const (
	breakerFailureThreshold = 5
	breakerFailureWindow    = 60 * time.Second
	breakerCooldown         = 30 * time.Second

	backoffBaseDelay = 200 * time.Millisecond
	backoffMaxDelay  = 5 * time.Second
	backoffFactor    = 2.0
	backoffJitter    = 0.2
)

// circuitBreaker tracks consecutive failures within a trailing window and
// opens (rejecting fast) once the threshold is reached, reverting to a
// half-open probe after the cooldown.
type circuitBreaker struct {
	mu sync.Mutex

	failures    []time.Time
	openedAt    time.Time
	open        bool
	halfOpen    bool
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{}
}

// allow reports whether a request may proceed right now, transitioning
// an open breaker to half-open once the cooldown has elapsed.
func (b *circuitBreaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if now.Sub(b.openedAt) >= breakerCooldown {
		b.halfOpen = true
		return true
	}
	return false
}

// recordSuccess resets the breaker to closed.
func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = nil
	b.open = false
	b.halfOpen = false
}

// recordFailure appends a failure timestamp, prunes the trailing window,
// and opens the breaker once the threshold is reached within the window
// (or immediately, if the failing request was the half-open probe).
func (b *circuitBreaker) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.halfOpen {
		b.halfOpen = false
		b.open = true
		b.openedAt = now
		b.failures = []time.Time{now}
		return
	}

	b.failures = append(b.failures, now)
	cutoff := now.Add(-breakerFailureWindow)
	pruned := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	b.failures = pruned

	if len(b.failures) >= breakerFailureThreshold {
		b.open = true
		b.openedAt = now
	}
}

// isOpen reports the breaker's current state without mutating it.
func (b *circuitBreaker) isOpen(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && now.Sub(b.openedAt) < breakerCooldown
}

// backoffDelay returns a jittered exponential delay for the given
// zero-based attempt number, capped at backoffMaxDelay.
func backoffDelay(attempt int) time.Duration {
	delay := float64(backoffBaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= backoffFactor
	}
	if delay > float64(backoffMaxDelay) {
		delay = float64(backoffMaxDelay)
	}
	jitter := delay * backoffJitter * (rand.Float64()*2 - 1)
	result := delay + jitter
	if result < 0 {
		result = 0
	}
	return time.Duration(result)
}

var statusCodePattern = regexp.MustCompile(`status code[: ]+(\d{3})`)

// extractHTTPStatusCode pulls an HTTP status out of a typed SDK error
// first, falling back to scraping the error message for a 3-digit code.
func extractHTTPStatusCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}

	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode(), true
	}

	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code, true
		}
	}
	return 0, false
}

// isRetryableStatusCode reports whether a failure of this class should
// count toward the breaker's failure tally (5xx and 429 do; 4xx client
// errors other than 429 do not, since retrying won't help).
func isRetryableStatusCode(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code < 600
}
