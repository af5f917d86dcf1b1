// Package ratelimit implements the RateLimiter component: a keyed
// sliding-window admission gate, 20 accepts per 60s window by default,
// with a janitor that purges stale keys.
package ratelimit

import (
	"sync"
	"time"

	"github.com/whytchat/core/pkg/concurrent"
)

const (
	defaultWindow = 60 * time.Second
	defaultBudget = 20
)

// window holds one key's trailing timestamps, each guarded by its own
// mutex so keys never contend with each other.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// Limiter is the RateLimiter: thread-safe under shared mutable access via
// a per-key lock over a shared concurrent map, the same shape the core's
// other components use for per-key state.
type Limiter struct {
	windowSize time.Duration
	budget     int

	windows *concurrent.Map[string, *window]

	stop chan struct{}
}

// New builds a Limiter with the spec's default 20-per-60s policy and
// starts its janitor goroutine. Call Close to stop the janitor.
func New() *Limiter {
	return NewWithPolicy(defaultBudget, defaultWindow)
}

// NewWithPolicy builds a Limiter with a custom budget/window, used by
// tests and by config-driven overrides.
func NewWithPolicy(budget int, windowSize time.Duration) *Limiter {
	l := &Limiter{
		windowSize: windowSize,
		budget:     budget,
		windows:    concurrent.NewMap[string, *window](),
		stop:       make(chan struct{}),
	}
	go l.janitorLoop()
	return l
}

// Check drops timestamps older than the window, rejects if the remainder
// is already at budget, otherwise appends now and accepts.
func (l *Limiter) Check(key string, now time.Time) bool {
	w, _ := l.windows.LoadOrStore(key, &window{})

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-l.windowSize)
	kept := w.timestamps[:0]
	for _, t := range w.timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= l.budget {
		return false
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

// Close stops the janitor goroutine.
func (l *Limiter) Close() {
	close(l.stop)
}

func (l *Limiter) janitorLoop() {
	ticker := time.NewTicker(l.windowSize)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep(time.Now())
		}
	}
}

// sweep purges keys whose most recent timestamp is older than 4x the
// window — a key with no recent activity at all.
func (l *Limiter) sweep(now time.Time) {
	staleCutoff := now.Add(-4 * l.windowSize)

	var stale []string
	l.windows.Range(func(key string, w *window) bool {
		w.mu.Lock()
		isStale := len(w.timestamps) == 0 || w.timestamps[len(w.timestamps)-1].Before(staleCutoff)
		w.mu.Unlock()
		if isStale {
			stale = append(stale, key)
		}
		return true
	})

	for _, key := range stale {
		l.windows.Delete(key)
	}
}
