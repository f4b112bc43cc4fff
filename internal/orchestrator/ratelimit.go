package orchestrator

import (
	"sync"
	"time"
)

// rateLimiter admits calls per service using a 60-second sliding window.
// Attempts count, not successes: the timestamp is appended at admission,
// before the underlying call runs.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int // requests per minute per service
	window  time.Duration
	now     func() time.Time
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	return &rateLimiter{
		windows: make(map[string][]time.Time),
		limit:   requestsPerMinute,
		window:  time.Minute,
		now:     time.Now,
	}
}

// allow prunes timestamps older than the window and admits the call iff the
// retained count is below the limit, recording the attempt on admission.
func (rl *rateLimiter) allow(service string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	calls := rl.windows[service]
	kept := calls[:0]
	for _, t := range calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.limit {
		rl.windows[service] = kept
		return false
	}

	rl.windows[service] = append(kept, now)
	return true
}

// remaining reports how many calls the service may still make in the
// current window.
func (rl *rateLimiter) remaining(service string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	active := 0
	for _, t := range rl.windows[service] {
		if t.After(cutoff) {
			active++
		}
	}
	if active >= rl.limit {
		return 0
	}
	return rl.limit - active
}
