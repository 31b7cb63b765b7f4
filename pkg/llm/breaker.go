package llm

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/agentforge/pipeline/pkg/taxonomy"
)

// errorRateBreaker trips when window holds at least limit qualifying
// failures, recomputed fresh on every check — there is no open/half-open
// state machine or recovery cool-down, so it closes again the instant
// enough old entries age out of the window. Only 5xx and other
// non-transient provider errors count; 429s and timeouts do not, since
// those already have their own retry budget.
type errorRateBreaker struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	history []time.Time
	now     func() time.Time
}

func newErrorRateBreaker(window time.Duration, limit int) *errorRateBreaker {
	return &errorRateBreaker{window: window, limit: limit, now: time.Now}
}

// Record accounts for the result of one attempt. Only failures that
// isBreakerFailure accepts count toward the window; 429s, timeouts and
// transient network failures do not.
func (b *errorRateBreaker) Record(err error) {
	if !isBreakerFailure(err) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, b.now())
}

// Open reports whether the breaker is currently tripped, and if so, how
// long ago the oldest qualifying failure in the window occurred.
func (b *errorRateBreaker) Open() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	cutoff := now.Add(-b.window)
	kept := b.history[:0]
	for _, ts := range b.history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.history = kept

	if len(b.history) < b.limit {
		return false, 0
	}
	return true, now.Sub(b.history[0])
}

// isBreakerFailure reports whether err counts toward the error-rate window:
// a non-transient APIError (any 4xx but 429) or a transient 5xx. 429s and
// timeouts have their own retry budget and never count here.
func isBreakerFailure(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *taxonomy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return false
		}
		if !apiErr.Transient {
			return true
		}
		return apiErr.StatusCode >= 500 && apiErr.StatusCode < 600
	}

	return false
}
