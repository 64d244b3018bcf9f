package completion

import (
	"fmt"
	"sync"
	"time"

	"github.com/persistorai/threadline/internal/metrics"
	"github.com/persistorai/threadline/internal/models"
)

// Circuit breaker defaults.
const (
	cbFailureThreshold = 5
	cbCooldown         = 30 * time.Second
)

// Circuit breaker states.
const (
	cbClosed   = iota // Normal operation.
	cbOpen            // Fail fast.
	cbHalfOpen        // Probe with one request.
)

// ErrCircuitOpen is returned while the breaker rejects requests without
// calling the completion service.
var ErrCircuitOpen = fmt.Errorf("%w: circuit breaker is open", models.ErrCompletionService)

type breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu            sync.Mutex
	state         int
	failures      int
	lastFailureAt time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown, now: time.Now, state: cbClosed}
}

// allow reports whether a request may proceed. An open breaker moves to
// half-open after the cooldown and lets exactly one probe through.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case cbOpen:
		if b.now().Sub(b.lastFailureAt) >= b.cooldown {
			b.state = cbHalfOpen

			return nil
		}

		return ErrCircuitOpen
	case cbHalfOpen:
		return ErrCircuitOpen
	}

	return nil
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = cbClosed
	metrics.CircuitOpen.Set(0)
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureAt = b.now()

	if b.failures >= b.threshold || b.state == cbHalfOpen {
		b.state = cbOpen
		metrics.CircuitOpen.Set(1)
	}
}
