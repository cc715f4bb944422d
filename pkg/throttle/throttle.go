// Package throttle implements the shared write gate: a minimum interval
// between the start times of write-class actions across every goroutine
// sharing one session.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for throttle waits.
var (
	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wiki_throttle_wait_seconds",
		Help:    "Time spent waiting for the write throttle",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	throttleAcquisitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wiki_throttle_acquisitions_total",
		Help: "Total write-throttle acquisitions",
	})
)

// DefaultInterval is the default minimum spacing between write actions.
const DefaultInterval = 10 * time.Second

// Throttle serializes the start of write-class actions. Only start times are
// ordered; completion order is unconstrained.
type Throttle struct {
	mu         sync.Mutex
	interval   time.Duration
	lastAction time.Time
}

// New creates a throttle with the given minimum interval. A zero or negative
// interval disables waiting.
func New(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// SetInterval changes the minimum interval for subsequent acquisitions.
func (t *Throttle) SetInterval(d time.Duration) {
	t.mu.Lock()
	t.interval = d
	t.mu.Unlock()
}

// Interval returns the current minimum interval.
func (t *Throttle) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Acquire blocks until the minimum interval since the previous acquisition
// has elapsed, then stamps the acquisition time. For acquisitions A before B,
// B's stamp is at least A's stamp plus the interval. Returns the context
// error if cancelled while waiting; a cancelled acquisition does not stamp.
func (t *Throttle) Acquire(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	wait := t.interval - time.Since(t.lastAction)
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		throttleWaitSeconds.Observe(wait.Seconds())
	}

	t.lastAction = time.Now()
	throttleAcquisitionsTotal.Inc()
	return nil
}
