package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry and backoff behavior.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_retries_total",
		Help: "Total number of billed retry attempts by error kind",
	}, []string{"error_kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_retry_exhausted_total",
		Help: "Total number of times the retry budget was exhausted by error kind",
	}, []string{"error_kind"})

	lagWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wiki_lag_waits_total",
		Help: "Total number of proactive replication-lag waits",
	})

	lagWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wiki_lag_wait_seconds",
		Help:    "Duration of proactive replication-lag waits",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// retryDelay picks the wait before re-attempting a billed transient failure:
// the server-suggested interval when present, otherwise the fixed configured
// wait.
func (c *Client) retryDelay(header http.Header) time.Duration {
	if header != nil && c.config.DecodeRetryAfter != nil {
		if d, ok := c.config.DecodeRetryAfter(header); ok {
			return d
		}
	}
	return c.config.RetryWait
}

// lagDelay picks the wait for a proactive lag backoff: the server hint when
// present, bounded fallback otherwise.
func (c *Client) lagDelay(header http.Header) time.Duration {
	if header != nil && c.config.DecodeRetryAfter != nil {
		if d, ok := c.config.DecodeRetryAfter(header); ok {
			return d
		}
	}
	return c.config.LagWaitFallback
}
