package ledger

import (
	"context"
	"fmt"
	"time"

	"weebdomains/pkg/metrics"

	"golang.org/x/time/rate"
)

// Limiter throttles contract reads so a catalog fan-out does not flood the
// wallet's node.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows rps reads per second with a burst of burst. A non-positive
// rps disables throttling.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until one read is allowed or ctx is done. Exactly one token is
// consumed per call.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay > 0 {
		metrics.LedgerRateLimitWaits.Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}
