package orchestrator

import (
	"context"
	"math/rand"
	"time"
)

// Exponential backoff constants for TransientProviderError retries (§4.G,
// SPEC_FULL supplemented feature 2): 3 attempts, base 500ms, factor 2,
// capped at 8s, jittered +/-20% — grounded in the teacher's queue executor
// retry loop shape (pkg/queue/executor.go), fixed at concrete numbers since
// the spec only says "small bounded count" with "exponential backoff".
const (
	maxRetryAttempts = 3
	backoffBase      = 500 * time.Millisecond
	backoffFactor    = 2
	backoffCap       = 8 * time.Second
	backoffJitter    = 0.2
)

// backoffDelay returns the jittered delay before retry attempt n (1-indexed:
// the delay before the second try is backoffDelay(1)).
func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= backoffFactor
		if d > backoffCap {
			d = backoffCap
			break
		}
	}
	jitter := 1 + (rand.Float64()*2-1)*backoffJitter
	return time.Duration(float64(d) * jitter)
}

// sleepOrCancel waits for d or returns ctx.Err() if ctx is cancelled first —
// the "timer sleeps between retry attempts" suspension point §5 requires be
// cooperative.
func sleepOrCancel(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
