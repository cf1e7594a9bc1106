package job

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	retryShape   = 4
	retryScale   = 0.25 // seconds
	minRetryWait = 250 * time.Millisecond
)

// RetryWait draws the pause between polling attempts from Gamma(4, 0.25s),
// floored at 250ms. With an integer shape the gamma draw is a sum of
// exponentials.
func RetryWait() time.Duration {
	var secs float64
	for range retryShape {
		secs += rand.ExpFloat64() * retryScale
	}
	d := time.Duration(secs * float64(time.Second))
	if d < minRetryWait {
		return minRetryWait
	}
	return d
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
