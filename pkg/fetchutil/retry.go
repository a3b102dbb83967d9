package fetchutil

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// transientRetries is the retry budget for transient failures: one retry,
// two attempts total. The next scheduled tick retries the whole item anyway,
// so a deeper backoff buys nothing.
const transientRetries = 1

// Retry runs op, retrying once after a short pause on failure. Wrap
// non-transient failures in backoff.Permanent inside op to fail immediately.
// Context cancellation aborts between attempts.
func Retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), transientRetries),
		ctx)
	return backoff.Retry(op, policy)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
