package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/gobeaver/nocloud"
)

// withRetry runs fn, retrying transient failures with exponential backoff.
// Each attempt runs under a context detached from ctx so a transfer that
// has started is never cut short. The wait between attempts is not
// detached: cancelling ctx ends it at once.
func (e *Engine) withRetry(ctx context.Context, log logrus.FieldLogger, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewExponential(e.baseDelay))

	attempt := 0
	var last error
	err := retry.Do(ctx, backoff, func(context.Context) error {
		attempt++
		last = fn(context.WithoutCancel(ctx))
		if last == nil {
			return nil
		}
		if nocloud.IsTransient(last) && ctx.Err() == nil {
			log.WithError(last).WithField("attempt", attempt).Debug("Retrying transient error")
			return retry.RetryableError(last)
		}
		return last
	})

	// Do reports a cancelled wait as the bare context error
	if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) && !errors.Is(last, cerr) {
		if last == nil {
			return cancelled(ctx)
		}
		return fmt.Errorf("%w after %d attempts: %w", cancelled(ctx), attempt, last)
	}
	return err
}
