package repositories

import (
	"context"
	"errors"
	log "log/slog"
	"net"

	"github.com/sethvargo/go-retry"
)

// Retry executes task under the retry policy in options. Each attempt is bounded by options.NetworkTimeout,
// an attempt cut short by it is retried as long as ctx is live. Other failed attempts are retried only when
// ShouldRetry(err) and, if given, isRetryable(err) both report true.
// When retries are exhausted the last error is returned, unwrapped.
func Retry(ctx context.Context, options RetryOptions, task func(ctx context.Context) error, isRetryable func(error) bool) error {
	return retryDo(ctx, options, task, func(err error) bool {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		return ShouldRetry(err) && (isRetryable == nil || isRetryable(err))
	})
}

// RetryUnsent is Retry for writes the server may have applied even though the attempt failed: conditional
// inserts, receives that hide messages, pop receipt rotations. An attempt is retried only when the request
// never reached the server, that is IsUnsent(err) or, if given, isUnsent(err) reports true.
// Attempts cut short by NetworkTimeout are not retried.
func RetryUnsent(ctx context.Context, options RetryOptions, task func(ctx context.Context) error, isUnsent func(error) bool) error {
	return retryDo(ctx, options, task, func(err error) bool {
		return IsUnsent(err) || (isUnsent != nil && isUnsent(err))
	})
}

func retryDo(ctx context.Context, options RetryOptions, task func(ctx context.Context) error, retryable func(error) bool) error {
	options = options.Normalize()
	attempt := 0
	err := retry.Do(ctx, newBackoff(options), func(ctx context.Context) error {
		attempt++
		err := runAttempt(ctx, options, task)
		if err == nil {
			return nil
		}
		// The caller's own cancellation or deadline ends the policy.
		if ctx.Err() != nil || !retryable(err) {
			return err
		}
		log.Debug("retrying", "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil && attempt > 1 {
		log.Warn(err.Error()+", gave up", "attempts", attempt)
	}
	return err
}

func runAttempt(ctx context.Context, options RetryOptions, task func(ctx context.Context) error) error {
	if options.NetworkTimeout <= 0 {
		return task(ctx)
	}
	ctx2, cancel := context.WithTimeout(ctx, options.NetworkTimeout)
	defer cancel()
	return task(ctx2)
}

func newBackoff(options RetryOptions) retry.Backoff {
	var b retry.Backoff
	switch options.Mode {
	case Fixed:
		b = retry.NewConstant(options.Delay)
	default:
		b = retry.NewExponential(options.Delay)
	}
	b = retry.WithCappedDuration(options.MaxDelay, b)
	return retry.WithMaxRetries(options.MaxRetries, b)
}

// ShouldRetry reports whether the error is retryable (non-nil and not a known permanent failure).
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellations/timeouts are permanent from the caller's POV.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Caller errors never get better by retrying.
	if IsCallerError(err) {
		return false
	}
	return true
}

// IsUnsent reports whether err is a dial or name resolution failure, which the server never saw.
func IsUnsent(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
