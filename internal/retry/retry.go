package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lestrrat-go/backoff/v2"
)

// Policy bounds how an operation is retried
type Policy struct {
	MaxAttempts int
	MinInterval time.Duration
	MaxInterval time.Duration
}

// DefaultPolicy is used for uploads and publish calls
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		MinInterval: 500 * time.Millisecond,
		MaxInterval: 10 * time.Second,
	}
}

// ErrExhausted is wrapped into the error returned after the last attempt fails
var ErrExhausted = errors.New("retry attempts exhausted")

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs op until it succeeds, returns a permanent error, the context ends,
// or the policy's attempts are used up.
func Do(ctx context.Context, policy Policy, name string, op func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.MinInterval <= 0 {
		policy.MinInterval = DefaultPolicy().MinInterval
	}
	if policy.MaxInterval < policy.MinInterval {
		policy.MaxInterval = policy.MinInterval
	}

	p := backoff.Exponential(
		backoff.WithMinInterval(policy.MinInterval),
		backoff.WithMaxInterval(policy.MaxInterval),
		backoff.WithJitterFactor(0.1),
		backoff.WithMaxRetries(policy.MaxAttempts+1),
	)
	b := p.Start(ctx)

	var lastErr error
	attempt := 0
	for backoff.Continue(b) {
		attempt++
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt >= policy.MaxAttempts {
			break
		}
		slog.Warn("Retrying after failure", "op", name, "attempt", attempt, "max_attempts", policy.MaxAttempts, "err", lastErr)
	}

	if lastErr == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%s: %w", name, ErrExhausted)
	}
	if ctx.Err() != nil && attempt < policy.MaxAttempts {
		return fmt.Errorf("%s interrupted after %d attempts: %w", name, attempt, errors.Join(lastErr, ctx.Err()))
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, errors.Join(ErrExhausted, lastErr))
}
