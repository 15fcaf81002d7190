package util

import (
	"context"
	"errors"
	"time"
)

// Backoff configures Retry. Delays double from Base and are capped at Max
// when Max is positive.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultBackoff is used for transient market-data and store failures.
var DefaultBackoff = Backoff{Attempts: 3, Base: 2 * time.Second, Max: 30 * time.Second}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn up to b.Attempts times with exponential backoff. It returns
// nil on the first success, the unwrapped error of a Permanent failure, or
// the last error once attempts are exhausted. Context cancellation between
// attempts returns ctx.Err().
func Retry(ctx context.Context, b Backoff, fn func() error) error {
	attempts := max(b.Attempts, 1)
	delay := b.Base

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if b.Max > 0 && delay > b.Max {
				delay = b.Max
			}
		}
	}
	return err
}
