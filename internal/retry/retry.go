// Package retry runs network operations under a fixed-delay retry policy.
// The policy is a parameter of every call so each caller chooses how
// persistent it wants to be.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrExhausted is wrapped by the error returned from Do when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how often an operation is attempted.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	// Values below 1 are treated as 1.
	Attempts int
	// Delay is the pause between two consecutive attempts. No delay
	// follows the final attempt.
	Delay time.Duration
}

// Once is a policy that makes a single attempt.
var Once = Policy{Attempts: 1}

// SleepFunc pauses for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that Do stops retrying immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Executor performs operations with retries.
type Executor struct {
	sleep SleepFunc
}

// New returns an Executor that sleeps on the wall clock between attempts.
func New() *Executor {
	return &Executor{sleep: Sleep}
}

// NewWithSleep returns an Executor using the given sleep function.
// Tests pass a recording no-op.
func NewWithSleep(sleep SleepFunc) *Executor {
	return &Executor{sleep: sleep}
}

// Do calls op until it succeeds or the policy is exhausted. It returns nil
// on the first success. The name is used only for log lines.
func (e *Executor) Do(ctx context.Context, name string, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		err := op(ctx)
		if err == nil {
			if i > 1 {
				log.Printf("%s: succeeded on attempt %d/%d", name, i, attempts)
			}
			return nil
		}
		lastErr = err
		log.Printf("%s: attempt %d/%d failed: %v", name, i, attempts, err)

		var perm *permanentError
		if errors.As(err, &perm) {
			return fmt.Errorf("%s: %w", name, perm.err)
		}
		if i == attempts {
			break
		}
		if err := e.sleep(ctx, p.Delay); err != nil {
			return fmt.Errorf("%s: interrupted after %d attempts: %w", name, i, errors.Join(err, lastErr))
		}
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", name, ErrExhausted, attempts, lastErr)
}
