package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// checkFunc reports whether the polled condition holds. A non-nil error with
// done=false is the reason it does not hold yet; it is kept as the cause of
// the eventual timeout.
type checkFunc func(ctx context.Context) (done bool, err error)

// permanentError stops polling immediately.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

var (
	errConditionNotMet = errors.New("condition not met")

	// errGaveUp marks a phase that ran out of attempts or time.
	errGaveUp = errors.New("gave up")
)

// maxAttempts is the attempt budget for a phase: one attempt per interval
// that fits in the timeout, and always at least one.
func maxAttempts(interval, timeout time.Duration) int {
	if interval <= 0 {
		return 1
	}
	n := int(timeout / interval)
	if n < 1 {
		return 1
	}
	return n
}

// poll runs check until it succeeds, returns a permanent error, the attempt
// budget is spent, the phase deadline passes, or ctx is cancelled. It returns
// the number of attempts made. Cancellation of ctx is returned as ctx.Err();
// exhaustion is returned as errGaveUp wrapping the last reported cause.
func poll(ctx context.Context, interval, timeout time.Duration, check checkFunc) (int, error) {
	budget := maxAttempts(interval, timeout)
	if interval <= 0 {
		interval = time.Millisecond
	}
	start := time.Now()

	phaseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := errConditionNotMet
	attempt := 0
loop:
	for attempt < budget {
		attempt++

		done, err := check(phaseCtx)
		if done {
			return attempt, nil
		}
		if pe := (*permanentError)(nil); errors.As(err, &pe) {
			return attempt, pe.err
		}
		if err != nil {
			last = err
		}

		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if phaseCtx.Err() != nil || attempt == budget {
			break
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-phaseCtx.Done():
			break loop
		case <-ticker.C:
		}
	}

	if ctx.Err() != nil {
		return attempt, ctx.Err()
	}
	return attempt, fmt.Errorf("%w after %d attempts in %s: %w",
		errGaveUp, attempt, time.Since(start).Round(time.Millisecond), last)
}
