package dirsync

import (
	"context"
	"time"

	"github.com/mcoot/wolfbot/internal/dependencies/clock"
)

// ConfirmStatus is the outcome of polling for a remote change
type ConfirmStatus int

const (
	Confirmed ConfirmStatus = iota
	TimedOut
	Failed
)

func (s ConfirmStatus) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case TimedOut:
		return "timed out"
	default:
		return "failed"
	}
}

// ConfirmPolicy bounds a poll loop
type ConfirmPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultConfirmPolicy polls 15 times a second apart
func DefaultConfirmPolicy() ConfirmPolicy {
	return ConfirmPolicy{MaxAttempts: 15, Interval: time.Second}
}

// CheckFunc reports whether the awaited change is visible
type CheckFunc func(ctx context.Context, attempt int) (bool, error)

// Confirm polls check until it reports true or the attempt budget runs out.
// A check error counts as "not yet"; Failed with that error is returned only
// when the last attempt errored or ctx is done. It sleeps Interval between
// attempts and never polls more than MaxAttempts times. The returned int is
// the number of attempts made.
func Confirm(ctx context.Context, clk clock.Clock, policy ConfirmPolicy, check CheckFunc) (ConfirmStatus, int, error) {
	attempts := max(policy.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ok, err := check(ctx, attempt)
		if err != nil && ctx.Err() != nil {
			return Failed, attempt, err
		}
		if err == nil && ok {
			return Confirmed, attempt, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if err := clk.Sleep(ctx, policy.Interval); err != nil {
			return Failed, attempt, err
		}
	}
	if lastErr != nil {
		return Failed, attempts, lastErr
	}
	return TimedOut, attempts, nil
}
