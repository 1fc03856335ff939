// Package retry implements exponential backoff as an explicit state
// machine so the policy can be tested without performing I/O or sleeping.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy configures a retry sequence. A call makes at most MaxRetries+1
// attempts; the delay before retry n (zero-indexed) is BaseDelay * 2^n.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Permanent, when set, stops retrying on errors it reports true for.
	Permanent func(error) bool
}

// DefaultPolicy is 3 retries starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second}
}

// Delay returns the wait after the failed attempt with the given index.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Step is the state machine's decision after an attempt.
type Step struct {
	// Attempt is the zero-based index of the attempt just reported.
	Attempt   int
	Delay     time.Duration
	Done      bool
	Succeeded bool
}

// Schedule tracks one retry sequence.
type Schedule struct {
	policy  Policy
	attempt int
	done    bool
}

// NewSchedule starts a sequence at attempt 0.
func NewSchedule(p Policy) *Schedule {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return &Schedule{policy: p}
}

// Attempt returns the index of the next attempt to make.
func (s *Schedule) Attempt() int { return s.attempt }

// Next reports the result of the current attempt and returns what to do.
// Calling Next after Done returns the terminal step again.
func (s *Schedule) Next(err error) Step {
	if s.done {
		return Step{Attempt: s.attempt, Done: true}
	}

	current := s.attempt
	if err == nil {
		s.done = true
		return Step{Attempt: current, Done: true, Succeeded: true}
	}
	if current >= s.policy.MaxRetries || (s.policy.Permanent != nil && s.policy.Permanent(err)) {
		s.done = true
		return Step{Attempt: current, Done: true}
	}

	s.attempt++
	return Step{Attempt: current, Delay: s.policy.Delay(current)}
}

// Outcome summarizes a finished sequence.
type Outcome struct {
	// Attempts is the number of calls made to fn.
	Attempts int
	// Retries is the index of the final attempt: the number of failures
	// before success, or MaxRetries when every attempt failed.
	Retries   int
	Succeeded bool
	LastErr   error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrAborted wraps the context error when a sequence is cancelled.
var ErrAborted = errors.New("retry aborted")

// Do runs fn under policy. A cancelled ctx stops further attempts and
// the outcome carries both the context error and the last failure.
func Do(ctx context.Context, policy Policy, sleep Sleeper, fn func(attempt int) error) Outcome {
	if sleep == nil {
		sleep = Sleep
	}
	sched := NewSchedule(policy)
	var out Outcome

	for {
		if err := ctx.Err(); err != nil {
			out.LastErr = abortErr(out.Attempts, err, out.LastErr)
			return out
		}

		attempt := sched.Attempt()
		err := fn(attempt)
		out.Attempts++
		out.Retries = attempt

		step := sched.Next(err)
		if step.Succeeded {
			out.Succeeded = true
			out.LastErr = nil
			return out
		}
		out.LastErr = err
		if step.Done {
			return out
		}

		if serr := sleep(ctx, step.Delay); serr != nil {
			out.LastErr = abortErr(out.Attempts, serr, err)
			return out
		}
	}
}

func abortErr(attempts int, ctxErr, last error) error {
	if last == nil {
		return fmt.Errorf("%w: %w", ErrAborted, ctxErr)
	}
	return fmt.Errorf("%w after %d attempts: %w (last error: %v)", ErrAborted, attempts, ctxErr, last)
}
