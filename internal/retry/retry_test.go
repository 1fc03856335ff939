package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("store unreachable")

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))

	capped := Policy{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, 3*time.Second, capped.Delay(5))
}

func TestScheduleAllFail(t *testing.T) {
	s := NewSchedule(Policy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond})

	want := []Step{
		{Attempt: 0, Delay: 100 * time.Millisecond},
		{Attempt: 1, Delay: 200 * time.Millisecond},
		{Attempt: 2, Delay: 400 * time.Millisecond},
		{Attempt: 3, Done: true},
	}
	for i, w := range want {
		assert.Equal(t, w, s.Next(errStore), "step %d", i)
	}
	assert.Equal(t, Step{Attempt: 3, Done: true}, s.Next(nil))
}

func TestScheduleSucceedsOnSecondAttempt(t *testing.T) {
	s := NewSchedule(Policy{MaxRetries: 3, BaseDelay: time.Second})

	assert.False(t, s.Next(errStore).Done)
	step := s.Next(nil)
	assert.Equal(t, Step{Attempt: 1, Done: true, Succeeded: true}, step)
}

func TestSchedulePermanentError(t *testing.T) {
	permanent := errors.New("bad input")
	s := NewSchedule(Policy{MaxRetries: 5, Permanent: func(err error) bool { return errors.Is(err, permanent) }})

	assert.Equal(t, Step{Attempt: 0, Done: true}, s.Next(permanent))
}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		failUntil int
		retries   int
		attempts  int
		succeeded bool
		delays    []time.Duration
	}{
		{"first try", 0, 0, 1, true, nil},
		{"second try", 1, 1, 2, true, []time.Duration{time.Second}},
		{"exhausted", 10, 3, 4, false, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingSleeper{}
			calls := 0
			out := Do(context.Background(), DefaultPolicy(), rec.sleep, func(attempt int) error {
				assert.Equal(t, calls, attempt)
				calls++
				if attempt < tt.failUntil {
					return errStore
				}
				return nil
			})

			assert.Equal(t, tt.succeeded, out.Succeeded)
			assert.Equal(t, tt.retries, out.Retries)
			assert.Equal(t, tt.attempts, out.Attempts)
			assert.Equal(t, tt.delays, rec.delays)
			if tt.succeeded {
				assert.NoError(t, out.LastErr)
			} else {
				assert.ErrorIs(t, out.LastErr, errStore)
			}
		})
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	out := Do(ctx, DefaultPolicy(), func(context.Context, time.Duration) error {
		cancel()
		return ctx.Err()
	}, func(int) error {
		calls++
		return errStore
	})

	assert.Equal(t, 1, calls)
	assert.False(t, out.Succeeded)
	require.Error(t, out.LastErr)
	assert.ErrorIs(t, out.LastErr, ErrAborted)
	assert.ErrorIs(t, out.LastErr, context.Canceled)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
