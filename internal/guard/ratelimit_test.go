package guard_test

import (
	"testing"
	"time"

	"guard-go/internal/guard"
	"guard-go/internal/testutil"
)

func TestLimiter_Strike(t *testing.T) {
	t.Run("stays normal within limit", func(t *testing.T) {
		clock := testutil.FixedClock()
		limiter := guard.NewLimiter(clock)

		for i := 0; i < 3; i++ {
			if v := limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second); v != guard.Normal {
				t.Errorf("strike %d: got %v, want Normal", i+1, v)
			}
		}
	})

	t.Run("escalates past the limit", func(t *testing.T) {
		clock := testutil.FixedClock()
		limiter := guard.NewLimiter(clock)

		for i := 0; i < 3; i++ {
			limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second)
		}
		if v := limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second); v != guard.Escalated {
			t.Errorf("fourth strike: got %v, want Escalated", v)
		}
		// Further strikes in the same window stay escalated.
		if v := limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second); v != guard.Escalated {
			t.Errorf("fifth strike: got %v, want Escalated", v)
		}
	})

	t.Run("window elapse restarts the counter", func(t *testing.T) {
		clock := testutil.FixedClock()
		limiter := guard.NewLimiter(clock)

		for i := 0; i < 4; i++ {
			limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second)
		}
		clock.Advance(30 * time.Second)

		if v := limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second); v != guard.Normal {
			t.Errorf("strike after window elapsed: got %v, want Normal", v)
		}
	})

	t.Run("strikes inside the window do not slide it", func(t *testing.T) {
		clock := testutil.FixedClock()
		limiter := guard.NewLimiter(clock)

		limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second)
		clock.Advance(20 * time.Second)
		limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second)
		clock.Advance(20 * time.Second)

		// 40s since the window started: the counter restarts even though
		// the last strike was only 20s ago.
		if v := limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second); v != guard.Normal {
			t.Errorf("got %v, want Normal after window start elapsed", v)
		}
	})

	t.Run("actors and classes are independent", func(t *testing.T) {
		clock := testutil.FixedClock()
		limiter := guard.NewLimiter(clock)

		for i := 0; i < 4; i++ {
			limiter.Strike("actor-a", guard.ActionBan, 3, 30*time.Second)
		}
		if v := limiter.Strike("actor-b", guard.ActionBan, 3, 30*time.Second); v != guard.Normal {
			t.Errorf("other actor: got %v, want Normal", v)
		}
		if v := limiter.Strike("actor-a", guard.ActionAlert, 3, 30*time.Second); v != guard.Normal {
			t.Errorf("other class: got %v, want Normal", v)
		}
	})
}

func TestLimiter_Reset(t *testing.T) {
	clock := testutil.FixedClock()
	limiter := guard.NewLimiter(clock)

	for i := 0; i < 4; i++ {
		limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second)
	}
	limiter.Reset("actor", guard.ActionBan)

	if v := limiter.Strike("actor", guard.ActionBan, 3, 30*time.Second); v != guard.Normal {
		t.Errorf("strike after reset: got %v, want Normal", v)
	}
}

func TestLimiter_Expire(t *testing.T) {
	clock := testutil.FixedClock()
	limiter := guard.NewLimiter(clock)

	limiter.Strike("old", guard.ActionBan, 3, 30*time.Second)
	clock.Advance(time.Minute)
	limiter.Strike("fresh", guard.ActionBan, 3, 30*time.Second)

	if removed := limiter.Expire(30 * time.Second); removed != 1 {
		t.Errorf("Expire removed %d counters, want 1", removed)
	}
}
