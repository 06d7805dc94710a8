package guard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"guard-go/internal/guard"
	"guard-go/internal/testutil"
)

// recordingNotifier collects delivered alerts.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []guard.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a guard.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) delivered() []guard.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]guard.Alert(nil), n.alerts...)
}

func newTestAlerter(notifier guard.Notifier, clock guard.Clock) *guard.Alerter {
	limiter := guard.NewLimiter(clock)
	return guard.NewAlerter(notifier, limiter, clock, testutil.NewStubIDGenerator(), guard.NewNopLogger())
}

func TestAlerter_Emit(t *testing.T) {
	clock := testutil.FixedClock()
	notifier := &recordingNotifier{}
	alerter := newTestAlerter(notifier, clock)

	alerter.Emit(context.Background(), guard.AlertWarning, "title", "message")

	got := notifier.delivered()
	if len(got) != 1 {
		t.Fatalf("delivered %d alerts, want 1", len(got))
	}
	a := got[0]
	if a.ID != "id-1" {
		t.Errorf("alert ID = %q, want id-1", a.ID)
	}
	if a.Level != guard.AlertWarning || a.Title != "title" || a.Message != "message" {
		t.Errorf("unexpected alert: %+v", a)
	}
	if !a.Time.Equal(clock.Now()) {
		t.Errorf("alert time = %v, want %v", a.Time, clock.Now())
	}
}

func TestAlerter_NilNotifier(t *testing.T) {
	alerter := newTestAlerter(nil, testutil.FixedClock())

	// Must not panic; log-only degradation.
	alerter.Emit(context.Background(), guard.AlertInfo, "title", "message")
}

func TestAlerter_EmitThrottled(t *testing.T) {
	clock := testutil.FixedClock()
	notifier := &recordingNotifier{}
	alerter := newTestAlerter(notifier, clock)
	alerter.SetThrottle(2, time.Minute)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		alerter.EmitThrottled(ctx, "revert/ban", guard.AlertError, "title", "message")
	}

	if got := len(notifier.delivered()); got != 2 {
		t.Errorf("delivered %d alerts, want 2 within the throttle window", got)
	}

	t.Run("keys throttle independently", func(t *testing.T) {
		alerter.EmitThrottled(ctx, "revert/kick", guard.AlertError, "title", "message")
		if got := len(notifier.delivered()); got != 3 {
			t.Errorf("delivered %d alerts, want 3 after distinct key", got)
		}
	})

	t.Run("window elapse resumes delivery", func(t *testing.T) {
		clock.Advance(time.Minute)
		alerter.EmitThrottled(ctx, "revert/ban", guard.AlertError, "title", "message")
		if got := len(notifier.delivered()); got != 4 {
			t.Errorf("delivered %d alerts, want 4 after window elapsed", got)
		}
	})
}
