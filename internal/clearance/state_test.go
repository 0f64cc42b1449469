package clearance

import (
	"testing"
	"time"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pendingTimer(withdrawableAt time.Time) models.ClearanceTimer {
	return models.ClearanceTimer{AmountCents: 4500, WithdrawableAt: withdrawableAt}
}

func TestPauseMaturedTimerIsNoop(t *testing.T) {
	timer := pendingTimer(base.Add(-time.Minute))
	before := timer

	if pause(&timer, base) {
		t.Fatal("expected matured timer to refuse pause")
	}
	if timer.IsPaused || timer.PausedAt != nil || timer.RemainingSecondsAtPause != nil || !timer.WithdrawableAt.Equal(before.WithdrawableAt) {
		t.Fatalf("expected timer untouched, got %+v", timer)
	}

	exact := pendingTimer(base)
	if pause(&exact, base) {
		t.Fatal("expected timer maturing exactly now to refuse pause")
	}
}

func TestPauseThenResumeRestoresRemainingHold(t *testing.T) {
	timer := pendingTimer(base.Add(90 * time.Minute))

	if !pause(&timer, base) {
		t.Fatal("expected pause to apply")
	}
	if StateOf(timer) != StatePaused {
		t.Fatalf("expected paused, got %s", StateOf(timer))
	}
	if got := *timer.RemainingSecondsAtPause; got != 5400 {
		t.Fatalf("expected 5400 seconds remaining, got %d", got)
	}
	if pause(&timer, base.Add(time.Minute)) {
		t.Fatal("expected second pause to be a no-op")
	}
	if IsEligible(timer, base.Add(24*time.Hour)) {
		t.Fatal("paused timer must not be eligible")
	}

	resumeAt := base.Add(48 * time.Hour)
	if !resume(&timer, resumeAt) {
		t.Fatal("expected resume to apply")
	}
	if want := resumeAt.Add(5400 * time.Second); !timer.WithdrawableAt.Equal(want) {
		t.Fatalf("expected withdrawable_at %v, got %v", want, timer.WithdrawableAt)
	}
	if timer.PausedAt != nil || timer.RemainingSecondsAtPause != nil || timer.IsPaused {
		t.Fatalf("expected pause bookkeeping cleared, got %+v", timer)
	}
	if resume(&timer, resumeAt) {
		t.Fatal("expected resume of a pending timer to be a no-op")
	}
}

func TestTerminalStatesAreIrreversible(t *testing.T) {
	cleared := pendingTimer(base.Add(-time.Hour))
	if !markCleared(&cleared, base) {
		t.Fatal("expected matured timer to clear")
	}
	cancelled := pendingTimer(base.Add(time.Hour))
	if !cancel(&cancelled, base) {
		t.Fatal("expected pending timer to cancel")
	}

	for name, timer := range map[string]models.ClearanceTimer{"cleared": cleared, "cancelled": cancelled} {
		state := StateOf(timer)
		later := base.Add(72 * time.Hour)
		if pause(&timer, base) || resume(&timer, later) || cancel(&timer, later) || markCleared(&timer, later) {
			t.Fatalf("%s timer accepted a transition", name)
		}
		if StateOf(timer) != state || !IsTerminal(timer) {
			t.Fatalf("%s timer changed state to %s", name, StateOf(timer))
		}
	}
}

func TestCancelFromPaused(t *testing.T) {
	timer := pendingTimer(base.Add(time.Hour))
	pause(&timer, base)

	if !cancel(&timer, base.Add(time.Minute)) {
		t.Fatal("expected paused timer to cancel")
	}
	if timer.IsPaused || !timer.IsCancelled || timer.CancelledAt == nil {
		t.Fatalf("unexpected cancelled timer %+v", timer)
	}
	if StateOf(timer) != StateCancelled {
		t.Fatalf("expected cancelled, got %s", StateOf(timer))
	}
}

func TestIsEligibleBoundary(t *testing.T) {
	timer := pendingTimer(base)
	if !IsEligible(timer, base) {
		t.Fatal("expected timer to be eligible at withdrawable_at")
	}
	if IsEligible(timer, base.Add(-time.Second)) {
		t.Fatal("expected timer to be ineligible before withdrawable_at")
	}
}
