package clearance

import (
	"time"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
)

type State string

const (
	StatePending   State = "pending"
	StatePaused    State = "paused"
	StateCleared   State = "cleared"
	StateCancelled State = "cancelled"
)

func StateOf(t models.ClearanceTimer) State {
	switch {
	case t.IsCleared:
		return StateCleared
	case t.IsCancelled:
		return StateCancelled
	case t.IsPaused:
		return StatePaused
	default:
		return StatePending
	}
}

func IsTerminal(t models.ClearanceTimer) bool {
	return t.IsCleared || t.IsCancelled
}

// IsEligible reports whether the sweep may clear the timer at now.
func IsEligible(t models.ClearanceTimer, now time.Time) bool {
	return StateOf(t) == StatePending && !t.WithdrawableAt.After(now)
}

// pause freezes the remaining hold. Matured, paused and terminal timers are left alone.
func pause(t *models.ClearanceTimer, now time.Time) bool {
	if StateOf(*t) != StatePending || !t.WithdrawableAt.After(now) {
		return false
	}
	remaining := int64(t.WithdrawableAt.Sub(now) / time.Second)
	pausedAt := now
	t.IsPaused = true
	t.PausedAt = &pausedAt
	t.RemainingSecondsAtPause = &remaining
	t.UpdatedAt = now
	return true
}

// resume restarts the hold with whatever was left when it paused.
func resume(t *models.ClearanceTimer, now time.Time) bool {
	if StateOf(*t) != StatePaused {
		return false
	}
	var remaining int64
	if t.RemainingSecondsAtPause != nil {
		remaining = *t.RemainingSecondsAtPause
	}
	t.IsPaused = false
	t.WithdrawableAt = now.Add(time.Duration(remaining) * time.Second)
	t.PausedAt = nil
	t.RemainingSecondsAtPause = nil
	t.UpdatedAt = now
	return true
}

func cancel(t *models.ClearanceTimer, now time.Time) bool {
	if IsTerminal(*t) {
		return false
	}
	cancelledAt := now
	t.IsCancelled = true
	t.IsPaused = false
	t.CancelledAt = &cancelledAt
	t.UpdatedAt = now
	return true
}

func markCleared(t *models.ClearanceTimer, now time.Time) bool {
	if !IsEligible(*t, now) {
		return false
	}
	clearedAt := now
	t.IsCleared = true
	t.ClearedAt = &clearedAt
	t.UpdatedAt = now
	return true
}
