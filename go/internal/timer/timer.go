// Package timer computes the auction bid clock from stored timestamps.
//
// A timer is IDLE (not started), RUNNING (StartedAt set) or PAUSED
// (PausedRemaining set). Remaining time is derived on every read so that
// devices sharing StartedAt agree without exchanging ticks.
package timer

import (
	"math"
	"time"

	"github.com/mcdev12/vanguard/go/internal/models"
)

// DefaultDuration is the canonical bid window in seconds.
const DefaultDuration = 15

// Idle returns a fresh, not yet started timer.
func Idle() models.TimerState {
	return models.TimerState{Duration: DefaultDuration}
}

// Reset restarts the clock from now with the default duration.
func Reset(now time.Time) models.TimerState {
	return models.TimerState{StartedAt: &now, Duration: DefaultDuration}
}

// Running reports whether the clock is counting down.
func Running(t models.TimerState) bool {
	return t.StartedAt != nil && t.PausedRemaining == nil
}

// Paused reports whether the clock holds a frozen remaining value.
func Paused(t models.TimerState) bool {
	return t.PausedRemaining != nil
}

// Remaining returns whole seconds left on the clock at now.
func Remaining(t models.TimerState, now time.Time) int {
	if t.PausedRemaining != nil {
		return *t.PausedRemaining
	}
	if t.StartedAt == nil {
		return t.Duration
	}
	elapsed := now.Sub(*t.StartedAt).Seconds()
	left := math.Ceil(float64(t.Duration) - elapsed)
	if left < 0 {
		return 0
	}
	return int(left)
}

// Expired reports a running clock that has reached zero. Nothing
// transitions on expiry; the clock keeps reporting zero.
func Expired(t models.TimerState, now time.Time) bool {
	return Running(t) && Remaining(t, now) == 0
}

// Start moves an idle or paused timer to running. A paused timer is
// back-dated so elapsed time continues where it stopped. The second
// return is false when the timer was already running.
func Start(t models.TimerState, now time.Time) (models.TimerState, bool) {
	if Running(t) {
		return t, false
	}
	if t.PausedRemaining != nil {
		elapsed := time.Duration(t.Duration-*t.PausedRemaining) * time.Second
		startedAt := now.Add(-elapsed)
		return models.TimerState{StartedAt: &startedAt, Duration: t.Duration}, true
	}
	return models.TimerState{StartedAt: &now, Duration: DefaultDuration}, true
}

// Pause freezes a running timer. The second return is false when the
// timer was not running.
func Pause(t models.TimerState, now time.Time) (models.TimerState, bool) {
	if !Running(t) {
		return t, false
	}
	remaining := Remaining(t, now)
	return models.TimerState{Duration: t.Duration, PausedRemaining: &remaining}, true
}
