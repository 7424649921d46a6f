package clock

import (
	"testing"
	"time"

	"marketday/internal/store"
)

func baseStatus() store.GameStatus {
	gs := store.DefaultGameStatus()
	gs.TimeRatio = 600
	gs.TotalDays = 120
	return gs
}

func TestDeriveBeforeGameStart(t *testing.T) {
	gs := baseStatus()
	state := Derive(gs, time.Now())

	if state.CurrentDay != 0 {
		t.Fatalf("CurrentDay=%d, expected 0 before gameStartTime is set", state.CurrentDay)
	}
	if state.SecondsToNextDay != 0 {
		t.Fatalf("SecondsToNextDay=%v, expected 0 before start", state.SecondsToNextDay)
	}
}

func TestDeriveMidDayOne(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gs := baseStatus()
	gs.GameStartTime = &start

	now := start.Add(100 * time.Second)
	state := Derive(gs, now)

	if state.CurrentDay != 1 {
		t.Fatalf("CurrentDay=%d, expected 1", state.CurrentDay)
	}
	if want := gs.TimeRatio - 100; state.SecondsToNextDay != want {
		t.Fatalf("SecondsToNextDay=%v, expected %v", state.SecondsToNextDay, want)
	}
}

func TestDeriveCrossesIntoDayTwo(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gs := baseStatus()
	gs.GameStartTime = &start

	now := start.Add(time.Duration(gs.TimeRatio+5) * time.Second)
	state := Derive(gs, now)

	if state.CurrentDay != 2 {
		t.Fatalf("CurrentDay=%d, expected 2", state.CurrentDay)
	}
}

func TestDeriveClampsAtTotalDays(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gs := baseStatus()
	gs.TotalDays = 5
	gs.GameStartTime = &start

	now := start.Add(time.Duration(gs.TimeRatio*100) * time.Second)
	state := Derive(gs, now)

	if state.CurrentDay != 5 {
		t.Fatalf("CurrentDay=%d, expected clamp at TotalDays=5", state.CurrentDay)
	}
	if state.SecondsToNextDay != 0 {
		t.Fatalf("SecondsToNextDay=%v, expected 0 once the final day is reached", state.SecondsToNextDay)
	}
}

func TestDeriveFreezesElapsedTimeWhilePaused(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pausedAt := start.Add(50 * time.Second)
	gs := baseStatus()
	gs.GameStartTime = &start
	gs.PausedAt = &pausedAt
	gs.IsStarted = false

	before := Derive(gs, pausedAt.Add(10*time.Second))
	after := Derive(gs, pausedAt.Add(10*time.Hour))

	if before.CurrentDay != after.CurrentDay || before.SecondsToNextDay != after.SecondsToNextDay {
		t.Fatalf("paused state must not advance regardless of wall time: before=%+v after=%+v", before, after)
	}
}

func TestDeriveNeverReturnsNegativeElapsedForClockSkew(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gs := baseStatus()
	gs.GameStartTime = &start

	// now is before gameStartTime — should not happen in practice, but must
	// not panic or report a negative day.
	state := Derive(gs, start.Add(-time.Hour))
	if state.CurrentDay != 1 {
		t.Fatalf("CurrentDay=%d, expected elapsed clamped to 0 -> day 1", state.CurrentDay)
	}
}
