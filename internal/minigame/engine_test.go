package minigame

import (
	"testing"

	"marketday/internal/store"
)

func TestNewEngineStartsIdle(t *testing.T) {
	e := New(nil, nil, nil, nil)
	snap := e.Snapshot()

	if snap.GameType != store.MiniGameNone {
		t.Fatalf("GameType=%v, expected %v", snap.GameType, store.MiniGameNone)
	}
	if snap.Phase != PhaseIdle {
		t.Fatalf("Phase=%v, expected %v", snap.Phase, PhaseIdle)
	}
	if snap.RedEnvelope != nil || snap.Quiz != nil || snap.Minority != nil {
		t.Fatalf("idle runtime must carry no payload, got %+v", snap)
	}
}

func TestSnapshotReflectsStateAtCallTime(t *testing.T) {
	e := New(nil, nil, nil, nil)

	e.mu.Lock()
	e.runtime.GameType = store.MiniGameQuiz
	e.runtime.Phase = PhaseGaming
	e.runtime.Quiz = &QuizPayload{QuestionID: "q1"}
	e.mu.Unlock()

	snap := e.Snapshot()
	if snap.GameType != store.MiniGameQuiz || snap.Phase != PhaseGaming {
		t.Fatalf("snapshot=%+v, expected it to reflect the locked-in runtime state", snap)
	}
	if snap.Quiz == nil || snap.Quiz.QuestionID != "q1" {
		t.Fatalf("snapshot.Quiz=%+v, expected the active question", snap.Quiz)
	}

	// Replacing the engine's top-level runtime (as resetLocked/initLocked do)
	// must not retroactively change an already-taken snapshot's scalar fields.
	e.mu.Lock()
	e.runtime = idleRuntime()
	e.mu.Unlock()

	if snap.GameType != store.MiniGameQuiz {
		t.Fatalf("a prior snapshot's GameType must not change when the engine moves on, got %v", snap.GameType)
	}
}
