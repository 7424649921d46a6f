// Package minigame implements the three mini-game state machines of spec
// §4.5: RedEnvelope, Quiz, Minority. All three share one runtime slot
// (at most one active) owned by Engine as a mutex-guarded struct — not a
// package-level var, which directly corrects the anti-pattern literally
// present in Dragoon4002-crash-backend/ws/gamestate.go (a package `var
// currentGameID string` behind a package mutex), cited by spec §9 as
// "Global currentMiniGame" needing to become an owned engine field.
package minigame

import (
	"time"

	"marketday/internal/store"
)

// Phase enumerates the shared phase shape all three games step through.
// Not every phase applies to every game; each state machine documents
// which subset it uses.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhaseShuffle   Phase = "SHUFFLE"   // RedEnvelope only
	PhasePrepare   Phase = "PREPARE"   // Quiz/Minority only
	PhaseCountdown Phase = "COUNTDOWN"
	PhaseGaming    Phase = "GAMING"
	PhaseReveal    Phase = "REVEAL" // RedEnvelope only
	PhaseResult    Phase = "RESULT"
)

const (
	shuffleAnimationSeconds = 3
	countdownSeconds        = 3
	// TotalPrepTime is §4.5's TOTAL_PREP_TIME = 6s (3s animation + 3s countdown).
	TotalPrepTime = shuffleAnimationSeconds + countdownSeconds
	quizPrepareSeconds     = 5
	settleGraceSeconds     = 1 // GAMING.endTime + 1s auto-settle delay
)

// Packet is one logical unit of a red-envelope prize distribution.
type Packet struct {
	Index       int                        `json:"index"`
	Name        string                     `json:"name"`
	Type        store.RedEnvelopeItemType  `json:"type"`
	PrizeValue  float64                    `json:"prizeValue"`
	IsTaken     bool                       `json:"isTaken"`
	OwnerID     string                     `json:"ownerId,omitempty"`
	IsScratched bool                       `json:"isScratched"`
}

// RedEnvelopePayload is the opaque payload for MiniGameType RED_ENVELOPE.
type RedEnvelopePayload struct {
	Packets        []Packet `json:"packets"`
	ParticipantIDs []string `json:"participantIds"`
}

// AnswerSubmission is one player's recorded quiz answer.
type AnswerSubmission struct {
	Answer      store.QuizAnswer `json:"answer"`
	TimestampMs int64            `json:"timestampMs"`
}

// QuizPayload is the opaque payload for MiniGameType QUIZ.
type QuizPayload struct {
	QuestionID     string                      `json:"questionId"`
	Text           string                      `json:"text"`
	Options        [4]string                   `json:"options"`
	CorrectAnswer  store.QuizAnswer             `json:"correctAnswer"`
	Duration       int                         `json:"duration"`
	Rewards        store.QuizRewards           `json:"rewards"`
	NextQuestionID string                      `json:"nextQuestionId,omitempty"`
	Answers        map[string]AnswerSubmission `json:"answers"`
}

// Bet is one player's last minority-vote submission.
type Bet struct {
	Option string  `json:"option"`
	Amount float64 `json:"amount"`
}

// MinorityPayload is the opaque payload for MiniGameType MINORITY.
type MinorityPayload struct {
	QuestionID string         `json:"questionId"`
	Text       string         `json:"text"`
	Options    [4]string      `json:"options"`
	Duration   int            `json:"duration"`
	Bets       map[string]Bet `json:"bets"`
}

// Runtime is the in-memory, typed counterpart of store.MiniGameRuntime.
// At most one of the three payload pointers is non-nil, matching "at most
// one active" (§4.5); all three are nil when idle.
type Runtime struct {
	GameType  store.MiniGameType
	Phase     Phase
	StartTime *time.Time
	EndTime   *time.Time

	RedEnvelope *RedEnvelopePayload
	Quiz        *QuizPayload
	Minority    *MinorityPayload
}

func idleRuntime() Runtime {
	return Runtime{GameType: store.MiniGameNone, Phase: PhaseIdle}
}
