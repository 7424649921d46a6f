package minigame

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"marketday/internal/bus"
	"marketday/internal/gameerr"
	"marketday/internal/leaderboard"
	"marketday/internal/store"
)

// Engine owns the single mini-game runtime slot as a mutex-guarded struct
// (§9's corrected "Global currentMiniGame"). All in-memory mutations happen
// while holding mu, matching §5's suspension-point rule: "every in-memory
// mutation... while holding the mini-game mutex".
type Engine struct {
	mu      sync.Mutex
	runtime Runtime
	timer   *time.Timer

	Store       *store.Store
	Bus         *bus.Bus
	Leaderboard *leaderboard.Provider
	Now         func() time.Time
	// CurrentDayPrice reports the day/price pair the leaderboard needs to
	// compute totalAssets after a mini-game settlement credits cash.
	CurrentDayPrice func() (day int, price float64)
}

// New builds an idle Engine.
func New(s *store.Store, b *bus.Bus, lb *leaderboard.Provider, currentDayPrice func() (int, float64)) *Engine {
	return &Engine{
		runtime:         idleRuntime(),
		Store:           s,
		Bus:             b,
		Leaderboard:     lb,
		Now:             time.Now,
		CurrentDayPrice: currentDayPrice,
	}
}

// Snapshot returns a copy of the current runtime for read-only callers such
// as the websocket handshake's FULL_SYNC_STATE payload.
func (e *Engine) Snapshot() Runtime {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime
}

func (e *Engine) broadcastFreshLeaderboard(ctx context.Context) {
	if e.Leaderboard == nil || e.CurrentDayPrice == nil {
		return
	}
	day, price := e.CurrentDayPrice()
	entries, err := e.Leaderboard.Top100(ctx, day, price, nil)
	if err != nil {
		return
	}
	e.Bus.GlobalEmit(bus.EventLeaderboard, map[string]any{"data": entries})
}

type persistedPayload struct {
	RedEnvelope *RedEnvelopePayload `json:"redEnvelope,omitempty"`
	Quiz        *QuizPayload        `json:"quiz,omitempty"`
	Minority    *MinorityPayload    `json:"minority,omitempty"`
}

// Rehydrate loads the persisted snapshot on process start and re-arms any
// in-flight timer from endTime-now; if now>=endTime the settle step fires
// immediately instead of waiting (§5 cancellation/timeouts rule).
func (e *Engine) Rehydrate(ctx context.Context) error {
	snap, err := store.GetMiniGameRuntime(ctx, e.Store.Pool)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load minigame runtime", err)
	}

	var pp persistedPayload
	if len(snap.Payload) > 0 {
		if err := json.Unmarshal(snap.Payload, &pp); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to decode minigame payload", err)
		}
	}

	e.mu.Lock()
	e.runtime = Runtime{
		GameType:    snap.GameType,
		Phase:       Phase(snap.Phase),
		StartTime:   snap.StartTime,
		EndTime:     snap.EndTime,
		RedEnvelope: pp.RedEnvelope,
		Quiz:        pp.Quiz,
		Minority:    pp.Minority,
	}
	e.rearmLocked(ctx)
	e.mu.Unlock()
	return nil
}

// rearmLocked must be called with mu held.
func (e *Engine) rearmLocked(ctx context.Context) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.runtime.EndTime == nil || e.runtime.Phase == PhaseIdle || e.runtime.Phase == PhaseResult {
		return
	}

	delta := e.runtime.EndTime.Sub(e.Now())
	fire := e.fireForPhase(e.runtime.Phase)
	if fire == nil {
		return
	}
	if delta <= 0 {
		go fire(context.Background())
		return
	}
	e.timer = time.AfterFunc(delta, func() { fire(context.Background()) })
}

// fireForPhase returns the handler to invoke when the current phase's timer
// elapses, or nil if that phase has no timer-driven transition.
func (e *Engine) fireForPhase(phase Phase) func(ctx context.Context) {
	switch e.runtime.GameType {
	case store.MiniGameRedEnvelope:
		if phase == PhaseCountdown {
			return e.onRedEnvelopeCountdownElapsed
		}
	case store.MiniGameQuiz:
		switch phase {
		case PhasePrepare:
			return e.onQuizPrepareElapsed
		case PhaseCountdown:
			return e.onQuizCountdownElapsed
		case PhaseGaming:
			return e.onQuizGamingElapsed
		}
	case store.MiniGameMinority:
		switch phase {
		case PhasePrepare:
			return e.onMinorityPrepareElapsed
		case PhaseCountdown:
			return e.onMinorityCountdownElapsed
		case PhaseGaming:
			return e.onMinorityGamingElapsed
		}
	}
	return nil
}

// persistLocked saves the current runtime; must be called with mu held.
// Commit order is snapshot write, then persist, then broadcast — callers
// mutate e.runtime, call persistLocked, then broadcast. A fully idle
// runtime (no game type) clears the stored row instead.
func (e *Engine) persistLocked(ctx context.Context) error {
	if e.runtime.Phase == PhaseIdle && e.runtime.GameType == store.MiniGameNone {
		return store.ClearMiniGameRuntime(ctx, e.Store.Pool)
	}
	payload, err := json.Marshal(persistedPayload{
		RedEnvelope: e.runtime.RedEnvelope,
		Quiz:        e.runtime.Quiz,
		Minority:    e.runtime.Minority,
	})
	if err != nil {
		return gameerr.Wrap(gameerr.Internal, "failed to encode minigame payload", err)
	}
	return store.SaveMiniGameRuntime(ctx, e.Store.Pool, store.MiniGameRuntime{
		GameType:  e.runtime.GameType,
		Phase:     string(e.runtime.Phase),
		StartTime: e.runtime.StartTime,
		EndTime:   e.runtime.EndTime,
		Payload:   payload,
	})
}

// scheduleLocked arms a timer for the current runtime.EndTime, cancelling
// any previous one; must be called with mu held.
func (e *Engine) scheduleLocked(fire func(ctx context.Context)) {
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.runtime.EndTime == nil {
		return
	}
	delta := e.runtime.EndTime.Sub(e.Now())
	if delta <= 0 {
		go fire(context.Background())
		return
	}
	e.timer = time.AfterFunc(delta, func() { fire(context.Background()) })
}

// syncPayload is the MINIGAME_SYNC wire shape; it carries whichever payload
// is active plus the shared envelope fields.
type syncPayload struct {
	GameType string `json:"gameType"`
	Phase    string `json:"phase"`
	EndTime  *time.Time `json:"endTime,omitempty"`

	RedEnvelope *RedEnvelopePayload `json:"redEnvelope,omitempty"`
	Quiz        *QuizPayload        `json:"quiz,omitempty"`
	Minority    *MinorityPayload    `json:"minority,omitempty"`

	Extra any `json:"extra,omitempty"`
}

// broadcastSyncLocked emits MINIGAME_SYNC globally; must be called with mu
// held so the snapshot can't change mid-encode.
func (e *Engine) broadcastSyncLocked(extra any) {
	e.Bus.GlobalEmit(bus.EventMiniGameSync, syncPayload{
		GameType:    string(e.runtime.GameType),
		Phase:       string(e.runtime.Phase),
		EndTime:     e.runtime.EndTime,
		RedEnvelope: e.runtime.RedEnvelope,
		Quiz:        e.runtime.Quiz,
		Minority:    e.runtime.Minority,
		Extra:       extra,
	})
}

// AdminCommand is the typed shape of ADMIN_MINIGAME_ACTION{type, ...}.
type AdminCommand struct {
	Type        string             `json:"type"`
	GameType    store.MiniGameType `json:"gameType,omitempty"`
	QuestionID  string             `json:"questionId,omitempty"`
}

// HandleAdminCommand dispatches one admin command. Non-admin callers must
// be rejected by the caller before reaching here (ingress dispatch checks
// role and logs the audit entry); Engine additionally refuses to run a
// command against the wrong game type.
func (e *Engine) HandleAdminCommand(ctx context.Context, cmd AdminCommand) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch cmd.Type {
	case "RESET":
		return e.resetLocked(ctx)
	case "INIT":
		return e.initLocked(ctx, cmd)
	case "START_SHUFFLE":
		return e.startShuffleLocked(ctx)
	case "START_GRAB":
		return e.startGrabLocked(ctx)
	case "REVEAL_RESULT":
		return e.revealResultLocked(ctx)
	case "FORCE_REVEAL":
		return e.forceRevealLocked(ctx)
	default:
		return gameerr.Validationf("unknown admin minigame command %q", cmd.Type)
	}
}

func (e *Engine) resetLocked(ctx context.Context) error {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.runtime = idleRuntime()
	if err := e.persistLocked(ctx); err != nil {
		return err
	}
	e.broadcastSyncLocked(nil)
	return nil
}

func (e *Engine) initLocked(ctx context.Context, cmd AdminCommand) error {
	switch cmd.GameType {
	case store.MiniGameRedEnvelope:
		return e.initRedEnvelopeLocked(ctx)
	case store.MiniGameQuiz:
		return e.initQuizLocked(ctx, cmd.QuestionID)
	case store.MiniGameMinority:
		return e.initMinorityLocked(ctx, cmd.QuestionID)
	default:
		return gameerr.Validationf("unknown minigame type %q", cmd.GameType)
	}
}

func (e *Engine) requireGameType(want store.MiniGameType) error {
	if e.runtime.GameType != want {
		return gameerr.New(gameerr.Precondition, "no "+string(want)+" round is active")
	}
	return nil
}

func (e *Engine) requirePhase(want Phase) error {
	if e.runtime.Phase != want {
		return gameerr.New(gameerr.Precondition, "wrong phase for this command")
	}
	return nil
}

func logAuditNonAdmin(userID, command string) {
	log.Printf("minigame: ignored admin command %q from non-admin user %s", command, userID)
}
