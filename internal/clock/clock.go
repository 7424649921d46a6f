// Package clock derives game time from the persisted GameStatus singleton
// and implements the lifecycle operations of spec §4.1: start, stop,
// resume, restart, reset, updateParams. Every lifecycle op runs under one
// store transaction so a precondition failure leaves state untouched.
package clock

import (
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"marketday/internal/gameerr"
	"marketday/internal/store"
)

// GameState is the derived, read-only snapshot clients and the tick loop
// observe; it is never persisted directly (§4.1).
type GameState struct {
	IsStarted         bool
	PausedAt          *time.Time
	CurrentDay        int
	SecondsToNextDay  float64
	TotalDays         int
	TimeRatio         float64
	InitialPrice      float64
	InitialCash       float64
	MaxLeverage       float64
	DailyInterestRate float64
	MaxLoanAmount     float64
}

// Clock wraps the Store and exposes lifecycle operations plus state
// derivation. It holds no mutable state of its own — GameStatus in the
// store is the single source of truth, per §9's per-user-locking design
// note generalized to the singleton row.
type Clock struct {
	Store *store.Store
	Now   func() time.Time // overridable for tests
}

// New builds a Clock bound to a store.
func New(s *store.Store) *Clock {
	return &Clock{Store: s, Now: time.Now}
}

// Derive computes GameState from a GameStatus row without touching the
// store, so the tick loop can call it against a just-fetched row.
func Derive(gs store.GameStatus, now time.Time) GameState {
	state := GameState{
		IsStarted:         gs.IsStarted,
		PausedAt:          gs.PausedAt,
		TotalDays:         gs.TotalDays,
		TimeRatio:         gs.TimeRatio,
		InitialPrice:      gs.InitialPrice,
		InitialCash:       gs.InitialCash,
		MaxLeverage:       gs.MaxLeverage,
		DailyInterestRate: gs.DailyInterestRate,
		MaxLoanAmount:     gs.MaxLoanAmount,
	}

	if gs.GameStartTime == nil {
		state.CurrentDay = 0
		state.SecondsToNextDay = 0
		return state
	}

	ref := now
	if gs.PausedAt != nil {
		ref = *gs.PausedAt
	}
	elapsed := ref.Sub(*gs.GameStartTime).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	day := int(math.Floor(elapsed/gs.TimeRatio)) + 1
	if day > gs.TotalDays {
		day = gs.TotalDays
	}
	state.CurrentDay = day

	remainder := math.Mod(elapsed, gs.TimeRatio)
	secondsToNext := gs.TimeRatio - remainder
	if day >= gs.TotalDays {
		secondsToNext = 0
	}
	state.SecondsToNextDay = secondsToNext

	return state
}

// State fetches the current GameStatus and derives GameState against now.
func (c *Clock) State(ctx context.Context) (GameState, error) {
	gs, err := store.GetGameStatus(ctx, c.Store.Pool)
	if err != nil {
		return GameState{}, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", err)
	}
	return Derive(gs, c.Now()), nil
}

// Start clears any pause, stamps a fresh gameStartTime, resets per-run
// broadcast flags and per-run user counters, and reloads the script cache via the
// supplied callback (kept decoupled from internal/scriptcache to avoid an
// import cycle — the caller wires them together).
func (c *Clock) Start(ctx context.Context, reloadScriptCache func(ctx context.Context) error) error {
	now := c.Now()
	err := c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		gs, err := store.LockGameStatusForUpdate(ctx, tx)
		if err != nil {
			return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", err)
		}
		gs.IsStarted = true
		gs.PausedAt = nil
		gs.GameStartTime = &now
		if err := store.SaveGameStatus(ctx, tx, gs); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to save game status", err)
		}
		if err := store.ResetBroadcastFlags(ctx, tx); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to reset broadcast flags", err)
		}
		if err := store.ResetAvatarAndLoanCounters(ctx, tx); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to reset per-run counters", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if reloadScriptCache != nil {
		return reloadScriptCache(ctx)
	}
	return nil
}

// Stop pauses the clock: isStarted=false, pausedAt=now.
func (c *Clock) Stop(ctx context.Context) error {
	now := c.Now()
	return c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		gs, err := store.LockGameStatusForUpdate(ctx, tx)
		if err != nil {
			return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", err)
		}
		gs.IsStarted = false
		gs.PausedAt = &now
		return store.SaveGameStatus(ctx, tx, gs)
	})
}

// Resume requires a prior Stop (pausedAt set, not started); it shifts
// gameStartTime forward by the pause duration so elapsed in-game time is
// unaffected by the pause (L1 round-trip law).
func (c *Clock) Resume(ctx context.Context) error {
	now := c.Now()
	return c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		gs, err := store.LockGameStatusForUpdate(ctx, tx)
		if err != nil {
			return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", err)
		}
		if gs.PausedAt == nil || gs.IsStarted {
			return gameerr.New(gameerr.Precondition, "game is not paused")
		}
		pauseDuration := now.Sub(*gs.PausedAt)
		if gs.GameStartTime != nil {
			shifted := gs.GameStartTime.Add(pauseDuration)
			gs.GameStartTime = &shifted
		}
		gs.PausedAt = nil
		gs.IsStarted = true
		return store.SaveGameStatus(ctx, tx, gs)
	})
}

// Restart requires the game to be stopped; it zeroes every user's balances
// to the configured initial values, wipes contract orders, and clears
// broadcast flags, without touching ScriptDays or Events.
func (c *Clock) Restart(ctx context.Context, reloadScriptCache func(ctx context.Context) error) error {
	err := c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		gs, err := store.LockGameStatusForUpdate(ctx, tx)
		if err != nil {
			return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", err)
		}
		if gs.IsStarted {
			return gameerr.New(gameerr.Precondition, "game must be stopped before restart")
		}
		if err := store.DeleteAllContractOrders(ctx, tx); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to delete contract orders", err)
		}
		if err := store.ResetAllUsersForRestart(ctx, tx, gs.InitialCash); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to reset user balances", err)
		}
		if err := store.ResetBroadcastFlags(ctx, tx); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to reset broadcast flags", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if reloadScriptCache != nil {
		return reloadScriptCache(ctx)
	}
	return nil
}

// Reset requires the game to be stopped; it wipes contracts, script days,
// and events, deletes every non-admin user other than the acting admin, and
// restores GameStatus to its default constants (§4.1, §9(d) FK ordering).
func (c *Clock) Reset(ctx context.Context, actingAdminID string) error {
	return c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		gs, err := store.LockGameStatusForUpdate(ctx, tx)
		if err != nil {
			return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", err)
		}
		if gs.IsStarted {
			return gameerr.New(gameerr.Precondition, "game must be stopped before reset")
		}
		// Contract orders reference users by FK; delete before users.
		if err := store.DeleteAllContractOrders(ctx, tx); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to delete contract orders", err)
		}
		if err := store.DeleteAllScriptDays(ctx, tx); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to delete script days", err)
		}
		if err := store.DeleteAllEvents(ctx, tx); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to delete events", err)
		}
		if err := store.DeleteNonAdminUsersExcept(ctx, tx, actingAdminID); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to delete users", err)
		}
		def := store.DefaultGameStatus()
		def.ID = gs.ID
		return store.SaveGameStatus(ctx, tx, def)
	})
}

// UpdateParams applies partial parameter changes. When timeRatio changes
// while the game has a gameStartTime, it rebases gameStartTime so that the
// current day and remaining seconds-in-day are preserved under the new
// ratio, truncating to newRatio-1 if the remainder would otherwise overshoot
// (I8 rebase preservation).
func (c *Clock) UpdateParams(ctx context.Context, mutate func(gs *store.GameStatus)) error {
	now := c.Now()
	return c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		gs, err := store.LockGameStatusForUpdate(ctx, tx)
		if err != nil {
			return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", err)
		}

		oldRatio := gs.TimeRatio
		before := Derive(gs, now)

		mutate(&gs)

		if gs.TimeRatio != oldRatio && gs.GameStartTime != nil && before.CurrentDay > 0 {
			remaining := before.SecondsToNextDay
			if gs.TimeRatio < remaining {
				remaining = gs.TimeRatio - 1
				if remaining < 0 {
					remaining = 0
				}
			}
			elapsedInDay := gs.TimeRatio - remaining
			daysElapsed := float64(before.CurrentDay - 1)
			newElapsed := daysElapsed*gs.TimeRatio + elapsedInDay
			ref := now
			if gs.PausedAt != nil {
				ref = *gs.PausedAt
			}
			newStart := ref.Add(-time.Duration(newElapsed * float64(time.Second)))
			gs.GameStartTime = &newStart
		}

		return store.SaveGameStatus(ctx, tx, gs)
	})
}
