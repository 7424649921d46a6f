// Package tick runs the 1 Hz scheduler of spec §4.2: it reads the clock,
// emits GAME_STATE_UPDATE, gates scripted news publication, and detects day
// transitions to trigger the settlement pipeline. Any unexpected error is
// logged and the loop proceeds to the next tick (§7 propagation policy).
package tick

import (
	"context"
	"log"
	"time"

	"marketday/internal/bus"
	"marketday/internal/clock"
	"marketday/internal/scriptcache"
	"marketday/internal/settlement"
	"marketday/internal/store"
)

// Loop owns the previous-day tracker and the dependencies needed to drive
// one tick.
type Loop struct {
	Clock       *clock.Clock
	ScriptCache *scriptcache.Cache
	Settlement  *settlement.Pipeline
	Bus         *bus.Bus

	prevDay    int
	wasStarted bool
}

// New builds a Loop with its day tracker uninitialised (§4.2 step 4: reset
// to -1 whenever isStarted flips false->true, handled in tick below).
func New(c *clock.Clock, sc *scriptcache.Cache, sp *settlement.Pipeline, b *bus.Bus) *Loop {
	return &Loop{Clock: c, ScriptCache: sc, Settlement: sp, Bus: b, prevDay: -1}
}

type gameStateUpdatePayload struct {
	CurrentDay     int     `json:"currentDay"`
	IsGameStarted  bool    `json:"isGameStarted"`
	Countdown      float64 `json:"countdown"`
	TotalDays      int     `json:"totalDays"`
	MaxLeverage    float64 `json:"maxLeverage"`
}

type newsUpdatePayload struct {
	Day     int    `json:"day"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Run blocks ticking once per second until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("tick: recovered from panic: %v", r)
		}
	}()

	state, err := l.Clock.State(ctx)
	if err != nil {
		log.Printf("tick: failed to read game state: %v", err)
		return
	}

	if state.IsStarted && !l.wasStarted {
		l.prevDay = -1
	}
	l.wasStarted = state.IsStarted

	l.Bus.GlobalEmit(bus.EventGameStateUpdate, gameStateUpdatePayload{
		CurrentDay:    state.CurrentDay,
		IsGameStarted: state.IsStarted,
		Countdown:     state.SecondsToNextDay,
		TotalDays:     state.TotalDays,
		MaxLeverage:   state.MaxLeverage,
	})

	if state.IsStarted && state.CurrentDay > 0 {
		l.maybePublishNews(ctx, state)
	}

	if state.CurrentDay > l.prevDay && l.prevDay >= 0 {
		prev := l.prevDay
		l.prevDay = state.CurrentDay
		go l.Settlement.Run(ctx, prev, state.CurrentDay, state.DailyInterestRate)
	} else if l.prevDay < 0 {
		l.prevDay = state.CurrentDay
	}
}

func (l *Loop) maybePublishNews(ctx context.Context, state clock.GameState) {
	sd, ok := l.ScriptCache.Day(state.CurrentDay)
	if !ok || sd.Title == nil || sd.PublishOffset == nil || sd.IsBroadcasted {
		return
	}

	secondInDay := state.TimeRatio - state.SecondsToNextDay
	if int(secondInDay) != *sd.PublishOffset {
		return
	}

	if err := store.MarkScriptDayBroadcasted(ctx, l.Clock.Store.Pool, state.CurrentDay); err != nil {
		if err != store.ErrNotFound {
			log.Printf("tick: failed to mark day %d broadcasted: %v", state.CurrentDay, err)
		}
		return
	}
	l.ScriptCache.MarkBroadcasted(state.CurrentDay)

	news := ""
	if sd.News != nil {
		news = *sd.News
	}
	l.Bus.GlobalEmit(bus.EventNewsUpdate, newsUpdatePayload{Day: state.CurrentDay, Title: *sd.Title, Content: news})
}
