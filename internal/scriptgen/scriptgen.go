// Package scriptgen produces the deterministic 1..totalDays price/news
// timeline consumed by the script cache (§4.7). The walk structure —
// precompute tomorrow's trend state, then apply today's random draw —
// mirrors Dragoon4002-crash-backend/game/engine.go's CalculateGame, which
// also carries a state variable forward one step at a time under a single
// *rand.Rand rather than recomputing from scratch each day. That file seeds
// its RNG from a provably-fair HMAC chain for on-chain fairness; there is no
// such requirement here, so Params.Rand is a plain *rand.Rand seeded by the
// caller (time-seeded in production, fixed in tests).
package scriptgen

import (
	"math"
	"math/rand"

	"marketday/internal/store"
)

// Params configures the generator; defaults match spec §4.7.
type Params struct {
	TargetDailyChange float64 // 0.05
	BullDrift         float64 // 0.1
	Decay             float64 // 0.9
	TotalDays         int
	TimeRatio         int // used to bound publishOffset
	InitialPrice      float64
	Rand              *rand.Rand
}

// DefaultParams returns the spec's stated constants, requiring only the
// run-specific fields to be filled in by the caller.
func DefaultParams() Params {
	return Params{
		TargetDailyChange: 0.05,
		BullDrift:         0.1,
		Decay:             0.9,
	}
}

var trendStrength = map[store.Trend]float64{
	store.TrendStrongUp:   1.0,
	store.TrendUp:         0.5,
	store.TrendFlat:       0,
	store.TrendDown:       -0.5,
	store.TrendStrongDown: -1.0,
	store.TrendNoEffect:   0,
}

// Generate produces the full ScriptDay series for events, walking day 1
// through p.TotalDays. Events landing on a day neither already consumed do
// not stack; the first event found for a day wins (matching a plain
// linear scan of an ordered event list).
func Generate(events []store.Event, p Params) []store.ScriptDay {
	rng := p.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	byDay := make(map[int]store.Event, len(events))
	for _, e := range events {
		if _, exists := byDay[e.Day]; !exists {
			byDay[e.Day] = e
		}
	}

	price := p.InitialPrice
	if price <= 0 {
		price = 100
	}
	trendRatio := 0.0
	trendName := store.TrendFlat

	days := make([]store.ScriptDay, 0, p.TotalDays)

	for day := 1; day <= p.TotalDays; day++ {
		nextRatio := trendRatio * p.Decay
		nextName := trendName

		ev, hasEvent := byDay[day]
		if hasEvent && ev.Trend != store.TrendNoEffect {
			nextName = ev.Trend
			nextRatio = trendStrength[ev.Trend]
		}

		noise := (rng.Float64()*0.8 - 0.4) * p.TargetDailyChange
		price = price*(1+p.TargetDailyChange*trendRatio+noise) + p.BullDrift
		if price < 1.0 {
			price = 1.0
		}
		price = math.Round(price*100) / 100

		sd := store.ScriptDay{
			Day:            day,
			Price:          price,
			EffectiveTrend: trendName,
			IsBroadcasted:  false,
		}
		if hasEvent {
			title := ev.Title
			sd.Title = &title
			sd.News = ev.News
		}
		if sd.Title != nil {
			offset := 0
			if p.TimeRatio > 0 {
				offset = rng.Intn(p.TimeRatio)
			}
			sd.PublishOffset = &offset
		}

		days = append(days, sd)

		trendRatio = nextRatio
		trendName = nextName
	}

	return days
}
