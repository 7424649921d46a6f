// Package scriptcache holds an in-memory, fully loaded copy of the
// 1..N day ScriptDay timeline (§2 item 3). Readers see a consistent
// snapshot across a reload — copy-on-reload, never a torn read (§5).
package scriptcache

import (
	"context"
	"sort"
	"sync/atomic"

	"marketday/internal/gameerr"
	"marketday/internal/store"
)

// Cache is safe for concurrent readers during a concurrent Reload; it swaps
// an immutable snapshot atomically rather than mutating in place.
type Cache struct {
	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	byDay map[int]store.ScriptDay
	days  []store.ScriptDay // sorted ascending by day
}

// New returns an empty cache; call Reload before use.
func New() *Cache {
	c := &Cache{}
	c.snapshot.Store(&snapshot{byDay: map[int]store.ScriptDay{}})
	return c
}

// Reload replaces the cache contents from the store in one shot.
func (c *Cache) Reload(ctx context.Context, q store.Querier) error {
	days, err := store.ListScriptDays(ctx, q)
	if err != nil {
		return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load script days", err)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })

	byDay := make(map[int]store.ScriptDay, len(days))
	for _, d := range days {
		byDay[d.Day] = d
	}
	c.snapshot.Store(&snapshot{byDay: byDay, days: days})
	return nil
}

// Day returns the cached ScriptDay for a given day number, if present.
func (c *Cache) Day(day int) (store.ScriptDay, bool) {
	snap := c.snapshot.Load()
	sd, ok := snap.byDay[day]
	return sd, ok
}

// Price returns the cached price for a day, falling back to fallback (the
// caller supplies initialPrice) when the day is missing, matching §4.3's
// "falling back to initialPrice when currentDay=0" rule generalized to any
// unscripted day.
func (c *Cache) Price(day int, fallback float64) float64 {
	if sd, ok := c.Day(day); ok {
		return sd.Price
	}
	return fallback
}

// History returns every ScriptDay from 1..upToDay inclusive, in order,
// used to build PRICE_UPDATE's history array (§4.4 step 4).
func (c *Cache) History(upToDay int) []store.ScriptDay {
	snap := c.snapshot.Load()
	out := make([]store.ScriptDay, 0, upToDay)
	for _, d := range snap.days {
		if d.Day > upToDay {
			break
		}
		out = append(out, d)
	}
	return out
}

// MarkBroadcasted flips the in-memory copy's isBroadcasted flag for one day
// so subsequent readers see it immediately, without waiting for a Reload.
// Callers must also persist the flip to the store in the same logical step
// (tick loop does both atomically per §4.2 step 3).
func (c *Cache) MarkBroadcasted(day int) {
	snap := c.snapshot.Load()
	sd, ok := snap.byDay[day]
	if !ok || sd.IsBroadcasted {
		return
	}
	sd.IsBroadcasted = true

	byDay := make(map[int]store.ScriptDay, len(snap.byDay))
	for k, v := range snap.byDay {
		byDay[k] = v
	}
	byDay[day] = sd

	days := make([]store.ScriptDay, len(snap.days))
	for i, d := range snap.days {
		if d.Day == day {
			d = sd
		}
		days[i] = d
	}

	c.snapshot.Store(&snapshot{byDay: byDay, days: days})
}

// TotalDays reports how many days are currently cached.
func (c *Cache) TotalDays() int {
	return len(c.snapshot.Load().days)
}
