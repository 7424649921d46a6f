// Package leaderboard computes and ranks totalAssets across users. Per
// spec §9's design note, the engine depends on a Provider injected at
// construction rather than loading this logic dynamically the way the
// source reached into mini-game settlement for a getLeaderboard callback.
package leaderboard

import (
	"context"
	"sort"

	"marketday/internal/gameerr"
	"marketday/internal/store"
)

// Entry is one ranked row of LEADERBOARD_UPDATE's data array.
type Entry struct {
	UserID      string  `json:"userId"`
	DisplayName string  `json:"displayName"`
	Avatar      string  `json:"avatar"`
	TotalAssets float64 `json:"totalAssets"`
	DailyVolume int64   `json:"dailyVolume"`
	Rank        int     `json:"rank"`
}

// Provider computes the top-N leaderboard against the authoritative store.
// It is a concrete struct (not an interface with dynamic lookup) so the
// dependency is fixed at construction time.
type Provider struct {
	Store *store.Store
}

// New builds a Provider bound to a store.
func New(s *store.Store) *Provider {
	return &Provider{Store: s}
}

// Top100 computes totalAssets(u) = cash + stocks*price + openMargins - debt
// for every user, ranks desc, and returns at most 100 rows (§4.4 step 5).
// volumeByUser supplies the additive dailyVolume counter (shares bought and
// sold since the last day boundary); nil or a missing key reports zero.
func (p *Provider) Top100(ctx context.Context, day int, price float64, volumeByUser map[string]int64) ([]Entry, error) {
	users, err := store.ListAllUsers(ctx, p.Store.Pool)
	if err != nil {
		return nil, gameerr.Wrap(gameerr.StoreUnavailable, "failed to list users", err)
	}

	entries := make([]Entry, 0, len(users))
	for _, u := range users {
		margins, err := store.SumOpenMarginsForUserDay(ctx, p.Store.Pool, u.ID, day)
		if err != nil {
			return nil, gameerr.Wrap(gameerr.StoreUnavailable, "failed to sum open margins", err)
		}
		total := store.Round2(u.Cash + float64(u.Stocks)*price + margins - u.Debt)
		entries = append(entries, Entry{
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			Avatar:      u.Avatar,
			TotalAssets: total,
			DailyVolume: volumeByUser[u.ID],
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].TotalAssets > entries[j].TotalAssets })
	if len(entries) > 100 {
		entries = entries[:100]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
