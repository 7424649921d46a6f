// Package settlement implements the day-boundary pipeline of spec §4.4,
// invoked by the tick loop on every detected day transition. Steps run
// mostly independently so a single failing user or order never aborts the
// boundary (§7 propagation policy): interest accrual and the daily borrow
// reset are each one statement; contract settlement isolates failures per
// order; the three broadcasts fire last.
package settlement

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"

	"marketday/internal/bus"
	"marketday/internal/leaderboard"
	"marketday/internal/scriptcache"
	"marketday/internal/store"
	"marketday/internal/trading"
	"marketday/pkg/cache"
)

// Pipeline bundles the dependencies the settlement step needs.
type Pipeline struct {
	Store       *store.Store
	ScriptCache *scriptcache.Cache
	Leaderboard *leaderboard.Provider
	Bus         *bus.Bus
	// Cache mirrors the latest leaderboard snapshot in Redis so a session
	// reconnecting between day boundaries gets FULL_SYNC_STATE without
	// forcing a fresh Top100 scan. Nil disables the mirror.
	Cache *cache.Cache
	// Trading supplies the additive per-user dailyVolume counter; nil
	// reports zero volume for every user.
	Trading *trading.Core
}

// New builds a Pipeline.
func New(s *store.Store, sc *scriptcache.Cache, lb *leaderboard.Provider, b *bus.Bus) *Pipeline {
	return &Pipeline{Store: s, ScriptCache: sc, Leaderboard: lb, Bus: b}
}

// contractSettledPayload matches the CONTRACT_SETTLED wire shape (§6).
type contractSettledPayload struct {
	Type       store.ContractType `json:"type"`
	Quantity   int64              `json:"quantity"`
	EntryPrice float64            `json:"entryPrice"`
	ExitPrice  float64            `json:"exitPrice"`
	PNL        float64            `json:"pnl"`
	NewCash    float64            `json:"newCash"`
	NewDebt    float64            `json:"newDebt"`
}

type assetsUpdatePayload struct {
	Cash          float64 `json:"cash"`
	Stocks        int64   `json:"stocks"`
	Debt          float64 `json:"debt"`
	DailyBorrowed float64 `json:"dailyBorrowed"`
}

type scriptDayView struct {
	Day            int          `json:"day"`
	Price          float64      `json:"price"`
	Title          *string      `json:"title,omitempty"`
	News           *string      `json:"news,omitempty"`
	EffectiveTrend store.Trend  `json:"effectiveTrend"`
}

type priceUpdatePayload struct {
	Day     int             `json:"day"`
	Price   float64         `json:"price"`
	History []scriptDayView `json:"history"`
}

// Run executes the six ordered steps for a transition from prevDay to
// newDay, given the freshly read dailyInterestRate (read once at the top
// under no lock — the rate rarely changes mid-run and each per-user step
// re-reads state inside its own transaction).
func (p *Pipeline) Run(ctx context.Context, prevDay, newDay int, dailyInterestRate float64) {
	p.accrueInterest(ctx, dailyInterestRate)
	p.resetDailyBorrowed(ctx)
	p.settleContracts(ctx, prevDay, newDay)

	price := p.ScriptCache.Price(newDay, 0)
	p.broadcastPrice(ctx, newDay, price)
	p.broadcastLeaderboard(ctx, newDay, price)
	p.broadcastAssets(ctx)

	if p.Trading != nil {
		p.Trading.ResetVolume()
	}
}

func (p *Pipeline) accrueInterest(ctx context.Context, rate float64) {
	if err := store.ApplyInterestAccrual(ctx, p.Store.Pool, rate); err != nil {
		log.Printf("settlement: interest accrual failed: %v", err)
	}
}

func (p *Pipeline) resetDailyBorrowed(ctx context.Context) {
	if err := store.ResetDailyBorrowed(ctx, p.Store.Pool); err != nil {
		log.Printf("settlement: daily borrow reset failed: %v", err)
	}
}

func (p *Pipeline) settleContracts(ctx context.Context, prevDay, newDay int) {
	orders, err := store.ListOpenContractsForDay(ctx, p.Store.Pool, prevDay)
	if err != nil {
		log.Printf("settlement: failed to list open contracts for day %d: %v", prevDay, err)
		return
	}

	exitPrice := p.ScriptCache.Price(newDay, 0)

	for _, o := range orders {
		if err := p.settleOne(ctx, o, exitPrice); err != nil {
			log.Printf("settlement: order %s failed to settle: %v", o.ID, err)
		}
	}
}

func (p *Pipeline) settleOne(ctx context.Context, order store.ContractOrder, exitPrice float64) error {
	var payload contractSettledPayload
	var userID string

	err := p.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := store.LockContractForUpdate(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked.IsSettled || locked.IsCancelled {
			return nil // already terminal; I5
		}

		var pnlPerUnit float64
		if locked.Type == store.ContractLong {
			pnlPerUnit = exitPrice - locked.EntryPrice
		} else {
			pnlPerUnit = locked.EntryPrice - exitPrice
		}
		payout := store.Round2(locked.Margin + pnlPerUnit*float64(locked.Quantity)*locked.Leverage)

		u, err := store.LockUserForUpdate(ctx, tx, locked.UserID)
		if err != nil {
			return err
		}
		if payout >= 0 {
			u.Cash = store.Round2(u.Cash + payout)
		} else {
			u.Debt = store.Round2(u.Debt + (-payout))
		}
		if err := store.SaveUserBalances(ctx, tx, u); err != nil {
			return err
		}

		flipped, err := store.MarkContractSettled(ctx, tx, locked.ID)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}

		userID = u.ID
		payload = contractSettledPayload{
			Type:       locked.Type,
			Quantity:   locked.Quantity,
			EntryPrice: locked.EntryPrice,
			ExitPrice:  exitPrice,
			PNL:        payout - locked.Margin,
			NewCash:    u.Cash,
			NewDebt:    u.Debt,
		}
		return nil
	})
	if err != nil {
		return err
	}
	if userID != "" {
		p.Bus.ToUser(userID, bus.EventContractSettled, payload)
	}
	return nil
}

func (p *Pipeline) broadcastPrice(ctx context.Context, day int, price float64) {
	history := p.ScriptCache.History(day)
	views := make([]scriptDayView, 0, len(history))
	for _, d := range history {
		v := scriptDayView{Day: d.Day, Price: d.Price, EffectiveTrend: d.EffectiveTrend}
		if d.IsBroadcasted {
			v.Title = d.Title
			v.News = d.News
		}
		views = append(views, v)
	}
	p.Bus.GlobalEmit(bus.EventPriceUpdate, priceUpdatePayload{Day: day, Price: price, History: views})
}

func (p *Pipeline) broadcastLeaderboard(ctx context.Context, day int, price float64) {
	var volume map[string]int64
	if p.Trading != nil {
		volume = p.Trading.VolumeSnapshot()
	}
	entries, err := p.Leaderboard.Top100(ctx, day, price, volume)
	if err != nil {
		log.Printf("settlement: leaderboard computation failed: %v", err)
		return
	}
	p.Bus.GlobalEmit(bus.EventLeaderboard, map[string]any{"data": entries})
	if p.Cache != nil {
		p.Cache.SetLeaderboard(ctx, entries)
	}
}

func (p *Pipeline) broadcastAssets(ctx context.Context) {
	for _, userID := range p.Bus.ConnectedUserIDs() {
		u, err := store.GetUserByID(ctx, p.Store.Pool, userID)
		if err != nil {
			if err != store.ErrNotFound {
				log.Printf("settlement: failed to load user %s for assets broadcast: %v", userID, err)
			}
			continue
		}
		p.Bus.ToUser(userID, bus.EventAssetsUpdate, assetsUpdatePayload{
			Cash: u.Cash, Stocks: u.Stocks, Debt: u.Debt, DailyBorrowed: u.DailyBorrowed,
		})
	}
}
