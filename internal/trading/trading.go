// Package trading implements the synchronous request handlers of spec
// §4.3: spot buy/sell, contract open/cancel, borrow/repay. Every handler
// serializes per-user via SELECT ... FOR UPDATE inside one transaction
// (§5, §9) and either commits a full state change or returns a typed
// gameerr with no partial writes.
package trading

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"marketday/internal/clock"
	"marketday/internal/gameerr"
	"marketday/internal/scriptcache"
	"marketday/internal/store"
)

// Core bundles the dependencies every trading handler needs.
type Core struct {
	Store       *store.Store
	Clock       *clock.Clock
	ScriptCache *scriptcache.Cache

	volMu  sync.Mutex
	volume map[string]int64 // additive dailyVolume counter, reset at day boundary
}

// New builds a Core.
func New(s *store.Store, c *clock.Clock, sc *scriptcache.Cache) *Core {
	return &Core{Store: s, Clock: c, ScriptCache: sc, volume: make(map[string]int64)}
}

// recordVolume adds q shares traded by userID to the running daily total.
func (c *Core) recordVolume(userID string, q int64) {
	c.volMu.Lock()
	c.volume[userID] += q
	c.volMu.Unlock()
}

// VolumeSnapshot returns a copy of shares bought+sold per user since the
// last ResetVolume, for the leaderboard's additive dailyVolume column.
func (c *Core) VolumeSnapshot() map[string]int64 {
	c.volMu.Lock()
	defer c.volMu.Unlock()
	out := make(map[string]int64, len(c.volume))
	for k, v := range c.volume {
		out[k] = v
	}
	return out
}

// ResetVolume clears the per-user counters; called at every day boundary.
func (c *Core) ResetVolume() {
	c.volMu.Lock()
	c.volume = make(map[string]int64)
	c.volMu.Unlock()
}

// currentPrice reads the price for currentDay from the script cache,
// falling back to initialPrice when currentDay=0 (§4.3).
func (c *Core) currentPrice(ctx context.Context, day int, initialPrice float64) float64 {
	if day <= 0 {
		return initialPrice
	}
	return c.ScriptCache.Price(day, initialPrice)
}

// TradeResult is the success payload for BUY/SELL, matching TRADE_SUCCESS.
type TradeResult struct {
	Cash   float64 `json:"cash"`
	Stocks int64   `json:"stocks"`
	Price  float64 `json:"price"`
}

// BuyStock executes a spot purchase of q shares at the current price.
func (c *Core) BuyStock(ctx context.Context, userID string, q int64) (TradeResult, error) {
	if q < 1 {
		return TradeResult{}, gameerr.Validationf("quantity must be at least 1")
	}

	var result TradeResult
	err := c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		state, err := c.gameState(ctx, tx)
		if err != nil {
			return err
		}
		u, err := store.LockUserForUpdate(ctx, tx, userID)
		if err != nil {
			return mapNotFound(err, "user not found")
		}

		price := c.currentPrice(ctx, state.CurrentDay, state.InitialPrice)
		cost := store.Round2(price * float64(q))
		if u.Cash < cost {
			return gameerr.New(gameerr.InsufficientFunds, "insufficient cash for purchase")
		}

		u.Cash = store.Round2(u.Cash - cost)
		u.Stocks += q
		if err := store.SaveUserBalances(ctx, tx, u); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to save balances", err)
		}

		result = TradeResult{Cash: u.Cash, Stocks: u.Stocks, Price: price}
		return nil
	})
	if err == nil {
		c.recordVolume(userID, q)
	}
	return result, err
}

// SellStock executes a spot sale of q shares at the current price.
func (c *Core) SellStock(ctx context.Context, userID string, q int64) (TradeResult, error) {
	if q < 1 {
		return TradeResult{}, gameerr.Validationf("quantity must be at least 1")
	}

	var result TradeResult
	err := c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		state, err := c.gameState(ctx, tx)
		if err != nil {
			return err
		}
		u, err := store.LockUserForUpdate(ctx, tx, userID)
		if err != nil {
			return mapNotFound(err, "user not found")
		}
		if u.Stocks < q {
			return gameerr.New(gameerr.InsufficientHoldings, "insufficient stocks to sell")
		}

		price := c.currentPrice(ctx, state.CurrentDay, state.InitialPrice)
		proceeds := store.Round2(price * float64(q))

		u.Cash = store.Round2(u.Cash + proceeds)
		u.Stocks -= q
		if err := store.SaveUserBalances(ctx, tx, u); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to save balances", err)
		}

		result = TradeResult{Cash: u.Cash, Stocks: u.Stocks, Price: price}
		return nil
	})
	if err == nil {
		c.recordVolume(userID, q)
	}
	return result, err
}

// ContractResult is the success payload for BUY_CONTRACT.
type ContractResult struct {
	Order store.ContractOrder `json:"order"`
	Cash  float64             `json:"cash"`
}

// OpenContract opens a leveraged one-day contract.
func (c *Core) OpenContract(ctx context.Context, userID string, typ store.ContractType, leverage float64, q int64) (ContractResult, error) {
	if typ != store.ContractLong && typ != store.ContractShort {
		return ContractResult{}, gameerr.Validationf("contract type must be LONG or SHORT")
	}
	if q < 1 {
		return ContractResult{}, gameerr.Validationf("quantity must be at least 1")
	}
	if leverage < 1 {
		return ContractResult{}, gameerr.Validationf("leverage must be at least 1")
	}

	var result ContractResult
	err := c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		state, err := c.gameState(ctx, tx)
		if err != nil {
			return err
		}
		if !state.IsStarted {
			return gameerr.New(gameerr.Precondition, "game is not running")
		}
		if leverage > state.MaxLeverage {
			return gameerr.Validationf("leverage exceeds maxLeverage %.2f", state.MaxLeverage)
		}

		u, err := store.LockUserForUpdate(ctx, tx, userID)
		if err != nil {
			return mapNotFound(err, "user not found")
		}

		price := c.currentPrice(ctx, state.CurrentDay, state.InitialPrice)
		margin := store.Round2(price * float64(q) / leverage)
		if u.Cash < margin {
			return gameerr.New(gameerr.InsufficientFunds, "insufficient cash for margin")
		}

		u.Cash = store.Round2(u.Cash - margin)
		if err := store.SaveUserBalances(ctx, tx, u); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to save balances", err)
		}

		order := store.ContractOrder{
			ID:         uuid.NewString(),
			UserID:     userID,
			Day:        state.CurrentDay,
			Type:       typ,
			Leverage:   leverage,
			Quantity:   q,
			Margin:     margin,
			EntryPrice: price,
		}
		if err := store.CreateContractOrder(ctx, tx, order); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to create contract order", err)
		}

		result = ContractResult{Order: order, Cash: u.Cash}
		return nil
	})
	return result, err
}

// CancelResult is the success payload for CANCEL_CONTRACT.
type CancelResult struct {
	CancelledIDs []string `json:"cancelledIds"`
	Refund       float64  `json:"refund"`
	Cash         float64  `json:"cash"`
}

// CancelContracts cancels every open contract the user holds for the
// current day and refunds their summed margin.
func (c *Core) CancelContracts(ctx context.Context, userID string) (CancelResult, error) {
	var result CancelResult
	err := c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		state, err := c.gameState(ctx, tx)
		if err != nil {
			return err
		}

		u, err := store.LockUserForUpdate(ctx, tx, userID)
		if err != nil {
			return mapNotFound(err, "user not found")
		}

		orders, err := store.ListOpenContractsForUserDay(ctx, tx, userID, state.CurrentDay)
		if err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to list open contracts", err)
		}
		if len(orders) == 0 {
			return gameerr.New(gameerr.NotFound, "no open contracts for today")
		}

		var refund float64
		ids := make([]string, 0, len(orders))
		for _, o := range orders {
			refund = store.Round2(refund + o.Margin)
			ids = append(ids, o.ID)
		}

		if err := store.CancelContractOrders(ctx, tx, ids); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to cancel contracts", err)
		}

		u.Cash = store.Round2(u.Cash + refund)
		if err := store.SaveUserBalances(ctx, tx, u); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to save balances", err)
		}

		result = CancelResult{CancelledIDs: ids, Refund: refund, Cash: u.Cash}
		return nil
	})
	return result, err
}

// CreditResult is the success payload for BORROW_MONEY/REPAY_MONEY.
type CreditResult struct {
	Cash          float64 `json:"cash"`
	Debt          float64 `json:"debt"`
	DailyBorrowed float64 `json:"dailyBorrowed"`
}

// Borrow increases debt and cash by amount, subject to the per-day quota.
func (c *Core) Borrow(ctx context.Context, userID string, amount float64) (CreditResult, error) {
	amount = store.Round2(amount)
	if amount <= 0 {
		return CreditResult{}, gameerr.Validationf("borrow amount must be positive")
	}

	var result CreditResult
	err := c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		state, err := c.gameState(ctx, tx)
		if err != nil {
			return err
		}
		if !state.IsStarted {
			return gameerr.New(gameerr.Precondition, "game is not running")
		}

		u, err := store.LockUserForUpdate(ctx, tx, userID)
		if err != nil {
			return mapNotFound(err, "user not found")
		}
		if store.Round2(u.DailyBorrowed+amount) > state.MaxLoanAmount {
			return gameerr.New(gameerr.QuotaExceeded, "borrow exceeds daily loan quota")
		}

		u.Cash = store.Round2(u.Cash + amount)
		u.Debt = store.Round2(u.Debt + amount)
		u.DailyBorrowed = store.Round2(u.DailyBorrowed + amount)
		if err := store.SaveUserBalances(ctx, tx, u); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to save balances", err)
		}

		result = CreditResult{Cash: u.Cash, Debt: u.Debt, DailyBorrowed: u.DailyBorrowed}
		return nil
	})
	return result, err
}

// Repay reduces debt by min(amount, debt), drawn from cash.
func (c *Core) Repay(ctx context.Context, userID string, amount float64) (CreditResult, error) {
	amount = store.Round2(amount)
	if amount <= 0 {
		return CreditResult{}, gameerr.Validationf("repay amount must be positive")
	}

	var result CreditResult
	err := c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		state, err := c.gameState(ctx, tx)
		if err != nil {
			return err
		}
		if !state.IsStarted {
			return gameerr.New(gameerr.Precondition, "game is not running")
		}

		u, err := store.LockUserForUpdate(ctx, tx, userID)
		if err != nil {
			return mapNotFound(err, "user not found")
		}
		if u.Cash < amount {
			return gameerr.New(gameerr.InsufficientFunds, "insufficient cash to repay")
		}

		actual := amount
		if actual > u.Debt {
			actual = u.Debt
		}
		u.Cash = store.Round2(u.Cash - actual)
		u.Debt = store.Round2(u.Debt - actual)
		if err := store.SaveUserBalances(ctx, tx, u); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to save balances", err)
		}

		result = CreditResult{Cash: u.Cash, Debt: u.Debt, DailyBorrowed: u.DailyBorrowed}
		return nil
	})
	return result, err
}

// LoanSharkResult is the success payload for VISIT_LOAN_SHARK.
type LoanSharkResult struct {
	LoanSharkVisitCount int `json:"loanSharkVisitCount"`
}

// VisitLoanShark records a flavor visit; the spec defines no gameplay
// effect beyond the persisted counter (reset on start alongside
// avatarUpdateCount).
func (c *Core) VisitLoanShark(ctx context.Context, userID string) (LoanSharkResult, error) {
	var result LoanSharkResult
	err := c.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		u, err := store.LockUserForUpdate(ctx, tx, userID)
		if err != nil {
			return mapNotFound(err, "user not found")
		}
		u.LoanSharkVisitCount++
		if err := store.SaveUserBalances(ctx, tx, u); err != nil {
			return gameerr.Wrap(gameerr.Internal, "failed to save balances", err)
		}
		result = LoanSharkResult{LoanSharkVisitCount: u.LoanSharkVisitCount}
		return nil
	})
	return result, err
}

// gameState reads GameStatus without a row lock: trading handlers only need
// a consistent read of params within their own transaction, and locking the
// singleton row here would serialize every trade in the game behind a
// single mutex. Only lifecycle operations (start/stop/.../updateParams)
// take the GameStatus row lock.
func (c *Core) gameState(ctx context.Context, tx pgx.Tx) (clock.GameState, error) {
	gs, err := store.GetGameStatus(ctx, tx)
	if err != nil {
		return clock.GameState{}, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", err)
	}
	return clock.Derive(gs, c.Clock.Now()), nil
}

func mapNotFound(err error, msg string) error {
	if err == store.ErrNotFound {
		return gameerr.New(gameerr.NotFound, msg)
	}
	return gameerr.Wrap(gameerr.StoreUnavailable, msg, err)
}
