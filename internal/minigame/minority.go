package minigame

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"marketday/internal/bus"
	"marketday/internal/gameerr"
	"marketday/internal/store"
)

func (e *Engine) initMinorityLocked(ctx context.Context, questionID string) error {
	q, err := store.GetMinorityQuestion(ctx, e.Store.Pool, questionID)
	if err != nil {
		if err == store.ErrNotFound {
			return gameerr.NotFoundf("minority question %q not found", questionID)
		}
		return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load minority question", err)
	}

	now := e.Now()
	end := now.Add(quizPrepareSeconds * time.Second)
	e.runtime = Runtime{
		GameType:  store.MiniGameMinority,
		Phase:     PhasePrepare,
		StartTime: &now,
		EndTime:   &end,
		Minority: &MinorityPayload{
			QuestionID: q.ID,
			Text:       q.Text,
			Options:    [4]string{q.OptionA, q.OptionB, q.OptionC, q.OptionD},
			Duration:   q.Duration,
			Bets:       map[string]Bet{},
		},
	}

	if err := e.persistLocked(ctx); err != nil {
		return err
	}
	e.broadcastSyncLocked(nil)
	e.scheduleLocked(e.onMinorityPrepareElapsed)
	return nil
}

func (e *Engine) onMinorityPrepareElapsed(ctx context.Context) {
	e.mu.Lock()
	if e.runtime.GameType != store.MiniGameMinority || e.runtime.Phase != PhasePrepare {
		e.mu.Unlock()
		return
	}
	now := e.Now()
	end := now.Add(countdownSeconds * time.Second)
	e.runtime.Phase = PhaseCountdown
	e.runtime.StartTime = &now
	e.runtime.EndTime = &end
	_ = e.persistLocked(ctx)
	e.broadcastSyncLocked(nil)
	e.scheduleLocked(e.onMinorityCountdownElapsed)
	e.mu.Unlock()

	e.runCountdownBroadcast(countdownSeconds)
}

func (e *Engine) onMinorityCountdownElapsed(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime.GameType != store.MiniGameMinority || e.runtime.Phase != PhaseCountdown {
		return
	}
	now := e.Now()
	settleAt := now.Add(time.Duration(e.runtime.Minority.Duration)*time.Second + settleGraceSeconds*time.Second)
	e.runtime.Phase = PhaseGaming
	e.runtime.StartTime = &now
	e.runtime.EndTime = &settleAt

	if err := e.persistLocked(ctx); err != nil {
		return
	}
	e.broadcastSyncLocked(nil)
	e.scheduleLocked(e.onMinorityGamingElapsed)
}

// PlaceBet implements PLACE_BET(option, amount); each user's last
// submission wins — prior entries are replaced, not accumulated.
func (e *Engine) PlaceBet(ctx context.Context, userID, option string, amount float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireGameType(store.MiniGameMinority); err != nil {
		return err
	}
	if err := e.requirePhase(PhaseGaming); err != nil {
		return err
	}
	if option != "A" && option != "B" && option != "C" && option != "D" {
		return gameerr.Validationf("option must be one of A, B, C, D")
	}
	if amount < 0 {
		return gameerr.Validationf("amount must be non-negative")
	}

	if amount > 0 {
		u, err := store.GetUserByID(ctx, e.Store.Pool, userID)
		if err != nil {
			return mapMinorityNotFound(err)
		}
		if u.Cash < amount {
			return gameerr.New(gameerr.InsufficientFunds, "insufficient cash to place bet")
		}
	}

	e.runtime.Minority.Bets[userID] = Bet{Option: option, Amount: store.Round2(amount)}
	return e.persistLocked(ctx)
}

func mapMinorityNotFound(err error) error {
	if err == store.ErrNotFound {
		return gameerr.New(gameerr.NotFound, "user not found")
	}
	return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load user", err)
}

type minorityOptionStats struct {
	Count    int      `json:"count"`
	TotalBet float64  `json:"totalBet"`
	UserIDs  []string `json:"userIds"`
}

type minoritySettlementResult struct {
	Status         string                         `json:"status"`
	WinningOptions []string                       `json:"winningOptions"`
	LosingOptions  []string                       `json:"losingOptions"`
	Stats          map[string]minorityOptionStats `json:"stats"`
	UserResults    map[string]float64             `json:"userResults"` // net cash delta per user
}

func (e *Engine) onMinorityGamingElapsed(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime.GameType != store.MiniGameMinority || e.runtime.Phase != PhaseGaming {
		return
	}

	stats := map[string]minorityOptionStats{}
	for userID, b := range e.runtime.Minority.Bets {
		s := stats[b.Option]
		s.Count++
		s.TotalBet = store.Round2(s.TotalBet + b.Amount)
		s.UserIDs = append(s.UserIDs, userID)
		stats[b.Option] = s
	}

	var voted []string
	for opt, s := range stats {
		if s.Count > 0 {
			voted = append(voted, opt)
		}
	}

	result := minoritySettlementResult{Stats: stats, UserResults: map[string]float64{}}

	switch {
	case len(voted) <= 1:
		result.Status = "REFUND"
	default:
		minCount := -1
		for _, opt := range voted {
			if minCount == -1 || stats[opt].Count < minCount {
				minCount = stats[opt].Count
			}
		}
		allEqual := true
		for _, opt := range voted {
			if stats[opt].Count != minCount {
				allEqual = false
				break
			}
		}
		if allEqual {
			result.Status = "HOUSE_WINS"
			for _, opt := range voted {
				result.LosingOptions = append(result.LosingOptions, opt)
			}
		} else {
			result.Status = "STANDARD"
			for _, opt := range voted {
				if stats[opt].Count == minCount {
					result.WinningOptions = append(result.WinningOptions, opt)
				} else {
					result.LosingOptions = append(result.LosingOptions, opt)
				}
			}
		}
	}

	winnerPool := 0.0
	loserPool := 0.0
	for _, opt := range result.WinningOptions {
		winnerPool = store.Round2(winnerPool + stats[opt].TotalBet)
	}
	for _, opt := range result.LosingOptions {
		loserPool = store.Round2(loserPool + stats[opt].TotalBet)
	}

	isWinningOption := map[string]bool{}
	for _, opt := range result.WinningOptions {
		isWinningOption[opt] = true
	}
	isLosingOption := map[string]bool{}
	for _, opt := range result.LosingOptions {
		isLosingOption[opt] = true
	}

	updated := make(map[string]store.User)
	err := e.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for userID, b := range e.runtime.Minority.Bets {
			var delta float64
			switch {
			case result.Status == "REFUND":
				continue
			case isWinningOption[b.Option]:
				if winnerPool > 0 && b.Amount > 0 {
					delta = roundToInt(b.Amount / winnerPool * loserPool)
				}
			case isLosingOption[b.Option]:
				delta = -b.Amount
			default:
				continue
			}
			if delta == 0 {
				continue
			}

			u, err := store.LockUserForUpdate(ctx, tx, userID)
			if err != nil {
				continue
			}
			if delta > 0 {
				u.Cash = store.Round2(u.Cash + delta)
			} else {
				loss := -delta
				if u.Cash >= loss {
					u.Cash = store.Round2(u.Cash - loss)
				} else {
					u.Debt = store.Round2(u.Debt + (loss - u.Cash))
					u.Cash = 0
				}
			}
			if err := store.SaveUserBalances(ctx, tx, u); err != nil {
				return err
			}
			updated[userID] = u
			result.UserResults[userID] = delta
		}
		return nil
	})
	if err != nil {
		return
	}

	e.runtime.Phase = PhaseResult
	if err := e.persistLocked(ctx); err != nil {
		return
	}
	e.broadcastSyncLocked(map[string]any{"settlementResult": result})

	for userID, u := range updated {
		e.Bus.ToUser(userID, bus.EventAssetsUpdate, map[string]any{
			"cash": u.Cash, "stocks": u.Stocks, "debt": u.Debt, "dailyBorrowed": u.DailyBorrowed,
		})
	}
	e.broadcastFreshLeaderboard(ctx)
}

func roundToInt(v float64) float64 {
	if v < 0 {
		return -roundToInt(-v)
	}
	return float64(int64(v + 0.5))
}
