package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const gameStatusColumns = `
	id, is_started, game_start_time, paused_at, time_ratio, total_days,
	initial_price, initial_cash, max_leverage, daily_interest_rate, max_loan_amount
`

func scanGameStatus(row pgx.Row) (GameStatus, error) {
	var gs GameStatus
	err := row.Scan(
		&gs.ID, &gs.IsStarted, &gs.GameStartTime, &gs.PausedAt, &gs.TimeRatio, &gs.TotalDays,
		&gs.InitialPrice, &gs.InitialCash, &gs.MaxLeverage, &gs.DailyInterestRate, &gs.MaxLoanAmount,
	)
	return gs, err
}

// GetGameStatus fetches the singleton row (id=1).
func GetGameStatus(ctx context.Context, q Querier) (GameStatus, error) {
	row := q.QueryRow(ctx, `SELECT `+gameStatusColumns+` FROM game_status WHERE id = 1`)
	return scanGameStatus(row)
}

// LockGameStatusForUpdate fetches and locks the singleton row inside a
// transaction, so lifecycle operations never race with each other or with
// updateParams.
func LockGameStatusForUpdate(ctx context.Context, tx pgx.Tx) (GameStatus, error) {
	row := tx.QueryRow(ctx, `SELECT `+gameStatusColumns+` FROM game_status WHERE id = 1 FOR UPDATE`)
	return scanGameStatus(row)
}

// SaveGameStatus writes back the full singleton row.
func SaveGameStatus(ctx context.Context, q Querier, gs GameStatus) error {
	_, err := q.Exec(ctx, `
		UPDATE game_status SET
			is_started = $1, game_start_time = $2, paused_at = $3, time_ratio = $4,
			total_days = $5, initial_price = $6, initial_cash = $7, max_leverage = $8,
			daily_interest_rate = $9, max_loan_amount = $10
		WHERE id = 1
	`, gs.IsStarted, gs.GameStartTime, gs.PausedAt, gs.TimeRatio, gs.TotalDays,
		gs.InitialPrice, gs.InitialCash, gs.MaxLeverage, gs.DailyInterestRate, gs.MaxLoanAmount)
	return err
}
