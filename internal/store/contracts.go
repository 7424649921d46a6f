package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const contractColumns = `
	id, user_id, day, type, leverage, quantity, margin, entry_price,
	is_settled, is_cancelled, created_at
`

func scanContract(row pgx.Row) (ContractOrder, error) {
	var c ContractOrder
	err := row.Scan(&c.ID, &c.UserID, &c.Day, &c.Type, &c.Leverage, &c.Quantity,
		&c.Margin, &c.EntryPrice, &c.IsSettled, &c.IsCancelled, &c.CreatedAt)
	return c, err
}

// CreateContractOrder inserts a newly opened contract.
func CreateContractOrder(ctx context.Context, q Querier, c ContractOrder) error {
	_, err := q.Exec(ctx, `
		INSERT INTO contract_orders (id, user_id, day, type, leverage, quantity, margin, entry_price, is_settled, is_cancelled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,FALSE,FALSE)
	`, c.ID, c.UserID, c.Day, c.Type, c.Leverage, c.Quantity, c.Margin, c.EntryPrice)
	return err
}

// ListOpenContractsForUserDay returns this user's un-terminal orders for a
// given day (used by cancel).
func ListOpenContractsForUserDay(ctx context.Context, q Querier, userID string, day int) ([]ContractOrder, error) {
	rows, err := q.Query(ctx, `
		SELECT `+contractColumns+` FROM contract_orders
		WHERE user_id = $1 AND day = $2 AND NOT is_settled AND NOT is_cancelled
		FOR UPDATE
	`, userID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContractOrder
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CancelContractOrders marks the given order ids cancelled in one statement.
func CancelContractOrders(ctx context.Context, q Querier, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `UPDATE contract_orders SET is_cancelled = TRUE WHERE id = ANY($1)`, ids)
	return err
}

// ListOpenContractsForDay returns every un-terminal order for a day across
// all users, used by the settlement pipeline.
func ListOpenContractsForDay(ctx context.Context, q Querier, day int) ([]ContractOrder, error) {
	rows, err := q.Query(ctx, `
		SELECT `+contractColumns+` FROM contract_orders
		WHERE day = $1 AND NOT is_settled AND NOT is_cancelled
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContractOrder
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LockContractForUpdate re-fetches a single order with a row lock, used by
// the per-order settlement transaction to guard against a concurrent cancel.
func LockContractForUpdate(ctx context.Context, tx pgx.Tx, id string) (ContractOrder, error) {
	row := tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM contract_orders WHERE id = $1 FOR UPDATE`, id)
	c, err := scanContract(row)
	if err == pgx.ErrNoRows {
		return ContractOrder{}, ErrNotFound
	}
	return c, err
}

// MarkContractSettled flips isSettled=true; a no-op report via RowsAffected
// lets callers detect an already-settled order (I5 no-double-settle).
func MarkContractSettled(ctx context.Context, q Querier, id string) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE contract_orders SET is_settled = TRUE WHERE id = $1 AND NOT is_settled AND NOT is_cancelled
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SumOpenMarginsForUserDay sums margin across a user's open (un-terminal)
// contracts for a day, used by leaderboard totalAssets computation.
func SumOpenMarginsForUserDay(ctx context.Context, q Querier, userID string, day int) (float64, error) {
	var sum float64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(margin), 0) FROM contract_orders
		WHERE user_id = $1 AND day = $2 AND NOT is_settled AND NOT is_cancelled
	`, userID, day).Scan(&sum)
	return sum, err
}

// DeleteAllContractOrders removes every contract order (§4.1 restart/reset;
// must run before DeleteNonAdminUsersExcept to satisfy FK ordering, §9(d)).
func DeleteAllContractOrders(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, `DELETE FROM contract_orders`)
	return err
}
