package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// CreateUser inserts a new account.
func CreateUser(ctx context.Context, q Querier, u User) error {
	_, err := q.Exec(ctx, `
		INSERT INTO users (
			id, username, password_hash, display_name, avatar, role,
			cash, stocks, debt, daily_borrowed, first_sign_in, is_employee
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, u.ID, u.Username, u.PasswordHash, u.DisplayName, u.Avatar, u.Role,
		u.Cash, u.Stocks, u.Debt, u.DailyBorrowed, u.FirstSignIn, u.IsEmployee)
	return err
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.DisplayName, &u.Avatar, &u.Role,
		&u.Cash, &u.Stocks, &u.Debt, &u.DailyBorrowed, &u.FirstSignIn, &u.IsEmployee,
		&u.AvatarUpdateCount, &u.LoanSharkVisitCount, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

const userColumns = `
	id, username, password_hash, display_name, avatar, role,
	cash, stocks, debt, daily_borrowed, first_sign_in, is_employee,
	avatar_update_count, loan_shark_visit_count, created_at, updated_at
`

// GetUserByID fetches a user without locking.
func GetUserByID(ctx context.Context, q Querier, id string) (User, error) {
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == pgx.ErrNoRows {
		return User{}, ErrNotFound
	}
	return u, err
}

// GetUserByUsername fetches a user by unique username.
func GetUserByUsername(ctx context.Context, q Querier, username string) (User, error) {
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	u, err := scanUser(row)
	if err == pgx.ErrNoRows {
		return User{}, ErrNotFound
	}
	return u, err
}

// LockUserForUpdate fetches a user row with SELECT ... FOR UPDATE, serializing
// every concurrent money-mutating operation against this user. Must be called
// inside a transaction (tx satisfies Querier).
func LockUserForUpdate(ctx context.Context, tx pgx.Tx, id string) (User, error) {
	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	u, err := scanUser(row)
	if err == pgx.ErrNoRows {
		return User{}, ErrNotFound
	}
	return u, err
}

// SaveUserBalances persists the money fields and per-user counters of a
// user after a transaction step. Identity/profile fields are untouched
// here; use UpdateUserProfile for those.
func SaveUserBalances(ctx context.Context, q Querier, u User) error {
	_, err := q.Exec(ctx, `
		UPDATE users SET
			cash = $2, stocks = $3, debt = $4, daily_borrowed = $5,
			first_sign_in = $6, avatar_update_count = $7, loan_shark_visit_count = $8,
			updated_at = now()
		WHERE id = $1
	`, u.ID, Round2(u.Cash), u.Stocks, Round2(u.Debt), Round2(u.DailyBorrowed),
		u.FirstSignIn, u.AvatarUpdateCount, u.LoanSharkVisitCount)
	return err
}

// SaveUserAvatar persists avatar and its update counter together.
func SaveUserAvatar(ctx context.Context, q Querier, u User) error {
	_, err := q.Exec(ctx, `
		UPDATE users SET avatar = $2, avatar_update_count = $3, updated_at = now()
		WHERE id = $1
	`, u.ID, u.Avatar, u.AvatarUpdateCount)
	return err
}

// UpdateUserProfile persists identity fields (displayName, avatar,
// passwordHash) separately from SaveUserBalances's money fields.
func UpdateUserProfile(ctx context.Context, q Querier, u User) error {
	_, err := q.Exec(ctx, `
		UPDATE users SET display_name = $2, avatar = $3, password_hash = $4, updated_at = now()
		WHERE id = $1
	`, u.ID, u.DisplayName, u.Avatar, u.PasswordHash)
	return err
}

// SetUserRoleAndEmployee persists role and mini-game eligibility, the two
// fields an admin can flip without touching balances.
func SetUserRoleAndEmployee(ctx context.Context, q Querier, u User) error {
	_, err := q.Exec(ctx, `
		UPDATE users SET role = $2, is_employee = $3, updated_at = now()
		WHERE id = $1
	`, u.ID, u.Role, u.IsEmployee)
	return err
}

// DeleteUser removes a single account, used by admin user management.
func DeleteUser(ctx context.Context, q Querier, id string) error {
	_, err := q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// ListAllUsers returns every user, used by leaderboard computation and
// the admin user list.
func ListAllUsers(ctx context.Context, q Querier) ([]User, error) {
	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListEmployees returns users flagged as mini-game participants.
func ListEmployees(ctx context.Context, q Querier) ([]User, error) {
	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users WHERE is_employee`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ApplyInterestAccrual multiplies debt by (1+rate) for every indebted user,
// rounded to 2 decimals at write (§4.4 step 1).
func ApplyInterestAccrual(ctx context.Context, q Querier, rate float64) error {
	_, err := q.Exec(ctx, `
		UPDATE users SET debt = ROUND((debt * (1 + $1))::numeric, 2), updated_at = now()
		WHERE debt > 0
	`, rate)
	return err
}

// ResetDailyBorrowed zeroes dailyBorrowed for every user (§4.4 step 2).
func ResetDailyBorrowed(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, `UPDATE users SET daily_borrowed = 0, updated_at = now()`)
	return err
}

// ResetAvatarAndLoanCounters clears per-run counters on game start.
func ResetAvatarAndLoanCounters(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, `
		UPDATE users SET avatar_update_count = 0, loan_shark_visit_count = 0, updated_at = now()
	`)
	return err
}

// ResetAllUsersForRestart zeroes balances back to the configured initial
// state (§4.1 restart).
func ResetAllUsersForRestart(ctx context.Context, q Querier, initialCash float64) error {
	_, err := q.Exec(ctx, `
		UPDATE users SET
			cash = $1, stocks = 0, debt = 0, daily_borrowed = 0, first_sign_in = FALSE,
			updated_at = now()
	`, initialCash)
	return err
}

// DeleteNonAdminUsersExcept removes every non-admin user other than
// keepUserID (§4.1 reset, §9(d): contract orders must be deleted first to
// satisfy FK ordering — callers delete contract orders before calling this).
func DeleteNonAdminUsersExcept(ctx context.Context, q Querier, keepUserID string) error {
	_, err := q.Exec(ctx, `
		DELETE FROM users WHERE role <> 'ADMIN' AND id <> $1
	`, keepUserID)
	return err
}

