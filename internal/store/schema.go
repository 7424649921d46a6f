package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS game_status (
	id INTEGER PRIMARY KEY,
	is_started BOOLEAN NOT NULL DEFAULT FALSE,
	game_start_time TIMESTAMPTZ,
	paused_at TIMESTAMPTZ,
	time_ratio DOUBLE PRECISION NOT NULL DEFAULT 600,
	total_days INTEGER NOT NULL DEFAULT 120,
	initial_price DOUBLE PRECISION NOT NULL DEFAULT 100,
	initial_cash DOUBLE PRECISION NOT NULL DEFAULT 10000,
	max_leverage DOUBLE PRECISION NOT NULL DEFAULT 10,
	daily_interest_rate DOUBLE PRECISION NOT NULL DEFAULT 0.0001,
	max_loan_amount DOUBLE PRECISION NOT NULL DEFAULT 5000
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	avatar TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'USER',
	cash NUMERIC(18,2) NOT NULL DEFAULT 0,
	stocks BIGINT NOT NULL DEFAULT 0,
	debt NUMERIC(18,2) NOT NULL DEFAULT 0,
	daily_borrowed NUMERIC(18,2) NOT NULL DEFAULT 0,
	first_sign_in BOOLEAN NOT NULL DEFAULT TRUE,
	is_employee BOOLEAN NOT NULL DEFAULT FALSE,
	avatar_update_count INTEGER NOT NULL DEFAULT 0,
	loan_shark_visit_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS script_days (
	day INTEGER PRIMARY KEY,
	price NUMERIC(18,2) NOT NULL,
	title TEXT,
	news TEXT,
	effective_trend TEXT NOT NULL DEFAULT 'FLAT',
	publish_offset INTEGER,
	is_broadcasted BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	day INTEGER NOT NULL,
	title TEXT NOT NULL,
	news TEXT,
	trend TEXT NOT NULL DEFAULT 'NO_EFFECT'
);
CREATE INDEX IF NOT EXISTS idx_events_day ON events(day);

CREATE TABLE IF NOT EXISTS contract_orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	day INTEGER NOT NULL,
	type TEXT NOT NULL,
	leverage DOUBLE PRECISION NOT NULL,
	quantity BIGINT NOT NULL,
	margin NUMERIC(18,2) NOT NULL,
	entry_price NUMERIC(18,2) NOT NULL,
	is_settled BOOLEAN NOT NULL DEFAULT FALSE,
	is_cancelled BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_contract_orders_user ON contract_orders(user_id);
CREATE INDEX IF NOT EXISTS idx_contract_orders_day_open ON contract_orders(day) WHERE NOT is_settled AND NOT is_cancelled;

CREATE TABLE IF NOT EXISTS red_envelope_items (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	prize_value NUMERIC(18,2) NOT NULL DEFAULT 0,
	amount INTEGER NOT NULL DEFAULT 0,
	display_order INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS quiz_questions (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	option_a TEXT NOT NULL,
	option_b TEXT NOT NULL,
	option_c TEXT NOT NULL,
	option_d TEXT NOT NULL,
	correct_answer TEXT NOT NULL,
	duration INTEGER NOT NULL DEFAULT 15,
	sort_order INTEGER NOT NULL DEFAULT 0,
	reward_first NUMERIC(18,2) NOT NULL DEFAULT 0,
	reward_second NUMERIC(18,2) NOT NULL DEFAULT 0,
	reward_third NUMERIC(18,2) NOT NULL DEFAULT 0,
	reward_others NUMERIC(18,2) NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS minority_questions (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	option_a TEXT NOT NULL,
	option_b TEXT NOT NULL,
	option_c TEXT NOT NULL,
	option_d TEXT NOT NULL,
	duration INTEGER NOT NULL DEFAULT 15,
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS minigame_runtime (
	key TEXT PRIMARY KEY,
	game_type TEXT NOT NULL DEFAULT 'NONE',
	phase TEXT NOT NULL DEFAULT 'IDLE',
	start_time TIMESTAMPTZ,
	end_time TIMESTAMPTZ,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb
);
`

// ApplyMigrations bootstraps the schema; kept lightweight for fast startup,
// mirroring the teacher's pkg/db/schema.go ensureColumn idempotency but
// driven by CREATE TABLE IF NOT EXISTS + a single idempotent seed of the
// GameStatus singleton.
func ApplyMigrations(ctx context.Context, s *Store) error {
	if s == nil || s.Pool == nil {
		return fmt.Errorf("store is not initialized")
	}
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	def := DefaultGameStatus()
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO game_status (
			id, is_started, time_ratio, total_days, initial_price, initial_cash,
			max_leverage, daily_interest_rate, max_loan_amount
		) VALUES (1, FALSE, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, def.TimeRatio, def.TotalDays, def.InitialPrice, def.InitialCash,
		def.MaxLeverage, def.DailyInterestRate, def.MaxLoanAmount)
	if err != nil {
		return fmt.Errorf("seed game_status: %w", err)
	}
	return nil
}
