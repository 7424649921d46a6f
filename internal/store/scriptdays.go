package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func scanScriptDay(row pgx.Row) (ScriptDay, error) {
	var sd ScriptDay
	err := row.Scan(&sd.Day, &sd.Price, &sd.Title, &sd.News, &sd.EffectiveTrend, &sd.PublishOffset, &sd.IsBroadcasted)
	return sd, err
}

const scriptDayColumns = `day, price, title, news, effective_trend, publish_offset, is_broadcasted`

// ListScriptDays returns the full timeline ordered by day.
func ListScriptDays(ctx context.Context, q Querier) ([]ScriptDay, error) {
	rows, err := q.Query(ctx, `SELECT `+scriptDayColumns+` FROM script_days ORDER BY day`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScriptDay
	for rows.Next() {
		sd, err := scanScriptDay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sd)
	}
	return out, rows.Err()
}

// GetScriptDay fetches a single day.
func GetScriptDay(ctx context.Context, q Querier, day int) (ScriptDay, error) {
	row := q.QueryRow(ctx, `SELECT `+scriptDayColumns+` FROM script_days WHERE day = $1`, day)
	sd, err := scanScriptDay(row)
	if err == pgx.ErrNoRows {
		return ScriptDay{}, ErrNotFound
	}
	return sd, err
}

// ReplaceScriptDays atomically wipes and bulk-inserts the full series
// (§4.7 "Persist by deleting all ScriptDays... and bulk-inserting").
func ReplaceScriptDays(ctx context.Context, q Querier, days []ScriptDay) error {
	if _, err := q.Exec(ctx, `DELETE FROM script_days`); err != nil {
		return err
	}
	for _, sd := range days {
		if _, err := q.Exec(ctx, `
			INSERT INTO script_days (day, price, title, news, effective_trend, publish_offset, is_broadcasted)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sd.Day, sd.Price, sd.Title, sd.News, sd.EffectiveTrend, sd.PublishOffset, sd.IsBroadcasted); err != nil {
			return err
		}
	}
	return nil
}

// MarkScriptDayBroadcasted sets isBroadcasted=true for a single day,
// returning ErrNotFound if the day is missing so callers can no-op.
func MarkScriptDayBroadcasted(ctx context.Context, q Querier, day int) error {
	tag, err := q.Exec(ctx, `UPDATE script_days SET is_broadcasted = TRUE WHERE day = $1`, day)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetBroadcastFlags clears isBroadcasted for every day (start/restart).
func ResetBroadcastFlags(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, `UPDATE script_days SET is_broadcasted = FALSE`)
	return err
}

// DeleteAllScriptDays removes the entire timeline (§4.1 reset).
func DeleteAllScriptDays(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, `DELETE FROM script_days`)
	return err
}
