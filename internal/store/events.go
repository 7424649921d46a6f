package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.Day, &e.Title, &e.News, &e.Trend)
	return e, err
}

const eventColumns = `id, day, title, news, trend`

// ListEvents returns every scheduled event ordered by day, consumed by the
// script generator.
func ListEvents(ctx context.Context, q Querier) ([]Event, error) {
	rows, err := q.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY day`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateEvent inserts an admin-authored script input.
func CreateEvent(ctx context.Context, q Querier, e Event) error {
	_, err := q.Exec(ctx, `
		INSERT INTO events (id, day, title, news, trend) VALUES ($1,$2,$3,$4,$5)
	`, e.ID, e.Day, e.Title, e.News, e.Trend)
	return err
}

// UpdateEvent overwrites an event's fields by id.
func UpdateEvent(ctx context.Context, q Querier, e Event) error {
	tag, err := q.Exec(ctx, `
		UPDATE events SET day = $2, title = $3, news = $4, trend = $5 WHERE id = $1
	`, e.ID, e.Day, e.Title, e.News, e.Trend)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEvent removes an event by id.
func DeleteEvent(ctx context.Context, q Querier, id string) error {
	_, err := q.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	return err
}

// DeleteAllEvents removes every event (§4.1 reset).
func DeleteAllEvents(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, `DELETE FROM events`)
	return err
}
