package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const minigameRuntimeKey = "CURRENT_GAME"

func scanMiniGameRuntime(row pgx.Row) (MiniGameRuntime, error) {
	var r MiniGameRuntime
	err := row.Scan(&r.Key, &r.GameType, &r.Phase, &r.StartTime, &r.EndTime, &r.Payload)
	return r, err
}

// GetMiniGameRuntime loads the singleton mini-game snapshot, used to
// rehydrate an in-flight round's timers after a process restart (§4.5, §5).
// ErrNotFound means no round has ever run.
func GetMiniGameRuntime(ctx context.Context, q Querier) (MiniGameRuntime, error) {
	row := q.QueryRow(ctx, `
		SELECT key, game_type, phase, start_time, end_time, payload
		FROM minigame_runtime WHERE key = $1
	`, minigameRuntimeKey)
	r, err := scanMiniGameRuntime(row)
	if err == pgx.ErrNoRows {
		return MiniGameRuntime{}, ErrNotFound
	}
	return r, err
}

// SaveMiniGameRuntime upserts the singleton snapshot. Called on every phase
// transition so a crash mid-round loses at most the current tick.
func SaveMiniGameRuntime(ctx context.Context, q Querier, r MiniGameRuntime) error {
	_, err := q.Exec(ctx, `
		INSERT INTO minigame_runtime (key, game_type, phase, start_time, end_time, payload)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (key) DO UPDATE SET
			game_type = excluded.game_type, phase = excluded.phase,
			start_time = excluded.start_time, end_time = excluded.end_time,
			payload = excluded.payload
	`, minigameRuntimeKey, r.GameType, r.Phase, r.StartTime, r.EndTime, r.Payload)
	return err
}

// ClearMiniGameRuntime resets the snapshot to the idle state, used when the
// engine returns to idle with no game type (admin RESET). A finished round
// stays stored in its RESULT phase until then.
func ClearMiniGameRuntime(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, `DELETE FROM minigame_runtime WHERE key = $1`, minigameRuntimeKey)
	return err
}
