package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// --- Red envelope items ---

const redEnvelopeColumns = `id, name, type, prize_value, amount, display_order, is_active`

func scanRedEnvelopeItem(row pgx.Row) (RedEnvelopeItem, error) {
	var it RedEnvelopeItem
	err := row.Scan(&it.ID, &it.Name, &it.Type, &it.PrizeValue, &it.Amount, &it.DisplayOrder, &it.IsActive)
	return it, err
}

// ListActiveRedEnvelopeItems returns the admin catalogue rows flagged
// active, ordered for display and for deterministic packet expansion.
func ListActiveRedEnvelopeItems(ctx context.Context, q Querier) ([]RedEnvelopeItem, error) {
	rows, err := q.Query(ctx, `
		SELECT `+redEnvelopeColumns+` FROM red_envelope_items
		WHERE is_active ORDER BY display_order, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RedEnvelopeItem
	for rows.Next() {
		it, err := scanRedEnvelopeItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpsertRedEnvelopeItem creates or replaces a catalogue row.
func UpsertRedEnvelopeItem(ctx context.Context, q Querier, it RedEnvelopeItem) error {
	_, err := q.Exec(ctx, `
		INSERT INTO red_envelope_items (id, name, type, prize_value, amount, display_order, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, type = excluded.type, prize_value = excluded.prize_value,
			amount = excluded.amount, display_order = excluded.display_order, is_active = excluded.is_active
	`, it.ID, it.Name, it.Type, it.PrizeValue, it.Amount, it.DisplayOrder, it.IsActive)
	return err
}

// DeleteRedEnvelopeItem removes a catalogue row.
func DeleteRedEnvelopeItem(ctx context.Context, q Querier, id string) error {
	_, err := q.Exec(ctx, `DELETE FROM red_envelope_items WHERE id = $1`, id)
	return err
}

// --- Quiz questions ---

const quizColumns = `
	id, text, option_a, option_b, option_c, option_d, correct_answer, duration, sort_order,
	reward_first, reward_second, reward_third, reward_others
`

func scanQuizQuestion(row pgx.Row) (QuizQuestion, error) {
	var q QuizQuestion
	err := row.Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
		&q.CorrectAnswer, &q.Duration, &q.SortOrder,
		&q.Rewards.First, &q.Rewards.Second, &q.Rewards.Third, &q.Rewards.Others)
	return q, err
}

// ListQuizQuestions returns the catalogue ordered by sortOrder.
func ListQuizQuestions(ctx context.Context, q Querier) ([]QuizQuestion, error) {
	rows, err := q.Query(ctx, `SELECT `+quizColumns+` FROM quiz_questions ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuizQuestion
	for rows.Next() {
		item, err := scanQuizQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// GetQuizQuestion fetches a single question by id.
func GetQuizQuestion(ctx context.Context, q Querier, id string) (QuizQuestion, error) {
	row := q.QueryRow(ctx, `SELECT `+quizColumns+` FROM quiz_questions WHERE id = $1`, id)
	item, err := scanQuizQuestion(row)
	if err == pgx.ErrNoRows {
		return QuizQuestion{}, ErrNotFound
	}
	return item, err
}

// NextQuizQuestion finds the first question with sortOrder greater than
// current's, tie-broken by id, used to chain quiz rounds (§4.5).
func NextQuizQuestion(ctx context.Context, q Querier, currentSortOrder int) (QuizQuestion, error) {
	row := q.QueryRow(ctx, `
		SELECT `+quizColumns+` FROM quiz_questions
		WHERE sort_order > $1 ORDER BY sort_order, id LIMIT 1
	`, currentSortOrder)
	item, err := scanQuizQuestion(row)
	if err == pgx.ErrNoRows {
		return QuizQuestion{}, ErrNotFound
	}
	return item, err
}

// UpsertQuizQuestion creates or replaces a catalogue row.
func UpsertQuizQuestion(ctx context.Context, q Querier, item QuizQuestion) error {
	_, err := q.Exec(ctx, `
		INSERT INTO quiz_questions (
			id, text, option_a, option_b, option_c, option_d, correct_answer, duration, sort_order,
			reward_first, reward_second, reward_third, reward_others
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			text = excluded.text, option_a = excluded.option_a, option_b = excluded.option_b,
			option_c = excluded.option_c, option_d = excluded.option_d,
			correct_answer = excluded.correct_answer, duration = excluded.duration,
			sort_order = excluded.sort_order, reward_first = excluded.reward_first,
			reward_second = excluded.reward_second, reward_third = excluded.reward_third,
			reward_others = excluded.reward_others
	`, item.ID, item.Text, item.OptionA, item.OptionB, item.OptionC, item.OptionD,
		item.CorrectAnswer, item.Duration, item.SortOrder,
		item.Rewards.First, item.Rewards.Second, item.Rewards.Third, item.Rewards.Others)
	return err
}

// DeleteQuizQuestion removes a catalogue row.
func DeleteQuizQuestion(ctx context.Context, q Querier, id string) error {
	_, err := q.Exec(ctx, `DELETE FROM quiz_questions WHERE id = $1`, id)
	return err
}

// --- Minority vote questions ---

const minorityColumns = `id, text, option_a, option_b, option_c, option_d, duration, sort_order`

func scanMinorityQuestion(row pgx.Row) (MinorityQuestion, error) {
	var m MinorityQuestion
	err := row.Scan(&m.ID, &m.Text, &m.OptionA, &m.OptionB, &m.OptionC, &m.OptionD, &m.Duration, &m.SortOrder)
	return m, err
}

// ListMinorityQuestions returns the catalogue ordered by sortOrder.
func ListMinorityQuestions(ctx context.Context, q Querier) ([]MinorityQuestion, error) {
	rows, err := q.Query(ctx, `SELECT `+minorityColumns+` FROM minority_questions ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MinorityQuestion
	for rows.Next() {
		m, err := scanMinorityQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMinorityQuestion fetches a single question by id.
func GetMinorityQuestion(ctx context.Context, q Querier, id string) (MinorityQuestion, error) {
	row := q.QueryRow(ctx, `SELECT `+minorityColumns+` FROM minority_questions WHERE id = $1`, id)
	m, err := scanMinorityQuestion(row)
	if err == pgx.ErrNoRows {
		return MinorityQuestion{}, ErrNotFound
	}
	return m, err
}

// UpsertMinorityQuestion creates or replaces a catalogue row.
func UpsertMinorityQuestion(ctx context.Context, q Querier, m MinorityQuestion) error {
	_, err := q.Exec(ctx, `
		INSERT INTO minority_questions (id, text, option_a, option_b, option_c, option_d, duration, sort_order)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			text = excluded.text, option_a = excluded.option_a, option_b = excluded.option_b,
			option_c = excluded.option_c, option_d = excluded.option_d,
			duration = excluded.duration, sort_order = excluded.sort_order
	`, m.ID, m.Text, m.OptionA, m.OptionB, m.OptionC, m.OptionD, m.Duration, m.SortOrder)
	return err
}

// DeleteMinorityQuestion removes a catalogue row.
func DeleteMinorityQuestion(ctx context.Context, q Querier, id string) error {
	_, err := q.Exec(ctx, `DELETE FROM minority_questions WHERE id = $1`, id)
	return err
}
