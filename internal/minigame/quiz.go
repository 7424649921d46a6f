package minigame

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"marketday/internal/bus"
	"marketday/internal/gameerr"
	"marketday/internal/store"
)

func (e *Engine) initQuizLocked(ctx context.Context, questionID string) error {
	q, err := store.GetQuizQuestion(ctx, e.Store.Pool, questionID)
	if err != nil {
		if err == store.ErrNotFound {
			return gameerr.NotFoundf("quiz question %q not found", questionID)
		}
		return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load quiz question", err)
	}

	nextID := ""
	next, err := store.NextQuizQuestion(ctx, e.Store.Pool, q.SortOrder)
	if err == nil {
		nextID = next.ID
	} else if err != store.ErrNotFound {
		return gameerr.Wrap(gameerr.StoreUnavailable, "failed to look up next quiz question", err)
	}

	now := e.Now()
	end := now.Add(quizPrepareSeconds * time.Second)
	e.runtime = Runtime{
		GameType:  store.MiniGameQuiz,
		Phase:     PhasePrepare,
		StartTime: &now,
		EndTime:   &end,
		Quiz: &QuizPayload{
			QuestionID:     q.ID,
			Text:           q.Text,
			Options:        [4]string{q.OptionA, q.OptionB, q.OptionC, q.OptionD},
			CorrectAnswer:  q.CorrectAnswer,
			Duration:       q.Duration,
			Rewards:        q.Rewards,
			NextQuestionID: nextID,
			Answers:        map[string]AnswerSubmission{},
		},
	}

	if err := e.persistLocked(ctx); err != nil {
		return err
	}
	e.broadcastSyncLocked(nil)
	e.scheduleLocked(e.onQuizPrepareElapsed)
	return nil
}

func (e *Engine) onQuizPrepareElapsed(ctx context.Context) {
	e.mu.Lock()
	if e.runtime.GameType != store.MiniGameQuiz || e.runtime.Phase != PhasePrepare {
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
	e.scheduleLocked(e.onQuizCountdownElapsed)
	e.mu.Unlock()

	e.runCountdownBroadcast(countdownSeconds)
}

// runCountdownBroadcast emits one MINIGAME_COUNTDOWN immediately and then
// every second down to 0, independent of the mutex since it only reads the
// clock and writes to the bus (§4.5 "Countdown broadcast").
func (e *Engine) runCountdownBroadcast(from int) {
	for n := from; n >= 0; n-- {
		e.Bus.GlobalEmit(bus.EventMiniGameCount, map[string]any{"countdown": n})
		if n > 0 {
			time.Sleep(1 * time.Second)
		}
	}
}

func (e *Engine) onQuizCountdownElapsed(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime.GameType != store.MiniGameQuiz || e.runtime.Phase != PhaseCountdown {
		return
	}
	now := e.Now()
	settleAt := now.Add(time.Duration(e.runtime.Quiz.Duration)*time.Second + settleGraceSeconds*time.Second)
	e.runtime.Phase = PhaseGaming
	e.runtime.StartTime = &now
	e.runtime.EndTime = &settleAt

	if err := e.persistLocked(ctx); err != nil {
		return
	}
	e.broadcastSyncLocked(nil)
	e.scheduleLocked(e.onQuizGamingElapsed)
}

// SubmitAnswer implements SUBMIT_ANSWER(answer): only valid in GAMING, once
// per user.
func (e *Engine) SubmitAnswer(ctx context.Context, userID string, answer store.QuizAnswer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireGameType(store.MiniGameQuiz); err != nil {
		return err
	}
	if err := e.requirePhase(PhaseGaming); err != nil {
		return err
	}
	if _, already := e.runtime.Quiz.Answers[userID]; already {
		return gameerr.New(gameerr.Conflict, "you already answered")
	}
	if answer != store.QuizA && answer != store.QuizB && answer != store.QuizC && answer != store.QuizD {
		return gameerr.Validationf("answer must be one of A, B, C, D")
	}

	e.runtime.Quiz.Answers[userID] = AnswerSubmission{Answer: answer, TimestampMs: e.Now().UnixMilli()}
	return e.persistLocked(ctx)
}

func (e *Engine) onQuizGamingElapsed(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime.GameType != store.MiniGameQuiz || e.runtime.Phase != PhaseGaming {
		return
	}
	q := e.runtime.Quiz
	gamingEnd := e.runtime.StartTime.Add(time.Duration(q.Duration) * time.Second)

	type candidate struct {
		userID string
		ts     int64
	}
	var correct []candidate
	for userID, ans := range q.Answers {
		if ans.Answer == q.CorrectAnswer {
			correct = append(correct, candidate{userID: userID, ts: ans.TimestampMs})
		}
	}
	sort.Slice(correct, func(i, j int) bool { return correct[i].ts < correct[j].ts })

	type payout struct {
		userID string
		amount float64
	}
	var payouts []payout
	for i, c := range correct {
		var amount float64
		switch i {
		case 0:
			amount = q.Rewards.First
		case 1:
			amount = q.Rewards.Second
		case 2:
			amount = q.Rewards.Third
		default:
			ts := time.UnixMilli(c.ts)
			ratio := gamingEnd.Sub(ts).Seconds() / float64(q.Duration)
			ratio = math.Max(0, math.Min(1, ratio))
			amount = math.Round(q.Rewards.Others + (q.Rewards.Third-q.Rewards.Others)*ratio)
		}
		if amount != 0 {
			payouts = append(payouts, payout{userID: c.userID, amount: amount})
		}
	}

	updated := make(map[string]store.User, len(payouts))
	err := e.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, p := range payouts {
			u, err := store.LockUserForUpdate(ctx, tx, p.userID)
			if err != nil {
				continue
			}
			u.Cash = store.Round2(u.Cash + p.amount)
			if err := store.SaveUserBalances(ctx, tx, u); err != nil {
				return err
			}
			updated[p.userID] = u
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
	e.broadcastSyncLocked(map[string]any{"winners": payouts})

	for userID, u := range updated {
		e.Bus.ToUser(userID, bus.EventAssetsUpdate, map[string]any{
			"cash": u.Cash, "stocks": u.Stocks, "debt": u.Debt, "dailyBorrowed": u.DailyBorrowed,
		})
	}
	e.broadcastFreshLeaderboard(ctx)
}
