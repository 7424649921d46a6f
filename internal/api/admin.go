package api

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"marketday/internal/bus"
	"marketday/internal/gameerr"
	"marketday/internal/scriptgen"
	"marketday/internal/store"
)

// reloadScriptCache is passed to Clock.Start/Restart so a lifecycle change
// is immediately reflected in trading's price reads.
func (s *Server) reloadScriptCache(ctx context.Context) error {
	return s.ScriptCache.Reload(ctx, s.Store.Pool)
}

// startGame implements POST /api/admin/game/start.
func (s *Server) startGame(c *gin.Context) {
	if err := s.Clock.Start(c.Request.Context(), s.reloadScriptCache); err != nil {
		writeGameErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// stopGame implements POST /api/admin/game/stop.
func (s *Server) stopGame(c *gin.Context) {
	if err := s.Clock.Stop(c.Request.Context()); err != nil {
		writeGameErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// resumeGame implements POST /api/admin/game/resume.
func (s *Server) resumeGame(c *gin.Context) {
	if err := s.Clock.Resume(c.Request.Context()); err != nil {
		writeGameErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

// restartGame implements POST /api/admin/game/restart.
func (s *Server) restartGame(c *gin.Context) {
	if err := s.Clock.Restart(c.Request.Context(), s.reloadScriptCache); err != nil {
		writeGameErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "restarted"})
}

// resetGame implements POST /api/admin/game/reset.
func (s *Server) resetGame(c *gin.Context) {
	if err := s.Clock.Reset(c.Request.Context(), currentUserID(c)); err != nil {
		writeGameErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func paramsView(gs store.GameStatus) gin.H {
	return gin.H{
		"timeRatio":         gs.TimeRatio,
		"totalDays":         gs.TotalDays,
		"initialPrice":      gs.InitialPrice,
		"initialCash":       gs.InitialCash,
		"maxLeverage":       gs.MaxLeverage,
		"dailyInterestRate": gs.DailyInterestRate,
		"maxLoanAmount":     gs.MaxLoanAmount,
	}
}

// getParams implements GET /api/admin/params.
func (s *Server) getParams(c *gin.Context) {
	gs, err := store.GetGameStatus(c.Request.Context(), s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load params", err))
		return
	}
	c.JSON(http.StatusOK, paramsView(gs))
}

type updateParamsRequest struct {
	TimeRatio         *float64 `json:"timeRatio"`
	TotalDays         *int     `json:"totalDays"`
	InitialPrice      *float64 `json:"initialPrice"`
	InitialCash       *float64 `json:"initialCash"`
	MaxLeverage       *float64 `json:"maxLeverage"`
	DailyInterestRate *float64 `json:"dailyInterestRate"`
	MaxLoanAmount     *float64 `json:"maxLoanAmount"`
}

// putParams implements PUT /api/admin/params.
func (s *Server) putParams(c *gin.Context) {
	var req updateParamsRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	err := s.Clock.UpdateParams(c.Request.Context(), func(gs *store.GameStatus) {
		if req.TimeRatio != nil {
			gs.TimeRatio = *req.TimeRatio
		}
		if req.TotalDays != nil {
			gs.TotalDays = *req.TotalDays
		}
		if req.InitialPrice != nil {
			gs.InitialPrice = *req.InitialPrice
		}
		if req.InitialCash != nil {
			gs.InitialCash = *req.InitialCash
		}
		if req.MaxLeverage != nil {
			gs.MaxLeverage = *req.MaxLeverage
		}
		if req.DailyInterestRate != nil {
			gs.DailyInterestRate = *req.DailyInterestRate
		}
		if req.MaxLoanAmount != nil {
			gs.MaxLoanAmount = *req.MaxLoanAmount
		}
	})
	if err != nil {
		writeGameErr(c, err)
		return
	}
	s.Bus.GlobalEmit(bus.EventLoanConfig, nil)

	gs, err := store.GetGameStatus(c.Request.Context(), s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to reload params", err))
		return
	}
	c.JSON(http.StatusOK, paramsView(gs))
}

// listUsers implements GET /api/admin/users.
func (s *Server) listUsers(c *gin.Context) {
	users, err := store.ListAllUsers(c.Request.Context(), s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to list users", err))
		return
	}
	views := make([]gin.H, 0, len(users))
	for _, u := range users {
		views = append(views, userView(u))
	}
	c.JSON(http.StatusOK, gin.H{"users": views})
}

type putUserRequest struct {
	DisplayName *string  `json:"displayName"`
	Role        *string  `json:"role"`
	Cash        *float64 `json:"cash"`
	Stocks      *int64   `json:"stocks"`
	Debt        *float64 `json:"debt"`
	IsEmployee  *bool    `json:"isEmployee"`
}

// putUser implements PUT /api/admin/users/:id.
func (s *Server) putUser(c *gin.Context) {
	id := c.Param("id")
	var req putUserRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	ctx := c.Request.Context()
	user, err := store.GetUserByID(ctx, s.Store.Pool, id)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "user not found"})
		return
	} else if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load user", err))
		return
	}

	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Role != nil {
		user.Role = store.Role(*req.Role)
	}
	if req.Cash != nil {
		user.Cash = store.Round2(*req.Cash)
	}
	if req.Stocks != nil {
		user.Stocks = *req.Stocks
	}
	if req.Debt != nil {
		user.Debt = store.Round2(*req.Debt)
	}
	if req.IsEmployee != nil {
		user.IsEmployee = *req.IsEmployee
	}

	if err := store.UpdateUserProfile(ctx, s.Store.Pool, user); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to save profile", err))
		return
	}
	if err := store.SaveUserBalances(ctx, s.Store.Pool, user); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to save balances", err))
		return
	}
	if err := store.SetUserRoleAndEmployee(ctx, s.Store.Pool, user); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to save role", err))
		return
	}

	s.Bus.ToUser(id, bus.EventUserDataUpdated, userView(user))
	c.JSON(http.StatusOK, userView(user))
}

// deleteUser implements DELETE /api/admin/users/:id.
func (s *Server) deleteUser(c *gin.Context) {
	id := c.Param("id")
	if err := store.DeleteUser(c.Request.Context(), s.Store.Pool, id); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to delete user", err))
		return
	}
	s.Bus.ToUser(id, bus.EventForceLogout, nil)
	c.Status(http.StatusNoContent)
}

// monitorHistory implements GET /api/admin/monitor/history. Full dashboard
// presence history is an out-of-scope collaborator concern (§1); this
// reports the live connected-session snapshot the core already tracks.
func (s *Server) monitorHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connectedUserIds": s.Bus.ConnectedUserIDs()})
}

// --- Event (script input) CRUD ---

type eventRequest struct {
	Day   int     `json:"day"`
	Title string  `json:"title"`
	News  *string `json:"news"`
	Trend string  `json:"trend"`
}

func (s *Server) listEvents(c *gin.Context) {
	events, err := store.ListEvents(c.Request.Context(), s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to list events", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) createEvent(c *gin.Context) {
	var req eventRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	e := store.Event{ID: uuid.NewString(), Day: req.Day, Title: req.Title, News: req.News, Trend: store.Trend(req.Trend)}
	if err := store.CreateEvent(c.Request.Context(), s.Store.Pool, e); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to create event", err))
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) updateEvent(c *gin.Context) {
	var req eventRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	e := store.Event{ID: c.Param("id"), Day: req.Day, Title: req.Title, News: req.News, Trend: store.Trend(req.Trend)}
	if err := store.UpdateEvent(c.Request.Context(), s.Store.Pool, e); err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "event not found"})
		return
	} else if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to update event", err))
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) deleteEvent(c *gin.Context) {
	if err := store.DeleteEvent(c.Request.Context(), s.Store.Pool, c.Param("id")); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to delete event", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// generateScript implements POST /api/admin/script/generate: regenerates
// the full 1..totalDays timeline from the current event catalogue.
func (s *Server) generateScript(c *gin.Context) {
	ctx := c.Request.Context()
	gs, err := store.GetGameStatus(ctx, s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to load game status", err))
		return
	}
	events, err := store.ListEvents(ctx, s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to list events", err))
		return
	}

	params := scriptgen.DefaultParams()
	params.TotalDays = gs.TotalDays
	params.InitialPrice = gs.InitialPrice
	params.TimeRatio = int(gs.TimeRatio)
	params.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	days := scriptgen.Generate(events, params)

	if err := s.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return store.ReplaceScriptDays(ctx, tx, days)
	}); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to persist script", err))
		return
	}
	if err := s.ScriptCache.Reload(ctx, s.Store.Pool); err != nil {
		writeGameErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": len(days)})
}

func (s *Server) listScriptDays(c *gin.Context) {
	days, err := store.ListScriptDays(c.Request.Context(), s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to list script days", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// previewScript implements GET /api/admin/script/preview: returns the next
// unbroadcast day's scripted price/trend to admins only. It never touches
// the broadcast bus, so players can't learn tomorrow's news early.
func (s *Server) previewScript(c *gin.Context) {
	days, err := store.ListScriptDays(c.Request.Context(), s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to list script days", err))
		return
	}
	for _, d := range days {
		if !d.IsBroadcasted {
			c.JSON(http.StatusOK, gin.H{"day": d})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"day": nil})
}

// --- Quiz question CRUD ---

func (s *Server) listQuizQuestions(c *gin.Context) {
	items, err := store.ListQuizQuestions(c.Request.Context(), s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to list quiz questions", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": items})
}

func (s *Server) upsertQuizQuestion(c *gin.Context) {
	var q store.QuizQuestion
	if err := c.BindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if err := store.UpsertQuizQuestion(c.Request.Context(), s.Store.Pool, q); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to save quiz question", err))
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) deleteQuizQuestion(c *gin.Context) {
	if err := store.DeleteQuizQuestion(c.Request.Context(), s.Store.Pool, c.Param("id")); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to delete quiz question", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Minority question CRUD ---

func (s *Server) listMinorityQuestions(c *gin.Context) {
	items, err := store.ListMinorityQuestions(c.Request.Context(), s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to list minority questions", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": items})
}

func (s *Server) upsertMinorityQuestion(c *gin.Context) {
	var q store.MinorityQuestion
	if err := c.BindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if err := store.UpsertMinorityQuestion(c.Request.Context(), s.Store.Pool, q); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to save minority question", err))
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) deleteMinorityQuestion(c *gin.Context) {
	if err := store.DeleteMinorityQuestion(c.Request.Context(), s.Store.Pool, c.Param("id")); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to delete minority question", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Red envelope item CRUD ---

func (s *Server) listRedEnvelopeItems(c *gin.Context) {
	items, err := store.ListActiveRedEnvelopeItems(c.Request.Context(), s.Store.Pool)
	if err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.StoreUnavailable, "failed to list red envelope items", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) upsertRedEnvelopeItem(c *gin.Context) {
	var it store.RedEnvelopeItem
	if err := c.BindJSON(&it); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if err := store.UpsertRedEnvelopeItem(c.Request.Context(), s.Store.Pool, it); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to save red envelope item", err))
		return
	}
	c.JSON(http.StatusOK, it)
}

func (s *Server) deleteRedEnvelopeItem(c *gin.Context) {
	if err := store.DeleteRedEnvelopeItem(c.Request.Context(), s.Store.Pool, c.Param("id")); err != nil {
		writeGameErr(c, gameerr.Wrap(gameerr.Internal, "failed to delete red envelope item", err))
		return
	}
	c.Status(http.StatusNoContent)
}
