package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"marketday/internal/bus"
	"marketday/internal/gameerr"
	"marketday/internal/leaderboard"
	"marketday/internal/minigame"
	"marketday/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const sessionSendBuffer = 256

// ingressFrame is the wire shape of a client->server message (§6).
type ingressFrame struct {
	Event   bus.Event       `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// websocket upgrades the connection, authenticates via the "token" query
// param (browsers cannot set Authorization on a ws handshake), registers a
// bus session, sends FULL_SYNC_STATE, then runs the read loop until the
// socket closes. A separate goroutine pumps Session.Send() onto the wire.
func (s *Server) websocket(c *gin.Context) {
	claims, err := s.parseToken(c.Query("token"))
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := s.Bus.Register(uuid.NewString(), claims.UserID, string(claims.Role), sessionSendBuffer)
	s.notifyAdminsOfSessionChange()
	defer func() {
		s.Bus.Unregister(session)
		s.notifyAdminsOfSessionChange()
	}()

	ctx := c.Request.Context()
	s.sendFullSyncState(ctx, session, claims.UserID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for data := range session.Send() {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var frame ingressFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		s.dispatchIngress(ctx, session, claims, frame)
	}
	<-done
}

// notifyAdminsOfSessionChange pushes the live connected-user-id set to every
// admin session, so an open admin console stays in sync with the same data
// the monitorHistory poll handler (admin.go) serves on demand.
func (s *Server) notifyAdminsOfSessionChange() {
	s.Bus.ToAdmins(bus.EventSessionsChanged, gin.H{"connectedUserIds": s.Bus.ConnectedUserIDs()})
}

// scriptDayView mirrors settlement's gated history shape (§4.2,
// §4.6): title/news leak the day's news before its broadcastedFlag
// flips, so only IsBroadcasted rows carry them over the wire.
type scriptDayView struct {
	Day            int         `json:"day"`
	Price          float64     `json:"price"`
	Title          *string     `json:"title,omitempty"`
	News           *string     `json:"news,omitempty"`
	EffectiveTrend store.Trend `json:"effectiveTrend"`
}

func gatedHistory(history []store.ScriptDay) []scriptDayView {
	views := make([]scriptDayView, 0, len(history))
	for _, d := range history {
		v := scriptDayView{Day: d.Day, Price: d.Price, EffectiveTrend: d.EffectiveTrend}
		if d.IsBroadcasted {
			v.Title = d.Title
			v.News = d.News
		}
		views = append(views, v)
	}
	return views
}

type fullSyncPayload struct {
	GameState   any                   `json:"gameState"`
	History     []scriptDayView       `json:"history"`
	User        gin.H                 `json:"user"`
	Contracts   []store.ContractOrder `json:"contracts"`
	Leaderboard any                   `json:"leaderboard"`
	MiniGame    any                   `json:"miniGame"`
}

func (s *Server) sendFullSyncState(ctx context.Context, session *bus.Session, userID string) {
	state, err := s.Clock.State(ctx)
	if err != nil {
		log.Printf("ws: failed to load game state for full sync: %v", err)
		s.sendCachedSnapshot(ctx, session, userID)
		return
	}

	history := gatedHistory(s.ScriptCache.History(state.CurrentDay))

	user, err := store.GetUserByID(ctx, s.Store.Pool, userID)
	if err != nil {
		log.Printf("ws: failed to load user %s for full sync: %v", userID, err)
		s.sendCachedSnapshot(ctx, session, userID)
		return
	}

	contracts, err := store.ListOpenContractsForUserDay(ctx, s.Store.Pool, userID, state.CurrentDay)
	if err != nil {
		log.Printf("ws: failed to load contracts for full sync: %v", err)
	}

	var leaderboardData any
	var cachedBoard []leaderboard.Entry
	if s.Cache != nil && s.Cache.Leaderboard(ctx, &cachedBoard) {
		leaderboardData = cachedBoard
	} else if entries, err := s.Leaderboard.Top100(ctx, state.CurrentDay, s.ScriptCache.Price(state.CurrentDay, state.InitialPrice), s.Trading.VolumeSnapshot()); err == nil {
		leaderboardData = entries
	}

	payload := fullSyncPayload{
		GameState:   state,
		History:     history,
		User:        userView(user),
		Contracts:   contracts,
		Leaderboard: leaderboardData,
		MiniGame:    s.MiniGame.Snapshot(),
	}
	s.Bus.ToSession(session, bus.EventFullSyncState, payload)
	if s.Cache != nil {
		s.Cache.SetSnapshot(ctx, userID, payload)
	}
}

// sendCachedSnapshot serves a user's last-known FULL_SYNC_STATE from Redis
// when Postgres can't answer — e.g. right after a restart before the pool
// is reachable. A miss here just means the client gets nothing until it
// retries the connection; it never blocks the handshake.
func (s *Server) sendCachedSnapshot(ctx context.Context, session *bus.Session, userID string) {
	if s.Cache == nil {
		return
	}
	var payload fullSyncPayload
	if s.Cache.Snapshot(ctx, userID, &payload) {
		s.Bus.ToSession(session, bus.EventFullSyncState, payload)
	}
}

// dispatchIngress routes one client frame to the trading or mini-game core
// and replies with TRADE_SUCCESS/TRADE_ERROR on the originating session.
func (s *Server) dispatchIngress(ctx context.Context, session *bus.Session, claims *Claims, frame ingressFrame) {
	switch frame.Event {
	case bus.IngressBuyStock:
		var req struct {
			Quantity int64 `json:"quantity"`
		}
		_ = json.Unmarshal(frame.Payload, &req)
		result, err := s.Trading.BuyStock(ctx, claims.UserID, req.Quantity)
		s.replyTrade(session, frame.Event, result, err)

	case bus.IngressSellStock:
		var req struct {
			Quantity int64 `json:"quantity"`
		}
		_ = json.Unmarshal(frame.Payload, &req)
		result, err := s.Trading.SellStock(ctx, claims.UserID, req.Quantity)
		s.replyTrade(session, frame.Event, result, err)

	case bus.IngressBuyContract:
		var req struct {
			Type     string  `json:"type"`
			Leverage float64 `json:"leverage"`
			Quantity int64   `json:"quantity"`
		}
		_ = json.Unmarshal(frame.Payload, &req)
		result, err := s.Trading.OpenContract(ctx, claims.UserID, store.ContractType(req.Type), req.Leverage, req.Quantity)
		s.replyTrade(session, frame.Event, result, err)

	case bus.IngressCancelContract:
		result, err := s.Trading.CancelContracts(ctx, claims.UserID)
		s.replyTrade(session, frame.Event, result, err)

	case bus.IngressBorrowMoney:
		var req struct {
			Amount float64 `json:"amount"`
		}
		_ = json.Unmarshal(frame.Payload, &req)
		result, err := s.Trading.Borrow(ctx, claims.UserID, req.Amount)
		s.replyTrade(session, frame.Event, result, err)

	case bus.IngressRepayMoney:
		var req struct {
			Amount float64 `json:"amount"`
		}
		_ = json.Unmarshal(frame.Payload, &req)
		result, err := s.Trading.Repay(ctx, claims.UserID, req.Amount)
		s.replyTrade(session, frame.Event, result, err)

	case bus.IngressVisitLoanShark:
		result, err := s.Trading.VisitLoanShark(ctx, claims.UserID)
		s.replyTrade(session, frame.Event, result, err)

	case bus.IngressMiniGameAction:
		s.dispatchMiniGameAction(ctx, session, claims, frame.Payload)

	case bus.IngressAdminMiniGame:
		if claims.Role != store.RoleAdmin {
			log.Printf("minigame: ignored admin command from non-admin user %s", claims.UserID)
			s.Bus.ToSession(session, bus.EventTradeError, gin.H{"code": string(gameerr.Permission), "error": "admin role required"})
			return
		}
		var cmd adminMiniGameCommand
		if err := json.Unmarshal(frame.Payload, &cmd); err != nil {
			s.Bus.ToSession(session, bus.EventTradeError, gin.H{"code": string(gameerr.Validation), "error": "invalid admin command payload"})
			return
		}
		err := s.MiniGame.HandleAdminCommand(ctx, cmd.toEngineCommand())
		if err != nil {
			s.replyError(session, frame.Event, err)
		}
	}
}

// adminMiniGameCommand mirrors minigame.AdminCommand with a json-tagged
// shape, decoupling the wire format from the engine package.
type adminMiniGameCommand struct {
	Type       string `json:"type"`
	GameType   string `json:"gameType"`
	QuestionID string `json:"questionId"`
}

func (cmd adminMiniGameCommand) toEngineCommand() minigame.AdminCommand {
	return minigame.AdminCommand{
		Type:       cmd.Type,
		GameType:   store.MiniGameType(cmd.GameType),
		QuestionID: cmd.QuestionID,
	}
}

func (s *Server) dispatchMiniGameAction(ctx context.Context, session *bus.Session, claims *Claims, payload json.RawMessage) {
	var req struct {
		Action      string  `json:"action"`
		PacketIndex int     `json:"packetIndex"`
		Answer      string  `json:"answer"`
		Option      string  `json:"option"`
		Amount      float64 `json:"amount"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		s.Bus.ToSession(session, bus.EventTradeError, gin.H{"code": string(gameerr.Validation), "error": "invalid minigame action payload"})
		return
	}

	var err error
	switch req.Action {
	case "GRAB_PACKET":
		err = s.MiniGame.GrabPacket(ctx, claims.UserID, req.PacketIndex)
	case "SCRATCH_COMPLETE":
		err = s.MiniGame.ScratchComplete(ctx, claims.UserID)
	case "SUBMIT_ANSWER":
		err = s.MiniGame.SubmitAnswer(ctx, claims.UserID, store.QuizAnswer(req.Answer))
	case "PLACE_BET":
		err = s.MiniGame.PlaceBet(ctx, claims.UserID, req.Option, req.Amount)
	default:
		err = gameerr.Validationf("unknown minigame action %q", req.Action)
	}
	if err != nil {
		s.replyError(session, bus.IngressMiniGameAction, err)
	}
}

func (s *Server) replyTrade(session *bus.Session, event bus.Event, result any, err error) {
	if err != nil {
		s.replyError(session, event, err)
		return
	}
	s.Bus.ToSession(session, bus.EventTradeSuccess, gin.H{"event": event, "result": result})
}

func (s *Server) replyError(session *bus.Session, event bus.Event, err error) {
	kind := gameerr.KindOf(err)
	s.Bus.ToSession(session, bus.EventTradeError, gin.H{
		"event": event,
		"code":  string(kind),
		"error": err.Error(),
	})
}
