package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketday/internal/bus"
	"marketday/internal/clock"
	"marketday/internal/leaderboard"
	"marketday/internal/minigame"
	"marketday/internal/scriptcache"
	"marketday/internal/store"
	"marketday/internal/trading"
	"marketday/pkg/cache"
)

// Server wires the HTTP and websocket surface around the authoritative
// engine packages: every handler is a thin adapter translating a request
// into a call against Store/Clock/Trading/MiniGame/Bus.
type Server struct {
	Router      *gin.Engine
	Store       *store.Store
	Bus         *bus.Bus
	Clock       *clock.Clock
	ScriptCache *scriptcache.Cache
	Leaderboard *leaderboard.Provider
	Trading     *trading.Core
	MiniGame    *minigame.Engine
	Cache       *cache.Cache

	JWTSecret   string
	AdminSecret string
	CORSOrigin  string
}

// NewServer builds the gin engine, wires the middleware stack in the order
// that matters (recovery first, CORS last before routes), and registers
// every route.
func NewServer(
	st *store.Store,
	b *bus.Bus,
	ck *clock.Clock,
	sc *scriptcache.Cache,
	lb *leaderboard.Provider,
	tr *trading.Core,
	mg *minigame.Engine,
	ca *cache.Cache,
	jwtSecret, adminSecret, corsOrigin string,
) *Server {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware(corsOrigin))

	s := &Server{
		Router:      r,
		Store:       st,
		Bus:         b,
		Clock:       ck,
		ScriptCache: sc,
		Leaderboard: lb,
		Trading:     tr,
		MiniGame:    mg,
		Cache:       ca,
		JWTSecret:   jwtSecret,
		AdminSecret: adminSecret,
		CORSOrigin:  corsOrigin,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)

			protected := auth.Group("")
			protected.Use(s.AuthMiddleware())
			{
				protected.GET("/me", s.me)
				protected.PATCH("/avatar", s.patchAvatar)
				protected.PATCH("/account", s.patchAccount)
			}
		}

		admin := api.Group("/admin")
		admin.Use(s.AuthMiddleware(), s.AdminMiddleware())
		{
			game := admin.Group("/game")
			{
				game.POST("/start", s.startGame)
				game.POST("/stop", s.stopGame)
				game.POST("/resume", s.resumeGame)
				game.POST("/restart", s.restartGame)
				game.POST("/reset", s.resetGame)
			}

			admin.GET("/params", s.getParams)
			admin.PUT("/params", s.putParams)

			admin.GET("/users", s.listUsers)
			admin.PUT("/users/:id", s.putUser)
			admin.DELETE("/users/:id", s.deleteUser)

			admin.GET("/monitor/history", s.monitorHistory)

			events := admin.Group("/events")
			{
				events.GET("", s.listEvents)
				events.POST("", s.createEvent)
				events.PUT("/:id", s.updateEvent)
				events.DELETE("/:id", s.deleteEvent)
			}
			admin.POST("/script/generate", s.generateScript)
			admin.GET("/script/days", s.listScriptDays)
			admin.GET("/script/preview", s.previewScript)

			quiz := admin.Group("/quiz-questions")
			{
				quiz.GET("", s.listQuizQuestions)
				quiz.PUT("", s.upsertQuizQuestion)
				quiz.DELETE("/:id", s.deleteQuizQuestion)
			}

			minority := admin.Group("/minority-questions")
			{
				minority.GET("", s.listMinorityQuestions)
				minority.PUT("", s.upsertMinorityQuestion)
				minority.DELETE("/:id", s.deleteMinorityQuestion)
			}

			redEnvelope := admin.Group("/red-envelope-items")
			{
				redEnvelope.GET("", s.listRedEnvelopeItems)
				redEnvelope.PUT("", s.upsertRedEnvelopeItem)
				redEnvelope.DELETE("/:id", s.deleteRedEnvelopeItem)
			}
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start runs the HTTP server, blocking until it exits or errors.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
