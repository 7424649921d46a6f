package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"marketday/internal/api"
	"marketday/internal/bus"
	"marketday/internal/clock"
	"marketday/internal/leaderboard"
	"marketday/internal/minigame"
	"marketday/internal/scriptcache"
	"marketday/internal/settlement"
	"marketday/internal/store"
	"marketday/internal/tick"
	"marketday/internal/trading"
	"marketday/pkg/cache"
	"marketday/pkg/config"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()
	if err := store.ApplyMigrations(ctx, st); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}
	log.Println("store ready")

	if err := store.SeedEventsIfEmpty(ctx, st.Pool, "events.yaml"); err != nil {
		log.Printf("event seed skipped: %v", err)
	}

	redisCache, err := cache.New(ctx)
	if err != nil {
		log.Printf("cache unavailable, continuing without it: %v", err)
		redisCache = nil
	}

	b := bus.New()
	ck := clock.New(st)

	sc := scriptcache.New()
	if err := sc.Reload(ctx, st.Pool); err != nil {
		log.Printf("initial script cache reload failed (ok if no script generated yet): %v", err)
	}

	lb := leaderboard.New(st)
	tr := trading.New(st, ck, sc)
	sp := settlement.New(st, sc, lb, b)
	sp.Cache = redisCache
	sp.Trading = tr

	currentDayPrice := func() (int, float64) {
		state, err := ck.State(ctx)
		if err != nil {
			return 0, 0
		}
		return state.CurrentDay, sc.Price(state.CurrentDay, state.InitialPrice)
	}
	mg := minigame.New(st, b, lb, currentDayPrice)
	if err := mg.Rehydrate(ctx); err != nil {
		log.Printf("minigame rehydrate failed: %v", err)
	}

	loop := tick.New(ck, sc, sp, b)
	go loop.Run(ctx)

	server := api.NewServer(st, b, ck, sc, lb, tr, mg, redisCache, cfg.JWTSecret, cfg.AdminSecret, cfg.CORSOrigin)
	go func() {
		if err := server.Start(cfg.BindAddr()); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()
	log.Printf("marketday listening on %s (env=%s)", cfg.BindAddr(), cfg.NodeEnv)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}
