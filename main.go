package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fairCaseServer/api"
	"fairCaseServer/config"
	"fairCaseServer/contract"
	"fairCaseServer/db"
	"fairCaseServer/events"
	"fairCaseServer/logger"
	"fairCaseServer/state"
	"fairCaseServer/ws"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Init(&logger.Options{})
		logger.Fatal("❌ Invalid configuration", logger.Err(err))
	}

	logger.Init(&logger.Options{
		Level:   logger.ParseLevel(cfg.Log.Level),
		NoColor: cfg.Log.NoColor,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &api.Server{HealthChecks: map[string]api.HealthCheck{}}

	// Round log: PostgreSQL when configured, embedded Badger otherwise
	var roundLog db.RoundLog
	if cfg.Postgres.URL != "" {
		if err := db.InitPostgres(cfg.Postgres.URL); err != nil {
			logger.Fatal("❌ PostgreSQL initialization failed", logger.Err(err))
		}
		defer db.ClosePostgres()
		roundLog = db.NewPostgresRoundLog(db.PostgresPool)
		server.HealthChecks["postgres"] = db.HealthCheckPostgres
	} else {
		badgerLog, err := db.OpenBadgerRoundLog(cfg.Badger.Path)
		if err != nil {
			logger.Fatal("❌ Badger initialization failed", logger.Err(err))
		}
		defer badgerLog.Close()
		roundLog = badgerLog
		logger.Info("📦 Using embedded round log", "path", cfg.Badger.Path)
	}
	server.RoundLog = roundLog

	// Publishers: every sink must accept a commitment before it is used
	var publishers events.Multi

	if cfg.Redis.Addr != "" {
		if err := db.InitRedis(cfg.Redis); err != nil {
			logger.Fatal("❌ Redis initialization failed", logger.Err(err))
		}
		defer db.CloseRedis()
		board := db.NewCommitmentBoard(db.RedisClient)
		server.Board = board
		server.HealthChecks["redis"] = db.HealthCheck
		publishers = append(publishers, board)
	}

	if cfg.Anchor.Enabled() {
		anchor, err := contract.DialAnchor(ctx, cfg.Anchor)
		if err != nil {
			logger.Fatal("❌ Anchor initialization failed", logger.Err(err))
		}
		server.Anchor = anchor
		publishers = append(publishers, anchor)
	}

	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			logger.Fatal("❌ NATS initialization failed", logger.Err(err))
		}
		defer nc.Drain()
		publishers = append(publishers, events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix))
	}

	hub := ws.NewHub()
	publishers = append(publishers, hub)

	opts := state.DefaultOptions(roundLog, publishers)
	opts.StartingBalance = cfg.Economy.StartingBalance
	opts.CasePrice = cfg.Economy.CasePrice
	sessions := state.NewRegistry(opts)
	hub.SetRegistry(sessions)
	server.Sessions = sessions

	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	server.Routes(mux)

	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("🚀 Server starting", "addr", addr, "publishers", len(publishers))
	logger.Info("📡 WebSocket endpoint /ws: subscribe to 'fairness' or 'session:<id>'")
	logger.Info("🔌 API endpoints",
		"session", "POST /api/session, GET /api/session/{id}",
		"play", "POST /api/session/{id}/{client-seed|publish|open|reveal}",
		"audit", "POST /api/verify, GET /api/rounds/{commitment}",
		"health", "GET /api/health")

	go func() {
		<-ctx.Done()
		logger.Info("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("❌ Shutdown error", logger.Err(err))
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("❌ Server error", logger.Err(err))
	}
}
