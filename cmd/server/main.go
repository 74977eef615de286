package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/drawdash/api/internal/auth"
	"github.com/drawdash/api/internal/config"
	"github.com/drawdash/api/internal/handler"
	"github.com/drawdash/api/internal/logger"
	"github.com/drawdash/api/internal/middleware"
	"github.com/drawdash/api/internal/repository/postgres"
	redisrepo "github.com/drawdash/api/internal/repository/redis"
	"github.com/drawdash/api/internal/service"
)

// connectDelay paces startup against dependencies that may come up after us
// (container orchestration restarts everything at once). Connections retry
// until the dependency answers rather than crash-looping the process.
const connectDelay = 3 * time.Second

func connectDB(url string) *sql.DB {
	for attempt := 1; ; attempt++ {
		db, err := postgres.Connect(url)
		if err == nil {
			return db
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Database connection failed, retrying")
		time.Sleep(connectDelay)
	}
}

func connectRedis(url string, ttl time.Duration) *redisrepo.Client {
	for attempt := 1; ; attempt++ {
		client, err := redisrepo.NewClient(url, ttl)
		if err == nil {
			return client
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Redis connection failed, retrying")
		time.Sleep(connectDelay)
	}
}

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("Config loaded")

	// Database
	db := connectDB(cfg.DatabaseURL)
	defer db.Close()

	// Redis
	redisClient := connectRedis(cfg.RedisURL, cfg.CacheTTL)
	defer redisClient.Close()

	// Repos
	userRepo := postgres.NewUserRepo(db)
	roomRepo := postgres.NewRoomRepo(db)
	participantRepo := postgres.NewParticipantRepo(db)
	wordRepo := postgres.NewWordRepo(db)
	messageRepo := postgres.NewMessageRepo(db)
	reportRepo := postgres.NewReportRepo(db)
	walletRepo := postgres.NewWalletRepo(db)

	// Auth: tokens are minted by the account service, this server only
	// verifies them against the shared secret.
	verifier := auth.NewVerifier(cfg.JWTSecret)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	clock := service.NewPhaseClock(roomRepo, redisClient, cfg.PhaseJitter)
	picker := service.NewWordPicker(wordRepo)
	engine := service.NewPhaseEngine(roomRepo, participantRepo, walletRepo, redisClient, picker, clock, wsHub, service.DefaultPhaseDurations())
	guessSvc := service.NewGuessService(roomRepo, participantRepo, engine, wsHub)
	roomSvc := service.NewRoomService(roomRepo, participantRepo, messageRepo, reportRepo, walletRepo,
		redisClient, engine, clock, wsHub, nil, cfg.GracePeriod, cfg.LobbyTimeout)

	// Handlers
	roomHandler := handler.NewRoomHandler(roomSvc)
	userHandler := handler.NewUserHandler(userRepo, walletRepo)
	wsHandler := handler.NewWSHandler(wsHub, verifier, roomSvc, engine, guessSvc)

	// Router
	r := mux.NewRouter()
	authMw := auth.Middleware(verifier)

	// Health
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	// Protected API routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMw)
	api.HandleFunc("/users/me", userHandler.GetMe).Methods(http.MethodGet)
	api.HandleFunc("/users/me/balance", userHandler.GetBalance).Methods(http.MethodGet)
	api.HandleFunc("/rooms", roomHandler.CreateRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms", roomHandler.ListRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{code}", roomHandler.GetRoom).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{code}/messages", roomHandler.ListMessages).Methods(http.MethodGet)

	// WebSocket (auth via query param, not middleware)
	r.HandleFunc("/api/v1/ws", wsHandler.ServeWS).Methods(http.MethodGet)

	// Apply global middleware
	root := middleware.Chain(r, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Startup recovery: clear dead socket bindings, reap stale empty rooms,
	// re-arm phase timers. Joins are refused with server_syncing until this
	// completes.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), time.Minute)
	if err := roomSvc.StartupSweep(startupCtx); err != nil {
		log.Error().Err(err).Msg("Startup sweep failed (non-fatal)")
	}
	if err := engine.Rebuild(startupCtx); err != nil {
		log.Error().Err(err).Msg("Timer rebuild failed (non-fatal)")
	}
	startupCancel()
	roomSvc.Open()

	// Safety-net poller behind the in-process timers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go clock.StartPoller(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
