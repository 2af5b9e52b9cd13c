package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/config"
	"github.com/LiiXo/nomercy-sub000/internal/handlers"
	"github.com/LiiXo/nomercy-sub000/internal/jobs"
	"github.com/LiiXo/nomercy-sub000/internal/match"
	"github.com/LiiXo/nomercy-sub000/internal/matchmaker"
	"github.com/LiiXo/nomercy-sub000/internal/metrics"
	"github.com/LiiXo/nomercy-sub000/internal/queue"
	"github.com/LiiXo/nomercy-sub000/internal/realtime"
	"github.com/LiiXo/nomercy-sub000/internal/repositories"
	mongorepo "github.com/LiiXo/nomercy-sub000/internal/repositories/mongo"
	"github.com/LiiXo/nomercy-sub000/internal/routers"
	"github.com/LiiXo/nomercy-sub000/internal/settlement"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	var (
		matchRepo   repositories.MatchRepository
		rankingRepo repositories.RankingRepository
		mongoClient *mongorepo.Client
	)
	if cfg.MongoURI != "" {
		var err error
		mongoClient, err = mongorepo.NewClient(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Fatal("mongo connect failed", zap.Error(err))
		}
		matchRepo, err = mongorepo.NewMatchRepo(mongoClient)
		if err != nil {
			logger.Fatal("match repo init failed", zap.Error(err))
		}
		rankingRepo, err = mongorepo.NewRankingRepo(mongoClient)
		if err != nil {
			logger.Fatal("ranking repo init failed", zap.Error(err))
		}
	} else {
		logger.Warn("MONGO_URI not set, using in-memory stores")
		matchRepo = repositories.NewInMemoryMatchRepository()
		rankingRepo = repositories.NewInMemoryRankingRepository()
	}

	hub := realtime.NewHub(logger)
	bridge := realtime.NewBridge(rdb, hub, logger)
	go bridge.Run(ctx)

	queueMgr := queue.NewManager(rdb, logger, cfg.HeartbeatGrace)
	matchmaking := matchmaker.NewService(cfg, queueMgr, matchRepo, rankingRepo, bridge, logger)
	settler := settlement.NewSettler(rankingRepo, matchRepo, logger)
	matchSvc := match.NewService(matchRepo, settler, bridge, logger, cfg.IdleMatchTimeout)

	sweeper := jobs.NewSweeper(matchmaking, matchSvc, logger)
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatal("sweeper start failed", zap.Error(err))
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Timeout(60*time.Second))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	router.Use(metrics.Middleware())

	routers.Health(router, func() bool { return rdb.Ping(ctx).Err() == nil })
	router.Handle("/metrics", metrics.Handler())

	qh := handlers.NewQueueHandler(matchmaking, logger)
	mh := handlers.NewMatchHandler(matchSvc, rankingRepo, logger)
	onPing := func(userID string) { matchmaking.HeartbeatAll(ctx, userID) }
	canJoin := func(matchID, userID string, staff bool) bool {
		if staff {
			return true
		}
		m, err := matchRepo.Get(ctx, matchID)
		return err == nil && m.HasPlayer(userID)
	}
	routers.RankedRoutes(router, cfg.JWTSecret, logger, qh, mh, hub, onPing, canJoin)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("ranked service starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("ranked service shutting down...")
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	if mongoClient != nil {
		_ = mongoClient.Disconnect(shutdownCtx)
	}
	logger.Info("ranked service exited")
}
