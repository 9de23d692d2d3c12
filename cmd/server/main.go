package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/humanwheel-leaderboard/internal/config"
	"github.com/humanwheel-leaderboard/internal/handler"
	"github.com/humanwheel-leaderboard/internal/kafka"
	"github.com/humanwheel-leaderboard/internal/photos"
	"github.com/humanwheel-leaderboard/internal/postgres"
	"github.com/humanwheel-leaderboard/internal/retry"
	"github.com/humanwheel-leaderboard/internal/scoring"
	"github.com/humanwheel-leaderboard/internal/service"
	"github.com/humanwheel-leaderboard/internal/store"
	"github.com/humanwheel-leaderboard/internal/websocket"
	"github.com/humanwheel-leaderboard/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", cfgErr)
	}

	policy, err := scoring.ParsePolicy(cfg.Scoring.Policy)
	if err != nil {
		logger.Error("invalid scoring policy", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, err := openKV(cfg, logger)
	if err != nil {
		logger.Error("failed to open record store", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	players := store.NewPlayerStore(kv, cfg.Store.KeyPrefix, logger,
		retry.WithAttempts(cfg.Retry.Attempts),
		retry.WithDelay(cfg.Retry.Delay),
	)

	// PostgreSQL is optional; without it photos live in memory and nothing
	// is snapshotted
	var repo *postgres.Repository
	if cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err = postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer repo.Close()

		if err := repo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	var blobs photos.BlobStore = photos.NewMemoryBlobStore()
	if repo != nil {
		blobs = repo
	} else {
		logger.Warn("postgres disabled, photos are kept in memory")
	}
	if cfg.Photos.EnsureSigningSecret() {
		logger.Warn("photos.signing_secret not set, using a random secret; photo URLs will not survive a restart")
	}
	signer := photos.NewSigner(cfg.Photos.SigningSecret, cfg.Photos.PublicBaseURL, cfg.Photos.URLTTL)
	photoService := photos.NewService(blobs, signer, cfg.Photos.MaxSize, logger)

	leaderboardService := service.NewLeaderboardService(players, photoService, policy, logger)

	wsHub := websocket.NewHub(logger)
	wsHub.SetLoader(leaderboardService.GetLeaderboard)
	go wsHub.Run()
	leaderboardService.SetHub(wsHub)

	var syncWorker *worker.SyncWorker
	if repo != nil {
		leaderboardService.SetSnapshotStore(repo)
		syncWorker = worker.NewSyncWorker(players, repo, &cfg.Sync, logger)

		if cfg.Sync.RestoreOnStart {
			if n, err := syncWorker.RestoreIfEmpty(ctx); err != nil {
				logger.Warn("failed to restore records from snapshots", "error", err)
			} else if n > 0 {
				logger.Info("records restored on startup", "count", n)
			}
		}
		if cfg.Sync.Enabled {
			if err := syncWorker.Start(ctx); err != nil {
				logger.Error("failed to start sync worker", "error", err)
				os.Exit(1)
			}
		}
	}

	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, leaderboardService, logger)
		if err != nil {
			logger.Warn("failed to create kafka consumer, continuing without kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start kafka consumer, continuing without kafka", "error", err)
			kafkaConsumer = nil
		}
	}

	httpHandler := handler.NewHandler(leaderboardService, wsHub, cfg.Photos.MaxSize, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server",
			"port", cfg.Server.Port,
			"store", cfg.Store.Backend,
			"scoring_policy", policy,
			"postgres", repo != nil,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	wsHub.Stop()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop kafka consumer", "error", err)
		}
	}

	if syncWorker != nil {
		if err := syncWorker.Stop(); err != nil {
			logger.Error("failed to stop sync worker", "error", err)
		}
	}

	logger.Info("server stopped")
}

func openKV(cfg *config.Config, logger *slog.Logger) (store.KV, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory record store, data is lost on restart")
		return store.NewMemoryKV(), nil
	case config.BackendRedis, "":
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		return store.NewRedisKV(&cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
