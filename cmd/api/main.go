package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "artifact-job-service/docs"
	"artifact-job-service/internal/config"
	"artifact-job-service/internal/kinds"
	"artifact-job-service/internal/logging"
	"artifact-job-service/internal/queue"
	"artifact-job-service/internal/registry"
	"artifact-job-service/internal/repository/postgresql"
	"artifact-job-service/internal/service"
	"artifact-job-service/internal/signer"
	httptransport "artifact-job-service/internal/transport/http"
)

// @title Artifact Job Service API
// @version 1.0
// @description Asynchronous job processing with durable artifact storage and time-limited download URLs.
func main() {
	logger := logging.New(os.Getenv("APP_ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgresql.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}

	reg := registry.New()
	if err := kinds.RegisterBuiltin(reg); err != nil {
		logger.Fatal().Err(err).Msg("register job kinds")
	}

	repo := postgresql.NewJobRepository(pool)
	blobs := postgresql.NewArtifactRepository(pool)
	q := queue.NewRedisQueue(rdb, cfg.QueueKey, cfg.ProcessingKey, cfg.ClaimsKey, cfg.VisibilityTimeout)
	sg := signer.New(cfg.SigningSecret, cfg.DownloadTTL)

	svc := service.NewJobService(repo, blobs, q, reg, sg, service.Options{
		InlinePayloadLimit: cfg.InlinePayloadLimit,
		MaxAttempts:        cfg.MaxAttempts,
	})

	h := httptransport.NewHandler(svc, cfg.PublicBaseURL)
	router := httptransport.Routes(h, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Strs("kinds", reg.Kinds()).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
	logger.Info().Msg("api stopped")
}
