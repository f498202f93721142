package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"artifact-job-service/internal/config"
	"artifact-job-service/internal/kinds"
	"artifact-job-service/internal/logging"
	"artifact-job-service/internal/queue"
	"artifact-job-service/internal/registry"
	"artifact-job-service/internal/repository/postgresql"
	"artifact-job-service/internal/worker"
)

func main() {
	logger := logging.New(os.Getenv("APP_ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := postgresql.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer dbpool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}

	reg := registry.New()
	if err := kinds.RegisterBuiltin(reg); err != nil {
		logger.Fatal().Err(err).Msg("register job kinds")
	}

	repo := postgresql.NewJobRepository(dbpool)
	blobs := postgresql.NewArtifactRepository(dbpool)
	q := queue.NewRedisQueue(rdb, cfg.QueueKey, cfg.ProcessingKey, cfg.ClaimsKey, cfg.VisibilityTimeout)

	// Reaper: returns messages whose claim outlived the visibility timeout
	// back to the queue, so jobs from crashed workers get redelivered.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := q.RequeueStale(ctx, 100)
				if err != nil {
					logger.Error().Err(err).Msg("requeue stale failed")
					continue
				}
				if n > 0 {
					logger.Warn().Int64("count", n).Msg("requeued stale claims")
				}
			}
		}
	}()

	processor := worker.NewProcessor(repo, blobs, q, reg, cfg.HandlerTimeout, cfg.VisibilityTimeout, logger)
	wpool := worker.NewPool(q, processor, cfg.Workers, logger)

	logger.Info().
		Int("workers", cfg.Workers).
		Strs("kinds", reg.Kinds()).
		Dur("handler_timeout", cfg.HandlerTimeout).
		Dur("visibility_timeout", cfg.VisibilityTimeout).
		Msg("worker starting")

	wpool.Run(ctx)

	logger.Info().Msg("worker stopped")
}
