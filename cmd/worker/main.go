package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"nfccheckin/internal/checkin"
	"nfccheckin/internal/config"
	"nfccheckin/internal/queue"
	"nfccheckin/internal/store"
)

// Worker drains visit events from redis into the live per-label counters.
func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg, "worker")

	if cfg.QueueBackend != "redis" {
		logger.Error("worker requires QUEUE_BACKEND=redis", "queue", cfg.QueueBackend)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		logger.Error("invalid redis address", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", "addr", redisClient.Addr())
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	counters := store.NewRedisCounters(redisClient.Client, cfg.LiveCounterKey)

	logger.Info("worker started, waiting for visits", "queue", cfg.QueueKey, "counters", cfg.LiveCounterKey)
	if err := checkin.ConsumeVisits(ctx, q, counters, logger); err != nil {
		logger.Error("consume failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
