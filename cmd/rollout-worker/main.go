package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"distributed-cartpole-dreamer/internal/worker"
)

const (
	defaultBufferURL  = "http://localhost:9001"
	defaultTrainerURL = "http://localhost:9002"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(level)
	}

	runner := &worker.Runner{
		WorkerID:      getenv("WORKER_ID", "worker-"+uuid.NewString()[:8]),
		BufferURL:     getenv("BUFFER_URL", defaultBufferURL),
		TrainerURL:    getenv("TRAINER_URL", defaultTrainerURL),
		BatchEpisodes: getenvInt("BATCH_EPISODES", 8),
		PolicyRefresh: time.Duration(getenvInt("POLICY_REFRESH_SEC", 5)) * time.Second,
		Seed:          getenvInt64("SEED", time.Now().UnixNano()),
		Backoff:       time.Duration(getenvInt("BACKOFF_MS", 500)) * time.Millisecond,
		Logger:        logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"worker_id":  runner.WorkerID,
		"buffer_url": runner.BufferURL,
	}).Info("rollout worker starting")
	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("rollout worker stopped")
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
