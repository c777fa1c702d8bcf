package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"distributed-cartpole-dreamer/internal/trainer"
	"distributed-cartpole-dreamer/internal/worldmodel"
)

const (
	defaultBufferURL = "http://localhost:9001"
	defaultPort      = "9002"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(level)
	}

	cfg := trainer.DefaultConfig()
	if path := os.Getenv("WORLD_MODEL_CONFIG"); path != "" {
		model, err := worldmodel.LoadConfig(path)
		if err != nil {
			logger.WithError(err).Fatal("load world model config")
		}
		cfg.Model = model
	}
	cfg.BatchSize = getenvInt("TRAIN_BATCH", cfg.BatchSize)
	cfg.SeqLen = getenvInt("SEQ_LEN", cfg.SeqLen)
	cfg.Horizon = getenvInt("IMAGINE_HORIZON", cfg.Horizon)
	cfg.StoreSteps = getenvInt("STORE_STEPS", cfg.StoreSteps)
	cfg.DequeueBatch = getenvInt("DEQUEUE_BATCH", cfg.DequeueBatch)
	cfg.Discount = getenvFloat("DISCOUNT", cfg.Discount)

	t, err := trainer.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("build trainer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := getenv("PORT", defaultPort)
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           trainer.NewHandler(t),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()
	logger.WithField("port", port).Info("trainer listening")

	runner := &trainer.Runner{
		Trainer:      t,
		BufferURL:    getenv("BUFFER_URL", defaultBufferURL),
		PollInterval: time.Duration(getenvInt("POLL_MS", 500)) * time.Millisecond,
	}
	err = runner.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	if err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("trainer stopped")
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

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
