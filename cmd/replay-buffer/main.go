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

	"distributed-cartpole-dreamer/internal/buffer"
)

const (
	defaultCapacity = 2048
	defaultPort     = "9001"
)

func main() {
	logger := newLogger()

	capacity := getenvInt("BUFFER_CAPACITY", defaultCapacity)
	policy := getenv("BUFFER_POLICY", string(buffer.PolicyFIFO))
	port := getenv("PORT", defaultPort)

	replay, err := buffer.NewReplayBuffer(capacity, policy)
	if err != nil {
		logger.WithError(err).Fatal("invalid buffer configuration")
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           buffer.NewHandler(replay, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.WithFields(logrus.Fields{
		"port":     port,
		"capacity": capacity,
		"policy":   policy,
	}).Info("replay buffer listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("server failed")
	}
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(level)
	}
	return logger
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
