package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/convolab-backend/internal/app"
	"github.com/yungbote/convolab-backend/internal/platform/envutil"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

func main() {
	// .env is optional; real deployments inject the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("load .env: %v\n", err)
	}

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, log)
	if err != nil {
		log.Error("init app failed", "error", err)
		os.Exit(1)
	}
	application.Start()

	errCh := make(chan error, 1)
	go func() { errCh <- application.Run() }()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), envutil.Duration("SHUTDOWN_TIMEOUT_SECONDS", time.Second, 30*time.Second))
	defer cancel()
	application.Shutdown(shutdownCtx)
}
