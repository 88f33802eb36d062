package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/roadmap-backend/internal/app"
)

func main() {
	log, err := app.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, log)
	if err != nil {
		log.Error("Failed to init app", "error", err)
		log.Sync()
		os.Exit(1)
	}

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), application.Cfg.ShutdownGrace)
	defer cancel()
	application.Close(shutdownCtx)

	if runErr != nil {
		log.Error("Server exited with error", "error", runErr)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
