package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/conductor-backend/internal/app"
	"github.com/yungbote/conductor-backend/internal/utils"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	runServer := utils.GetEnvAsBool("RUN_SERVER", true, a.Log)
	runWorker := utils.GetEnvAsBool("RUN_WORKER", true, a.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if runWorker {
		g.Go(func() error {
			a.Services.Orchestrator.Run(gctx)
			return nil
		})
	}

	if runServer {
		port := utils.GetEnv("PORT", "8080", a.Log)
		a.Log.Info("Server listening", "port", port)
		g.Go(func() error {
			return a.Run(":" + port)
		})
	}

	if !runServer && !runWorker {
		a.Log.Warn("Both RUN_SERVER and RUN_WORKER disabled; nothing to do")
		return
	}

	if err := g.Wait(); err != nil {
		a.Log.Warn("Shutdown with error", "error", err)
	}
}
