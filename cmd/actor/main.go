// Command actor runs one FABRIC/ORCA actor process: it loads
// configuration, builds the process-wide container (§9), starts the
// kernel/RPC/REST stack, and waits for SIGINT/SIGTERM to shut down
// gracefully, the same signal.Notify/context pattern the teacher's
// infrastructure/service/runner.go uses for its own services.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabric-actor/kernel/internal/container"
	"github.com/fabric-actor/kernel/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg)
	if err != nil {
		log.Fatalf("build container: %v", err)
	}

	if err := c.Start(ctx); err != nil {
		log.Fatalf("start actor %s: %v", cfg.Actor.GUID, err)
	}
	c.Log.WithFields(map[string]any{
		"actor": cfg.Actor.GUID,
		"type":  cfg.Actor.Type,
	}).Info("actor started")

	<-ctx.Done()
	c.Log.Info("shutdown signal received")

	grace := time.Duration(cfg.Runtime.ShutdownGraceSeconds) * time.Second
	if grace <= 0 {
		grace = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := c.Stop(shutdownCtx); err != nil {
		c.Log.Warn("shutdown error: " + err.Error())
		os.Exit(1)
	}
	c.Log.Info("actor stopped")
}
