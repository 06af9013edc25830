// Command flowvaultd is the process entrypoint: load config, recover the
// System from its state log and on-disk segments, run the background
// tasks every partition/topic/user needs on a timer, serve the ops HTTP
// surface, and drain cleanly on SIGINT/SIGTERM. Grounded on the teacher's
// cmd/vaultaire/main.go bootstrap shape (logger first, config next, graceful
// shutdown goroutine on signal.Notify), narrowed from vaultaire's
// storage-driver wiring to this process's System/opsapi pair.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/opsapi"
	"github.com/ridgeline/flowvault/internal/system"
	"github.com/ridgeline/flowvault/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults applied if omitted or missing)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err) // logger doesn't exist yet; config is the one failure mode before it does
	}

	logger, err := telemetry.NewLogger(cfg.Telemetry.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.WriteSnapshot(); err != nil {
		logger.Fatal("writing config snapshot", zap.Error(err))
	}

	watcher, err := config.WatchFile(*configPath, logger)
	if err != nil {
		logger.Fatal("starting config watcher", zap.Error(err))
	}
	defer func() { _ = watcher.Close() }()

	sys, err := system.New(cfg, logger)
	if err != nil {
		logger.Fatal("starting system", zap.Error(err))
	}

	ops := opsapi.New(cfg.Telemetry.OpsListen, sys, sys.Metrics().Handler(), logger)
	go func() {
		if err := ops.ListenAndServe(); err != nil {
			logger.Error("ops HTTP server exited", zap.Error(err))
		}
	}()

	tasks := newBackgroundTasks(sys, logger)
	tasks.start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received, draining")

	tasks.stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops HTTP server shutdown", zap.Error(err))
	}

	if err := sys.Close(30 * time.Second); err != nil {
		logger.Error("system close", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
