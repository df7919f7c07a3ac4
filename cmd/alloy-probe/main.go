// Command alloy-probe builds a node manager from a YAML node list (or
// ALLOY_* environment variables / flags), prints the aggregated model
// inventory it discovers, and exits. It exists as a smoke-test tool for
// new node fleets before they're wired into a real serving path.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alloyai/alloy-nodemanager/internal/logging"
	"github.com/alloyai/alloy-nodemanager/internal/metrics"
	"github.com/alloyai/alloy-nodemanager/nodemanager"
)

func main() {
	os.Exit(run())
}

func run() int {
	logFlags := logging.RegisterFlags()
	metricsFlags := metrics.RegisterFlags()
	managerFlags := nodemanager.RegisterFlags()
	refreshTimeoutS := flag.Float64("probe-refresh-timeout-s", 0, "Per-call timeout override for the probe's refresh (0 uses the manager default)")
	flag.Parse()

	logger := logging.New(logFlags.ToConfig(os.Stderr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	metricsCfg := metricsFlags.ToConfig("alloy-probe", "dev")
	recorder, err := metrics.New(ctx, metricsCfg)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err.Error())
		return 1
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := recorder.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err.Error())
		}
	}()

	cfg, err := managerFlags.ToConfig()
	if err != nil {
		logger.Error("failed to load node manager configuration", "error", err.Error())
		return 1
	}
	cfg.Logger = logger
	cfg.Metrics = recorder

	manager, err := nodemanager.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to construct node manager", "error", err.Error())
		return 1
	}

	var timeoutPtr *float64
	if *refreshTimeoutS > 0 {
		timeoutPtr = refreshTimeoutS
	}

	inventory := manager.Models(ctx, timeoutPtr)

	encoded, err := json.MarshalIndent(inventory, "", "  ")
	if err != nil {
		logger.Error("failed to encode inventory", "error", err.Error())
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}
