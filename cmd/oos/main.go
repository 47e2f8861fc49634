// Command oos runs the train/test plateau analysis for each configured
// symbol and writes the per-window tables and a stability summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chensirou3/Multi-factor-combination/internal/config"
	"github.com/chensirou3/Multi-factor-combination/internal/oos"
	"github.com/chensirou3/Multi-factor-combination/internal/pipeline"
	strategy "github.com/chensirou3/Multi-factor-combination/internal/signal"
	"github.com/chensirou3/Multi-factor-combination/pkg/logger"
)

func main() {
	// --- Configuration ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	modeName := flag.String("mode", "score", "Signal mode: filter or score")
	symbolList := flag.String("symbols", "", "Comma-separated symbols (default: data.symbols)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger.SetGlobalLogLevel(cfg.LogLevel)
	zl := logger.Zap()
	defer logger.Sync()
	logger.Infof("Loaded configuration from: %s", *configPath)

	mode, err := strategy.ParseMode(*modeName)
	if err != nil {
		logger.Fatalf("Invalid -mode: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, store, cleanup, err := pipeline.Open(ctx, cfg, zl)
	if err != nil {
		logger.Fatalf("Failed to open data stores: %v", err)
	}
	defer cleanup()

	reports, err := pipeline.NewRunner(cfg, src, store, zl).OOS(ctx, mode, pipeline.ParseSymbols(*symbolList))
	if err != nil {
		if errors.Is(err, oos.ErrBoundary) {
			logger.Fatalf("Invalid OOS split, nothing was run: %v", err)
		}
		logger.Fatalf("OOS analysis failed after %d symbol(s): %v", len(reports), err)
	}

	for _, rep := range reports {
		st := rep.Stability
		logger.Infof("%s: %s subset=%d train_mean=%.3f test_mean=%.3f degradation=%.3f low_confidence=%t",
			rep.Symbol, rep.Selection.Method, st.SubsetSize, st.Train.Mean, st.Test.Mean, st.DegradationMean, st.LowConfidence)
	}
	logger.Infof("OOS analysis complete, results in %s", cfg.Output.Dir)
}
