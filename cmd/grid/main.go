// Command grid evaluates a parameter grid of the joint factor strategy on
// each configured symbol and writes one result table per symbol.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chensirou3/Multi-factor-combination/internal/config"
	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/pipeline"
	strategy "github.com/chensirou3/Multi-factor-combination/internal/signal"
	"github.com/chensirou3/Multi-factor-combination/pkg/logger"
)

func main() {
	// --- Configuration ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	modeName := flag.String("mode", "score", "Signal mode: filter or score")
	symbolList := flag.String("symbols", "", "Comma-separated symbols (default: data.symbols)")
	sortName := flag.String("sort", "sharpe", "Field the logged best configurations are ranked by: sharpe, total_return, win_rate, max_drawdown, trades")
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
	sortBy, err := grid.ParseField(*sortName)
	if err != nil {
		logger.Fatalf("Invalid -sort: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, store, cleanup, err := pipeline.Open(ctx, cfg, zl)
	if err != nil {
		logger.Fatalf("Failed to open data stores: %v", err)
	}
	defer cleanup()

	tables, err := pipeline.NewRunner(cfg, src, store, zl).SortBy(sortBy).Grid(ctx, mode, pipeline.ParseSymbols(*symbolList))
	if err != nil {
		if len(tables) == 0 {
			logger.Fatalf("Grid search failed: %v", err)
		}
		logger.Errorf("Grid search finished with errors: %v", err)
	}
	logger.Infof("Grid search complete: %d symbol(s), results in %s", len(tables), cfg.Output.Dir)
}
