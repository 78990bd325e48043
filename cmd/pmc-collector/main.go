package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AMDResearch/pmc-collector/internal/collector"
	"github.com/AMDResearch/pmc-collector/internal/config"
	"github.com/AMDResearch/pmc-collector/internal/metrics"
	"github.com/AMDResearch/pmc-collector/internal/report"
	"github.com/AMDResearch/pmc-collector/internal/rocm"
	"github.com/AMDResearch/pmc-collector/pkg/logutil"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logutil.InitLogger()
	logger := logutil.GetLogger()
	defer logger.Sync()

	go func() {
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigch
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		logger.Error("error loading configuration", zap.Error(err))
		return 1
	}

	lib, err := rocm.Open(cfg.RocprofilerLibrary)
	if err != nil {
		logger.Error("error loading rocprofiler", zap.Error(err))
		return 1
	}

	var exporter *metrics.Exporter
	if cfg.ListenAddress != "" {
		exporter = metrics.NewExporter()
		go func() {
			if err := exporter.Serve(ctx, cfg.ListenAddress); err != nil {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	runner, err := collector.NewRunner(lib, collector.RunnerOptions{
		Counters:         cfg.Counters,
		ReferenceCounter: cfg.ReferenceCounter,
		Interval:         cfg.Interval,
		Parallel:         cfg.Parallel,
		Report:           report.NewWriter(os.Stdout),
		Metrics:          exporter,
	})
	if err != nil {
		logger.Error("error initializing collectors", zap.Error(err))
		return 1
	}

	logger.Info("Collector(s) created successfully",
		zap.Strings("counters", runner.Counters()))

	if err := runner.Run(ctx); err != nil {
		logger.Error("error running collectors", zap.Error(err))
		return 1
	}

	// Invalidity is reported in the output, not via the exit status.
	logger.Info("Collector finished running", zap.Bool("valid", runner.Valid()))
	return 0
}
