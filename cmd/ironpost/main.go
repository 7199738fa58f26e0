// Package main — cmd/ironpost/main.go
//
// ironpost daemon entrypoint.
//
// Startup sequence:
//  1. Parse flags (-c config path, --pid-file override, --version).
//  2. Load and validate config.
//  3. Build structured logger (zap, level/format from config).
//  4. Construct the orchestrator (wires every module and the control
//     socket).
//  5. Run: PID file, InitAll, StartAll, block on SIGINT/SIGTERM,
//     StopAll.
//
// On config load failure or orchestrator construction failure: log and
// exit 1. A failed Init or Start also exits 1, after StopAll has rolled
// back whatever already started.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dongwonkwak/ironpost/internal/config"
	"github.com/dongwonkwak/ironpost/internal/orchestrator"
)

func main() {
	configPath := flag.String("c", config.DefaultConfigPath, "Path to config.yaml")
	pidFileOverride := flag.String("pid-file", "", "Override general.pid_file from config")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("ironpost %s (commit=%s built=%s)\n", config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	bootLog, _ := zap.NewProduction()

	cfg, err := config.Load(*configPath, bootLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}
	_ = bootLog.Sync() //nolint:errcheck

	if *pidFileOverride != "" {
		cfg.General.PIDFilePath = *pidFileOverride
	}

	log, err := buildLogger(cfg.General.LogLevel, cfg.General.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("ironpost starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.General.NodeID),
		zap.String("config", *configPath),
	)

	orch, err := orchestrator.New(cfg, log)
	if err != nil {
		log.Fatal("orchestrator construction failed", zap.Error(err))
	}

	// Run installs its own SIGINT/SIGTERM handler and blocks until
	// shutdown; the background context here only matters for a parent
	// process that wants to cancel us programmatically (e.g. tests).
	if err := orch.Run(context.Background()); err != nil {
		log.Error("ironpost exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func buildLogger(level, format string) (*zap.Logger, error) {
	// zap has no trace level; "trace" runs at debug.
	if level == "trace" {
		level = "debug"
	}
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
