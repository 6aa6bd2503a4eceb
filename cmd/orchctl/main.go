// orchctl is the minimal operator CLI in front of the orchestrator
// facade: status, test, set-strategy, serve-metrics.
//
// Usage:
//
//	orchctl status [--detailed] [--config path]
//	orchctl test <provider> [--config path]
//	orchctl set-strategy <failover|consensus|best_match> [--config path]
//	orchctl serve-metrics [--config path]
//	orchctl version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/limmutable/orchestrator/app"
	"github.com/limmutable/orchestrator/internal/config"
	"github.com/limmutable/orchestrator/orchestrator"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "test":
		os.Exit(runTest(os.Args[2:]))
	case "set-strategy":
		os.Exit(runSetStrategy(os.Args[2:]))
	case "serve-metrics":
		os.Exit(runServeMetrics(os.Args[2:]))
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// buildApp loads config from configPath (or defaults) and assembles an
// app.App. Every subcommand shares this path so status/test/set-strategy
// all see the same provider pool.
func buildApp(configPath string) (*app.App, *zap.Logger, error) {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg.Log)

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		return nil, logger, fmt.Errorf("building orchestrator: %w", err)
	}
	return a, logger, nil
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	detailed := fs.Bool("detailed", false, "include health/cost detail per provider")
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	a, logger, err := buildApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchctl: %v\n", err)
		return 1
	}
	defer logger.Sync()
	defer a.Close()

	snapshot := a.Facade.Status()

	unreachable := false
	for id, s := range snapshot {
		if !s.Eligible {
			unreachable = true
		}
		if !*detailed {
			fmt.Printf("%-12s circuit=%-9s eligible=%v\n", id, s.CircuitState, s.Eligible)
			continue
		}
		b, _ := json.MarshalIndent(s, "", "  ")
		fmt.Printf("%s:\n%s\n", id, b)
	}

	if unreachable {
		return 1
	}
	return 0
}

func runTest(args []string) int {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "orchctl: test requires a provider id")
		return 1
	}
	id := orchestrator.ProviderID(fs.Arg(0))

	a, logger, err := buildApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchctl: %v\n", err)
		return 1
	}
	defer logger.Sync()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ok, latency, err := a.Facade.TestProvider(ctx, id)
	if err != nil {
		fmt.Printf("%s: FAIL (%s) %v\n", id, latency, err)
		return 1
	}
	if !ok {
		fmt.Printf("%s: FAIL (%s)\n", id, latency)
		return 1
	}
	fmt.Printf("%s: OK (%s)\n", id, latency)
	return 0
}

// runSetStrategy validates the named strategy and applies it to this
// invocation's facade only. The setting is not saved, so later commands
// start from the configured default_strategy.
func runSetStrategy(args []string) int {
	fs := flag.NewFlagSet("set-strategy", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "orchctl: set-strategy requires one of failover, consensus, best_match")
		return 1
	}
	strategy := orchestrator.Strategy(fs.Arg(0))

	a, logger, err := buildApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchctl: %v\n", err)
		return 1
	}
	defer logger.Sync()
	defer a.Close()

	if err := a.Facade.SetStrategy(strategy); err != nil {
		fmt.Fprintf(os.Stderr, "orchctl: %v\n", err)
		return 1
	}
	fmt.Printf("strategy set to %s\n", strategy)
	return 0
}

// runServeMetrics starts the orchestrator (the same provider pool the
// other subcommands build), wires its requests into the Prometheus
// collector, and serves /metrics until interrupted. Exits 1 if metrics
// are not enabled in config, since that means there is nothing to serve.
func runServeMetrics(args []string) int {
	fs := flag.NewFlagSet("serve-metrics", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	a, logger, err := buildApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchctl: %v\n", err)
		return 1
	}
	defer logger.Sync()
	defer a.Close()

	if a.Metrics == nil {
		fmt.Fprintln(os.Stderr, "orchctl: metrics are not enabled in config (set metrics.enabled: true)")
		return 1
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := a.MetricsAddr
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("orchctl: serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "orchctl: metrics server: %v\n", err)
		return 1
	case <-sigCh:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		return 0
	}
}

func printVersion() {
	fmt.Printf("orchctl %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`orchctl - LLM extraction orchestrator control CLI

Usage:
  orchctl <command> [options]

Commands:
  status [--detailed]               Show per-provider circuit/health/cost status
  test <provider>                   Probe one provider directly, bypassing its breaker
  set-strategy <strategy>           Validate a strategy (failover, consensus, best_match); not saved
  serve-metrics                     Serve /metrics (Prometheus) until interrupted
  version                           Show version information
  help                              Show this help message

Options:
  --config <path>   Path to configuration file (YAML)

Examples:
  orchctl status
  orchctl status --detailed
  orchctl test gemini
  orchctl set-strategy consensus
  orchctl serve-metrics`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
