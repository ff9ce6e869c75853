package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/app"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/server"
)

// configPaths allows multiple -config flags; later files override earlier.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	serverPort  = flag.Int("port", 0, "Server port (overrides config)")
	serverHost  = flag.String("host", "", "Server host (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Trutina version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup order: config (defaults -> files -> env), CLI overrides,
	// logger, banner, application, server.
	if len(configFiles) == 0 {
		if _, err := os.Stat("trutina.toml"); err == nil {
			configFiles = append(configFiles, "trutina.toml")
		} else if _, err := os.Stat("deployments/local/trutina.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/trutina.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(config, *serverPort, *serverHost)

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	// jobs left running by a previous process are failed before new work
	// is accepted
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if reconciled, err := application.Scheduler.ReconcileOrphans(startupCtx); err != nil {
		logger.Warn().Err(err).Msg("Startup orphan reconcile failed")
	} else if reconciled > 0 {
		logger.Info().Int64("jobs", reconciled).Msg("Orphaned jobs failed on startup")
	}
	cancelStartup()

	if err := application.Maintenance.Start(); err != nil {
		logger.Warn().Err(err).Msg("Maintenance schedule failed to start")
	}

	srv := server.New(application)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Server failed to start")
			os.Exit(1)
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Interrupt signal received")

	// Drain order: stop accepting pipeline work, wait for running
	// subtasks up to the deadline, then stop the HTTP server.
	application.Scheduler.Shutdown()
	deadline := time.Duration(config.Scheduler.ShutdownDeadlineSeconds) * time.Second
	if !application.Scheduler.WaitWithDeadline(deadline) {
		logger.Error().Int64("deadline_seconds", int64(deadline/time.Second)).Msg("Scheduler drain deadline expired, exiting")
		srvCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(srvCtx)
		cancel()
		application.Close()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Server stopped")
}
