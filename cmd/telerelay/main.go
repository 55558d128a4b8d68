package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telerelay/internal/config"
	"telerelay/internal/constants"
	"telerelay/internal/database"
	"telerelay/internal/models"
	"telerelay/internal/retry"
	"telerelay/internal/service"
	"telerelay/internal/tracing"
	"telerelay/pkg/circuitbreaker"
	pkgconstants "telerelay/pkg/constants"
	"telerelay/pkg/sender"
	"telerelay/pkg/transport"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("telerelay %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting telerelay")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else {
		applyLogLevel(logger, cfg.LogLevel)
	}

	// Pick up log-level edits without a restart. Components read their
	// other tunables at construction time, so those apply on the next
	// start.
	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(updated *models.Config) {
		if *verbose {
			return
		}
		applyLogLevel(logger, updated.LogLevel)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    "telerelay",
		ServiceVersion: Version,
		Environment:    os.Getenv("TELERELAY_ENV"),
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: constants.DefaultRetryBackoffMs * time.Millisecond,
		MaxDelay:     constants.DefaultMaxBackoffMs * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	artifacts, err := transport.NewArtifactStore(cfg.Sessions.ArtifactDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	gatewayOpts := []transport.Option{
		transport.WithTimeout(time.Duration(cfg.Gateway.TimeoutSec) * time.Second),
	}
	if cfg.Gateway.APIKey != "" {
		gatewayOpts = append(gatewayOpts, transport.WithAPIKey(cfg.Gateway.APIKey))
	}
	if cfg.Gateway.WebsocketURL != "" {
		gatewayOpts = append(gatewayOpts, transport.WithWebsocketURL(cfg.Gateway.WebsocketURL))
	}
	gateway := transport.NewGatewayClient(cfg.Gateway.BaseURL, logger, gatewayOpts...)

	breaker := circuitbreaker.NewWithLogger("sender",
		pkgconstants.DefaultBreakerMaxFailures,
		pkgconstants.DefaultBreakerTimeoutSec*time.Second,
		logger)
	senderClient := sender.NewClient(cfg.Sender.BaseURL, cfg.Sender.Token,
		sender.WithTimeout(time.Duration(cfg.Sender.TimeoutSec)*time.Second),
		sender.WithCircuitBreaker(breaker))

	ctxWithVerbose := context.WithValue(ctx, service.VerboseContextKey, *verbose)

	registry := service.NewRegistry()
	validator := service.NewAccessValidator(logger, cfg.Relay.ValidationAttempts)

	pipeline := service.NewPipeline(db, senderClient, logger,
		time.Duration(cfg.Relay.ShutdownTimeoutSec)*time.Second)
	pipeline.Start(ctxWithVerbose)
	defer pipeline.Stop()

	sessions := service.NewSessionManager(gateway, db, artifacts, registry, validator, pipeline, logger,
		service.SessionManagerOptions{
			RestoreAttempts: cfg.Sessions.RestoreAttempts,
			RestoreDelay:    time.Duration(cfg.Sessions.RestoreDelaySec) * time.Second,
			DefaultAppID:    cfg.Gateway.DefaultAppID,
			DefaultAppHash:  cfg.Gateway.DefaultAppHash,
		})

	orchestrator := service.NewOrchestrator(sessions, registry, db, logger,
		service.OrchestratorOptions{
			SweepInterval:       time.Duration(cfg.Sessions.HealthSweepIntervalSec) * time.Second,
			MaxRecoveryAttempts: cfg.Sessions.MaxRecoveryAttempts,
			RecoveryCooldown:    time.Duration(cfg.Sessions.RecoveryCooldownSec) * time.Second,
			StartupDelay:        time.Duration(cfg.Sessions.StartupDelayMs) * time.Millisecond,
		})

	// Bring back every authenticated user before accepting control
	// traffic, then keep sessions healthy in the background
	orchestrator.RestoreAllSessions(ctxWithVerbose)
	orchestrator.Start(ctxWithVerbose)
	defer orchestrator.Stop()

	scheduler := service.NewScheduler(db, artifacts,
		cfg.Sessions.BackupRetentionDays, cfg.Sessions.CleanupIntervalHours, logger)
	go scheduler.Start(ctxWithVerbose)
	defer scheduler.Stop()

	server := NewServer(cfg, db, sessions, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// applyLogLevel sets the logger level from a config value. Levels more
// verbose than info need the -verbose flag, which also unmasks
// sensitive fields.
func applyLogLevel(logger *logrus.Logger, level string) {
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if parsed > logrus.InfoLevel {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}
