package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/concord-chat/intercom-router/internal/admission"
	"github.com/concord-chat/intercom-router/internal/adminhttp"
	"github.com/concord-chat/intercom-router/internal/channel"
	"github.com/concord-chat/intercom-router/internal/client"
	"github.com/concord-chat/intercom-router/internal/config"
	"github.com/concord-chat/intercom-router/internal/mediaworker"
	"github.com/concord-chat/intercom-router/internal/observability"
	"github.com/concord-chat/intercom-router/internal/routing"
	"github.com/concord-chat/intercom-router/internal/security"
	"github.com/concord-chat/intercom-router/internal/server"
	"github.com/concord-chat/intercom-router/internal/signaling"
	"github.com/concord-chat/intercom-router/pkg/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:   cfg.GetLogLevel(),
		Format:  cfg.Logging.Format,
		Service: "intercom-router",
		Version: version.Version,
	})
	logger.Info().
		Str("version", version.Version).
		Str("git_commit", version.GitCommit).
		Str("platform", version.Platform).
		Msg("starting intercom router")

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker(logger, version.Version)

	shutdownTracing, err := observability.InitTracing(context.Background(), observability.TracingConfig{
		ServiceName:    "intercom-router",
		ServiceVersion: version.Version,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled: failed to initialize")
		shutdownTracing = func(context.Context) error { return nil }
	}

	channels := channel.NewRegistry()
	clients := client.NewRegistry()

	worker, err := mediaworker.New(mediaworker.Config{
		ListenIP:          cfg.Media.ListenIP,
		AnnouncedIP:       cfg.Media.AnnouncedIP,
		PortMin:           cfg.Media.PortMin,
		PortMax:           cfg.Media.PortMax,
		TURNHost:          cfg.Media.TURNHost,
		TURNSecret:        cfg.Media.TURNSecret,
		TURNCredentialTTL: cfg.Media.TURNCredentialTTL,
	}, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize media worker")
	}

	routingTable := routing.New(worker, channels, clients)
	admissionCtl := admission.New(cfg.ServerSecret, cfg.AdminSecret, clients)

	signingSecret := cfg.ServerSecret
	if cfg.ServerSecretFile != "" {
		signingSecret, err = security.LoadEncryptedSecret(cfg.ServerSecretFile, cfg.ServerSecretEncryptionKeyHex)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to decrypt server secret file")
		}
	}
	tokens, err := signaling.NewTokenManager(signingSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize session token manager")
	}

	hub := signaling.NewHub(admissionCtl, channels, clients, worker, routingTable, tokens, metrics, logger)

	// A single reader drains worker.Died() (it only ever sends once) and
	// fans the result out to both the health check and the shutdown select.
	var workerDeathErr error
	workerDied := make(chan struct{})
	go func() {
		workerDeathErr = <-worker.Died()
		close(workerDied)
	}()
	health.RegisterCheck("media_worker", func(ctx context.Context) error {
		select {
		case <-workerDied:
			return workerDeathErr
		default:
			return nil
		}
	})

	observerCtx, cancelObserver := context.WithCancel(context.Background())
	defer cancelObserver()
	hub.StartSpeakingObserver(observerCtx, cfg.Speaking.ThresholdDBFS, cfg.Speaking.Interval, cfg.Speaking.HoldOff)

	srv := server.New(server.Config{
		Host:            cfg.Media.ListenIP,
		Port:            cfg.SignalingPort,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, hub, health, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("signaling server error: %w", err)
		}
	}()

	var console *adminhttp.Console
	if hash := os.Getenv("ADMIN_CONSOLE_PASSWORD_HASH"); hash != "" {
		console = adminhttp.NewConsole(hash)
	}
	adminSrv := adminhttp.New(channels, clients, console, health, metrics, logger)
	go func() {
		if err := adminSrv.Start(fmt.Sprintf("%s:%d", cfg.Media.ListenIP, cfg.MetricsPort)); err != nil {
			errCh <- fmt.Errorf("admin http server error: %w", err)
		}
	}()

	logger.Info().
		Int("signaling_port", cfg.SignalingPort).
		Int("admin_port", cfg.MetricsPort).
		Msg("intercom router started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error, initiating shutdown")
	case <-workerDied:
		logger.Error().Err(workerDeathErr).Msg("media worker died, shutting down")
	}

	cancelObserver()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("signaling server shutdown error")
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("admin http server shutdown error")
	}
	if err := worker.Close(); err != nil {
		logger.Error().Err(err).Msg("media worker close error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("tracing shutdown error")
	}

	logger.Info().Msg("intercom router shut down successfully")
}
