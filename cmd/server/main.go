package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/warehouse-wcs/fleet-controller/internal/app"
	httpPkg "github.com/warehouse-wcs/fleet-controller/internal/http"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/config"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/logging"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/observability"
)

// websocketServerPort is the dedicated port for the standalone fleet
// status feed (internal/http/websocket_server.go), run alongside the main
// HTTP server on its own listener rather than sharing the REST mux's
// middleware chain.
const websocketServerPort = 6661

func main() {
	// Initialize configuration
	cfg, err := config.InitConfig()
	if err != nil {
		slog.Error("failed to initialize configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize logging
	logging.InitLogger(cfg.LogLevel)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Log environment information for debugging
	envInfo := cfg.GetEnvironmentInfo()
	slog.InfoContext(ctx, "fleet controller starting up",
		slog.String("environment", cfg.Environment),
		slog.String("log_level", cfg.LogLevel),
		slog.Int("port", cfg.Port),
		slog.Bool("metrics_enabled", cfg.MetricsEnabled),
		slog.Bool("websocket_enabled", cfg.WebSocketEnabled),
		slog.Bool("circuit_breaker_enabled", cfg.CircuitBreakerEnabled),
		slog.Any("config_summary", envInfo))

	// Wire the fleet controller: graph catalog, stores, mission coordinator,
	// conflict resolver, schedulers, dispatcher and a demo fleet. No
	// background loop runs until sys.Run is called below.
	sys, err := app.New(cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to wire fleet controller", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Stand up tracing (mission.BuildSegment, conflict.Resolve spans) and the
	// /metrics-adjacent log/span/request instrumentation for the HTTP layer.
	// Falls back to disabled/noop behavior on config error rather than
	// aborting startup over an observability problem.
	obsCfg, err := observability.LoadObservabilityConfig()
	var telemetry *observability.TelemetryProvider
	if err != nil {
		slog.WarnContext(ctx, "failed to load observability config, tracing disabled", slog.String("error", err.Error()))
	} else {
		telemetry, err = observability.NewTelemetryProvider(obsCfg, slog.Default())
		if err != nil {
			slog.WarnContext(ctx, "failed to start telemetry provider, tracing disabled", slog.String("error", err.Error()))
			telemetry = nil
		}
	}
	if telemetry != nil {
		sys.Mission.Tracer = telemetry.GetTracer()
		sys.Resolver.Tracer = telemetry.GetTracer()
	}

	slog.InfoContext(ctx, "starting background loops",
		slog.Int("shuttle_count", cfg.DefaultShuttleCount),
		slog.Int("amr_count", cfg.DefaultAMRCount),
		slog.Int("lifter_towers", cfg.LifterTowerCount))
	sys.Run(ctx)

	// Determine the port to use
	port := cfg.Port
	if port <= 0 {
		slog.WarnContext(ctx, "invalid port in configuration, using default",
			slog.Int("configured_port", port),
			slog.Int("default_port", 6660))
		port = 6660
	}

	// Create servers
	server := httpPkg.NewServer(cfg, port, sys)
	server.EnableTracing(telemetry)
	var wsServer *httpPkg.WebSocketServer
	if cfg.WebSocketEnabled {
		wsServer = httpPkg.NewWebSocketServer(websocketServerPort, sys, slog.With(slog.String("component", "websocket-server")))
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Start servers with proper error handling
	serverErrCh := make(chan error, 2)

	// Start main HTTP server
	go func() {
		slog.InfoContext(ctx, "starting HTTP server",
			slog.Int("port", port),
			slog.String("environment", cfg.Environment),
			slog.Duration("read_timeout", cfg.ReadTimeout),
			slog.Duration("write_timeout", cfg.WriteTimeout),
			slog.Duration("idle_timeout", cfg.IdleTimeout))

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "HTTP server failed to start",
				slog.Int("port", port),
				slog.String("error", err.Error()))
			serverErrCh <- err
		}
	}()

	// Start the standalone WebSocket server, if enabled
	if wsServer != nil {
		go func() {
			slog.InfoContext(ctx, "starting WebSocket server",
				slog.Int("port", websocketServerPort))

			if err := wsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.ErrorContext(ctx, "WebSocket server failed to start",
					slog.Int("port", websocketServerPort),
					slog.String("error", err.Error()))
				serverErrCh <- err
			}
		}()
	}

	// Wait a moment to see if servers start successfully
	startupTimer := time.NewTimer(2 * time.Second)

	select {
	case err := <-serverErrCh:
		// Server failed to start
		startupTimer.Stop()
		slog.ErrorContext(ctx, "server startup failed", slog.String("error", err.Error()))
		shutdownServers(server, wsServer, cfg)
		sys.Shutdown()
		shutdownTelemetry(telemetry)
		os.Exit(1)

	case <-startupTimer.C:
		// Servers started successfully
		slog.InfoContext(ctx, "all servers started successfully")

	case sig := <-quit:
		// Got shutdown signal during startup
		startupTimer.Stop()
		slog.InfoContext(ctx, "received shutdown signal during startup",
			slog.String("signal", sig.String()))
		shutdownServers(server, wsServer, cfg)
		sys.Shutdown()
		shutdownTelemetry(telemetry)
		return
	}

	// Wait for shutdown signal
	sig := <-quit
	slog.InfoContext(ctx, "received shutdown signal",
		slog.String("signal", sig.String()),
		slog.Duration("shutdown_timeout", cfg.ShutdownTimeout))

	// Cancel context to signal all background loops and in-flight
	// requests to stop
	cancel()

	// Shutdown servers gracefully
	shutdownServers(server, wsServer, cfg)

	// Release any resources the fleet controller opened (e.g. a buntdb
	// reservation-store file handle)
	slog.InfoContext(ctx, "shutting down fleet controller")
	sys.Shutdown()
	shutdownTelemetry(telemetry)
	slog.InfoContext(ctx, "fleet controller shutdown completed")

	// Wait for a short grace period before final exit
	<-time.After(cfg.ShutdownGrace)
	slog.InfoContext(ctx, "graceful shutdown completed",
		slog.Duration("grace_period", cfg.ShutdownGrace))
}

// shutdownTelemetry flushes and closes the telemetry provider, if one was
// started. A no-op when tracing never came up (nil or disabled).
func shutdownTelemetry(telemetry *observability.TelemetryProvider) {
	if telemetry == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Error("telemetry provider shutdown failed", slog.String("error", err.Error()))
	}
}

// shutdownServers gracefully shuts down both the HTTP and WebSocket servers.
func shutdownServers(server *httpPkg.Server, wsServer *httpPkg.WebSocketServer, cfg *config.Config) {
	slog.Info("shutting down servers gracefully")

	if err := server.Shutdown(); err != nil {
		slog.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	if wsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("WebSocket server shutdown failed", slog.String("error", err.Error()))
		} else {
			slog.Info("WebSocket server shutdown completed")
		}
	}
}
