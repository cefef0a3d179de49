package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warehouse-wcs/fleet-controller/internal/app"
	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/config"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/health"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/logging"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/observability"
)

// statusUpdateTimeout bounds how long collecting the snapshot for a single
// /ws/fleet push may take before the tick is skipped.
const statusUpdateTimeout = 2 * time.Second

// Server represents the HTTP server.
type Server struct {
	system        *app.System
	httpServer    *http.Server
	cfg           *config.Config
	logger        *slog.Logger
	healthService *health.HealthService
}

// upgrader is used to upgrade HTTP connections to WebSocket connections.
var upgrader = websocket.Upgrader{
	// Allow all origins for demonstration purposes.
	CheckOrigin: func(r *http.Request) bool { return true },
	// Set buffer sizes for better performance
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Disable compression as it can cause issues with some proxies
	EnableCompression: false,
	// Add error handler to get more details about upgrade failures
	Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
		fmt.Printf("WebSocket upgrade error: %v (status: %d)\n", reason, status)
		http.Error(w, reason.Error(), status)
	},
}

// NewServer creates a new instance of Server with versioned API and middleware.
//
// Parameters:
// - cfg (*config.Config): The configuration instance.
// - port (int): The port number to listen on.
// - system (*app.System): The wired fleet controller.
//
// Returns:
// - A pointer to the new Server instance.
func NewServer(cfg *config.Config, port int, system *app.System) *Server {
	s := &Server{
		system:        system,
		cfg:           cfg,
		logger:        slog.With(slog.String("component", constants.ComponentHTTPServer)),
		healthService: health.NewHealthService(30 * time.Second),
	}

	s.setupHealthChecks(system)

	addr := fmt.Sprintf(":%d", port)

	v1Handlers := NewV1Handlers(system, cfg, s.logger)

	rateLimiter := NewRateLimitMiddleware(cfg.RateLimitRPM, s.logger)

	middlewareChain := ChainMiddleware(
		RequestIDMiddleware(),
		LoggingMiddleware(s.logger),
		RecoveryMiddleware(s.logger),
		CORSMiddleware(),
		SecurityHeadersMiddleware(),
		rateLimiter.Handler(),
	)

	mux := http.NewServeMux()

	// === V1 API ROUTES ===
	mux.HandleFunc("/v1", v1Handlers.APIInfoHandler)
	mux.HandleFunc("/v1/metrics", v1Handlers.MetricsHandler)
	mux.HandleFunc("/v1/health/live", s.livenessHandler)
	mux.HandleFunc("/v1/health/ready", s.readinessHandler)
	mux.HandleFunc("/v1/health/detailed", s.detailedHealthHandler)

	// === FLEET ROUTES (§6) ===
	mux.HandleFunc("/amr/path", v1Handlers.AMRPathHandler)
	mux.HandleFunc("/amr/data/", v1Handlers.AMRDataHandler)
	mux.HandleFunc("/lifter/request-task", v1Handlers.LifterRequestTaskHandler)
	mux.HandleFunc("/lifter/complete-task/", v1Handlers.LifterCompleteTaskHandler)
	mux.HandleFunc("/health", v1Handlers.HealthHandler(s.healthService))

	// === MONITORING ROUTES ===
	mux.Handle("/metrics", promhttp.Handler())

	// === REALTIME ===
	mux.HandleFunc(s.cfg.WebSocketPath, s.fleetWebSocketHandler)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      middlewareChain(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// setupHealthChecks initializes and registers health check components.
func (s *Server) setupHealthChecks(system *app.System) {
	s.healthService.Register(health.NewSystemResourceChecker(85.0, 1000))
	s.healthService.Register(health.NewLivenessChecker())

	fleetHealthChecker := health.NewComponentHealthChecker("fleet", func(ctx context.Context) (bool, string, map[string]interface{}) {
		snapshot := system.Snapshot()

		details := map[string]interface{}{
			"vehicle_count": len(snapshot.Vehicles),
			"pending_tasks": snapshot.PendingTasks,
			"staging_tasks": snapshot.StagingTasks,
		}

		if len(snapshot.Vehicles) == 0 {
			return true, "fleet ready for vehicle registration", details
		}

		return true, "fleet controller is serving traffic", details
	})
	s.healthService.Register(fleetHealthChecker)

	readinessChecker := health.NewReadinessChecker(fleetHealthChecker)
	s.healthService.Register(readinessChecker)

	s.logger.Info("health checks initialized",
		slog.Int("registered_checkers", 4))
}

// livenessHandler handles liveness probe requests.
func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.healthService.Check(r.Context(), "liveness")
	if err != nil {
		http.Error(w, "Liveness check failed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Status == health.StatusHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// readinessHandler handles readiness probe requests.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.healthService.Check(r.Context(), "readiness")
	if err != nil {
		http.Error(w, "Readiness check failed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Status == health.StatusHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// detailedHealthHandler provides comprehensive health status.
func (s *Server) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	overallStatus, results := s.healthService.GetOverallStatus(r.Context())

	response := map[string]interface{}{
		"status":    string(overallStatus),
		"timestamp": time.Now(),
		"checks":    results,
		"summary": map[string]interface{}{
			"total_checks":     len(results),
			"healthy_checks":   countChecksWithStatus(results, health.StatusHealthy),
			"degraded_checks":  countChecksWithStatus(results, health.StatusDegraded),
			"unhealthy_checks": countChecksWithStatus(results, health.StatusUnhealthy),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	var statusCode int
	switch overallStatus {
	case health.StatusUnhealthy:
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusOK
	}

	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// countChecksWithStatus counts health checks with a specific status.
func countChecksWithStatus(results map[string]health.CheckResult, status health.Status) int {
	count := 0
	for _, result := range results {
		if result.Status == status {
			count++
		}
	}
	return count
}

// GetHandler returns the HTTP handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

// EnableTracing splices tp's span/metric/log middleware onto the front of
// the handler chain. Must be called before Start(); a no-op if tp is nil so
// callers can wire it unconditionally behind a config check.
func (s *Server) EnableTracing(tp *observability.TelemetryProvider) {
	if tp == nil {
		return
	}
	s.httpServer.Handler = tp.TelemetryMiddleware()(s.httpServer.Handler)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// fleetWebSocketHandler handles WebSocket connections for fleet status
// updates. It periodically sends the current FleetSnapshot to the
// connected client.
func (s *Server) fleetWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx := logging.NewContextWithCorrelation(r.Context())

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to upgrade connection to WebSocket",
			slog.String("error", err.Error()))
		return
	}
	defer func(ws *websocket.Conn) {
		if errOnClose := ws.Close(); errOnClose != nil {
			s.logger.ErrorContext(ctx, "failed to close WebSocket connection",
				slog.String("error", errOnClose.Error()))
		}
	}(ws)

	s.logger.InfoContext(ctx, "WebSocket connection established")

	if err := ws.WriteJSON(s.system.Snapshot()); err != nil {
		s.logger.ErrorContext(ctx, "failed to send initial fleet snapshot via WebSocket",
			slog.String("error", err.Error()))
		return
	}

	statusTicker := time.NewTicker(s.cfg.StatusUpdateInterval)
	defer statusTicker.Stop()

	pingTicker := time.NewTicker(s.cfg.WebSocketPingInterval)
	defer pingTicker.Stop()

	wsCtx := ctx

	if err := ws.SetReadDeadline(time.Now().Add(s.cfg.WebSocketReadTimeout)); err != nil {
		s.logger.ErrorContext(ctx, "failed to set read deadline",
			slog.String("error", err.Error()))
		return
	}
	ws.SetPongHandler(func(string) error {
		if err := ws.SetReadDeadline(time.Now().Add(s.cfg.WebSocketReadTimeout)); err != nil {
			s.logger.ErrorContext(ctx, "failed to set read deadline in pong handler",
				slog.String("error", err.Error()))
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, _, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.WarnContext(ctx, "WebSocket connection closed unexpectedly",
						slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			s.logger.InfoContext(ctx, "WebSocket connection closed by client")
			return

		case <-wsCtx.Done():
			s.logger.InfoContext(ctx, "WebSocket connection context cancelled")
			if err := ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Server shutdown"), time.Now().Add(s.cfg.WebSocketWriteTimeout)); err != nil {
				s.logger.ErrorContext(ctx, "failed to send close message",
					slog.String("error", err.Error()))
			}
			return

		case <-pingTicker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(s.cfg.WebSocketWriteTimeout)); err != nil {
				s.logger.ErrorContext(ctx, "failed to set write deadline for ping",
					slog.String("error", err.Error()))
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.ErrorContext(ctx, "failed to send ping message",
					slog.String("error", err.Error()))
				return
			}

		case <-statusTicker.C:
			updateCtx, updateCancel := context.WithTimeout(wsCtx, statusUpdateTimeout)

			snapshotCh := make(chan app.FleetSnapshot, 1)
			go func() {
				snapshotCh <- s.system.Snapshot()
			}()

			var snapshot app.FleetSnapshot
			select {
			case <-updateCtx.Done():
				s.logger.WarnContext(ctx, "status update timed out")
				updateCancel()
				continue
			case snapshot = <-snapshotCh:
			}
			updateCancel()

			if err := ws.SetWriteDeadline(time.Now().Add(s.cfg.WebSocketWriteTimeout)); err != nil {
				s.logger.ErrorContext(ctx, "failed to set write deadline for status update",
					slog.String("error", err.Error()))
				return
			}
			if err := ws.WriteJSON(snapshot); err != nil {
				s.logger.ErrorContext(ctx, "failed to send status update via WebSocket",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}
