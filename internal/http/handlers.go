package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/warehouse-wcs/fleet-controller/internal/app"
	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/config"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/health"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/logging"
)

// V1Handlers holds the fleet-facing HTTP handlers (§6).
type V1Handlers struct {
	system *app.System
	cfg    *config.Config
	logger *slog.Logger
}

// NewV1Handlers creates a new V1Handlers instance.
func NewV1Handlers(system *app.System, cfg *config.Config, logger *slog.Logger) *V1Handlers {
	return &V1Handlers{system: system, cfg: cfg, logger: logger}
}

// AMRPathRequest is the request body for POST /amr/path.
type AMRPathRequest struct {
	AMRID string `json:"amr_id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// AMRPathHandler implements POST /amr/path: build a path for an AMR and
// hand it to the async executor (§6).
func (h *V1Handlers) AMRPathHandler(w http.ResponseWriter, r *http.Request) {
	requestID := logging.GetRequestID(r.Context())
	rw := NewResponseWriter(w, h.logger, requestID)

	if r.Method != http.MethodPost {
		rw.WriteError(http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed,
			"Method not allowed", "Only POST method is supported")
		return
	}

	var body AMRPathRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to decode amr path request",
			slog.String("error", err.Error()), slog.String("request_id", requestID))
		rw.WriteError(http.StatusBadRequest, ErrorCodeInvalidJSON,
			"Invalid JSON", "Request body contains invalid JSON")
		return
	}

	result, err := h.system.EnqueueAMRPath(r.Context(), body.AMRID, body.Start, body.End)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "amr path request failed",
			slog.String("amr_id", body.AMRID),
			slog.String("error", err.Error()),
			slog.String("request_id", requestID))
		rw.WriteDomainError(err)
		return
	}

	h.logger.InfoContext(r.Context(), "amr task enqueued",
		slog.String("amr_id", body.AMRID),
		slog.String("task_id", result.TaskID),
		slog.String("request_id", requestID),
		slog.String("component", constants.ComponentHTTPHandler))

	rw.WriteJSON(http.StatusOK, result)
}

// AMRDataHandler implements GET /amr/data/:id: read cached AMR telemetry (§6).
func (h *V1Handlers) AMRDataHandler(w http.ResponseWriter, r *http.Request) {
	requestID := logging.GetRequestID(r.Context())
	rw := NewResponseWriter(w, h.logger, requestID)

	if r.Method != http.MethodGet {
		rw.WriteError(http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed,
			"Method not allowed", "Only GET method is supported")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/amr/data/")
	if id == "" {
		rw.WriteError(http.StatusBadRequest, ErrorCodeValidation, "Validation Failed", "amr id is required")
		return
	}

	state, ok := h.system.AMRState(id)
	if !ok {
		rw.WriteError(http.StatusNotFound, ErrorCodeNotFound, "Not found", "unknown amr id "+id)
		return
	}
	rw.WriteJSON(http.StatusOK, state)
}

// LifterRequestTaskBody is the request body for POST /lifter/request-task.
type LifterRequestTaskBody struct {
	Vehicle     string `json:"vehicle"`
	TargetFloor string `json:"target_floor"`
	Priority    int64  `json:"priority,omitempty"`
}

// LifterRequestTaskHandler implements POST /lifter/request-task (§6).
func (h *V1Handlers) LifterRequestTaskHandler(w http.ResponseWriter, r *http.Request) {
	requestID := logging.GetRequestID(r.Context())
	rw := NewResponseWriter(w, h.logger, requestID)

	if r.Method != http.MethodPost {
		rw.WriteError(http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed,
			"Method not allowed", "Only POST method is supported")
		return
	}

	var body LifterRequestTaskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rw.WriteError(http.StatusBadRequest, ErrorCodeInvalidJSON,
			"Invalid JSON", "Request body contains invalid JSON")
		return
	}

	result, err := h.system.RequestLifterTask(body.Vehicle, body.TargetFloor, body.Priority)
	if err != nil {
		rw.WriteDomainError(err)
		return
	}

	h.logger.InfoContext(r.Context(), "lifter task requested",
		slog.String("vehicle", body.Vehicle),
		slog.String("task_id", result.TaskID),
		slog.String("request_id", requestID),
		slog.String("component", constants.ComponentHTTPHandler))

	rw.WriteJSON(http.StatusOK, result)
}

// LifterCompleteTaskHandler implements POST /lifter/complete-task/:id (§6).
func (h *V1Handlers) LifterCompleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	requestID := logging.GetRequestID(r.Context())
	rw := NewResponseWriter(w, h.logger, requestID)

	if r.Method != http.MethodPost {
		rw.WriteError(http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed,
			"Method not allowed", "Only POST method is supported")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/lifter/complete-task/")
	if id == "" {
		rw.WriteError(http.StatusBadRequest, ErrorCodeValidation, "Validation Failed", "task id is required")
		return
	}

	completed, next, err := h.system.CompleteLifterTask(id)
	if err != nil {
		rw.WriteDomainError(err)
		return
	}

	rw.WriteJSON(http.StatusOK, map[string]any{
		"completed": completed,
		"next":      next,
	})
}

// HealthHandler handles GET /health (§6 and ambient readiness checks).
func (h *V1Handlers) HealthHandler(healthService *health.HealthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := logging.GetRequestID(r.Context())
		rw := NewResponseWriter(w, h.logger, requestID)

		if r.Method != http.MethodGet {
			rw.WriteError(http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed,
				"Method not allowed", "Only GET method is supported")
			return
		}

		status, results := healthService.GetOverallStatus(r.Context())
		statusCode := http.StatusOK
		if status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		rw.WriteJSON(statusCode, map[string]any{
			"status": status,
			"checks": results,
		})
	}
}

// MetricsHandler implements GET /v1/metrics: the fleet snapshot used by
// operator tooling, distinct from the Prometheus /metrics series.
func (h *V1Handlers) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	requestID := logging.GetRequestID(r.Context())
	rw := NewResponseWriter(w, h.logger, requestID)

	if r.Method != http.MethodGet {
		rw.WriteError(http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed,
			"Method not allowed", "Only GET method is supported")
		return
	}
	rw.WriteJSON(http.StatusOK, h.system.Snapshot())
}

// APIInfoResponse describes available API endpoints.
type APIInfoResponse struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Endpoints   map[string]string `json:"endpoints"`
}

// APIInfoHandler implements GET /v1: a directory of available routes.
func (h *V1Handlers) APIInfoHandler(w http.ResponseWriter, r *http.Request) {
	requestID := logging.GetRequestID(r.Context())
	rw := NewResponseWriter(w, h.logger, requestID)

	if r.Method != http.MethodGet {
		rw.WriteError(http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed,
			"Method not allowed", "Only GET method is supported")
		return
	}

	response := APIInfoResponse{
		Name:        "Warehouse Fleet Control System API",
		Version:     "v1",
		Description: "RESTful API for coordinating AMR and lifter fleet movement",
		Endpoints: map[string]string{
			"POST /amr/path":                  "Build and enqueue a path for an AMR",
			"GET /amr/data/:id":                "Read cached telemetry for an AMR",
			"POST /lifter/request-task":        "Request a lifter trip to a floor",
			"POST /lifter/complete-task/:id":   "Mark a lifter task complete",
			"GET /health":                      "Check system health status",
			"GET /v1/metrics":                  "Get fleet snapshot",
			"GET /v1":                          "Get API information",
			"GET /metrics":                     "Prometheus metrics endpoint",
			"WebSocket /ws/fleet":              "Real-time fleet status updates",
		},
	}

	rw.WriteJSON(http.StatusOK, response)
}
