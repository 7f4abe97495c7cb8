package handlers

import (
	"net/http"
	"time"

	"github.com/cecil-the-coder/drivepool/pkg/backend/middleware"
	"github.com/cecil-the-coder/drivepool/pkg/backendtypes"
)

type HealthHandler struct {
	broker    Broker
	version   string
	startTime time.Time
}

func NewHealthHandler(b Broker, version string) *HealthHandler {
	return &HealthHandler{
		broker:    b,
		version:   version,
		startTime: time.Now(),
	}
}

// Status returns simple liveness status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, r, map[string]string{"status": "ok"})
}

// Health reports how much of the fleet can serve requests. It answers 503
// when no provider is available.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.broker.Stats()

	response := backendtypes.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Providers: len(stats.Providers),
	}
	for _, p := range stats.Providers {
		if p.Available {
			response.Available++
		}
		if p.Ready {
			response.Ready++
		}
	}

	switch {
	case response.Available == 0:
		response.Status = "unavailable"
		send(w, http.StatusServiceUnavailable, backendtypes.APIResponse{
			Success:   false,
			Data:      response,
			Error:     &backendtypes.APIError{Code: backendtypes.CodeServiceUnavailable, Message: "no provider available"},
			RequestID: middleware.GetRequestID(r.Context()),
			Timestamp: time.Now(),
		})
		return
	case response.Available < response.Providers || response.Ready < response.Providers:
		response.Status = "degraded"
	}
	SendSuccess(w, r, response)
}

// Version returns version information
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, r, map[string]string{
		"version": h.version,
	})
}
