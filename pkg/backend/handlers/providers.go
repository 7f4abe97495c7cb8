package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cecil-the-coder/drivepool/pkg/backendtypes"
	"github.com/cecil-the-coder/drivepool/pkg/pool"
)

// ProviderHandler manages provider-related endpoints
type ProviderHandler struct {
	broker Broker
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(b Broker) *ProviderHandler {
	return &ProviderHandler{broker: b}
}

// ListProviders returns per-provider statistics plus cache and refresh state
// GET /api/providers
func (h *ProviderHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	SendSuccess(w, r, h.broker.Stats())
}

// GetProvider returns one provider's statistics
// GET /api/providers/{id}
func (h *ProviderHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	stats, ok := h.lookup(w, r, providerIDFromPath(r.URL.Path, ""))
	if !ok {
		return
	}
	SendSuccess(w, r, stats)
}

// PauseProvider takes a provider out of selection for the pause duration
// POST /api/providers/{id}/pause
func (h *ProviderHandler) PauseProvider(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id := providerIDFromPath(r.URL.Path, "/pause")
	if _, ok := h.lookup(w, r, id); !ok {
		return
	}
	h.broker.Pause(id)

	stats, _ := h.find(id)
	SendSuccess(w, r, stats)
}

// RefreshProviders queues an immediate token refresh cycle
// POST /api/providers/refresh
func (h *ProviderHandler) RefreshProviders(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	SendAccepted(w, r, backendtypes.RefreshResponse{Queued: h.broker.TriggerRefresh()})
}

func (h *ProviderHandler) lookup(w http.ResponseWriter, r *http.Request, id string) (pool.ProviderStats, bool) {
	if id == "" {
		SendError(w, r, backendtypes.CodeMissingParameter, "Provider id is required", http.StatusBadRequest)
		return pool.ProviderStats{}, false
	}
	stats, ok := h.find(id)
	if !ok {
		SendError(w, r, backendtypes.CodeProviderNotFound, fmt.Sprintf("Provider '%s' not found", id), http.StatusNotFound)
		return pool.ProviderStats{}, false
	}
	return stats, true
}

func (h *ProviderHandler) find(id string) (pool.ProviderStats, bool) {
	for _, p := range h.broker.Stats().Providers {
		if p.ID == id {
			return p, true
		}
	}
	return pool.ProviderStats{}, false
}

// providerIDFromPath extracts {id} from /api/providers/{id}{suffix}
func providerIDFromPath(path, suffix string) string {
	id := strings.TrimPrefix(path, "/api/providers/")
	id = strings.TrimSuffix(id, suffix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
