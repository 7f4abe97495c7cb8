package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cecil-the-coder/drivepool/pkg/backend/middleware"
	"github.com/cecil-the-coder/drivepool/pkg/backendtypes"
	"github.com/cecil-the-coder/drivepool/pkg/broker"
	"github.com/cecil-the-coder/drivepool/pkg/types"
)

// Broker is the part of *broker.Broker the handlers use
type Broker interface {
	DownloadURL(ctx context.Context, path string, group types.SelectionGroup, candidates []string) (string, error)
	Pause(id string)
	Stats() broker.Stats
	TriggerRefresh() bool
}

// SendSuccess sends a successful JSON response with data
func SendSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	send(w, http.StatusOK, backendtypes.APIResponse{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now(),
	})
}

// SendAccepted sends a 202 Accepted response
func SendAccepted(w http.ResponseWriter, r *http.Request, data interface{}) {
	send(w, http.StatusAccepted, backendtypes.APIResponse{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now(),
	})
}

// SendError sends an error JSON response with APIError
func SendError(w http.ResponseWriter, r *http.Request, code string, message string, statusCode int) {
	send(w, statusCode, backendtypes.APIResponse{
		Success: false,
		Error: &backendtypes.APIError{
			Code:    code,
			Message: message,
		},
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now(),
	})
}

func send(w http.ResponseWriter, statusCode int, resp backendtypes.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// requireMethod answers 405 and returns false unless r uses method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	SendError(w, r, backendtypes.CodeMethodNotAllowed, "Only "+method+" method is allowed", http.StatusMethodNotAllowed)
	return false
}
