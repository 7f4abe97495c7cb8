package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cecil-the-coder/drivepool/pkg/backend/middleware"
	"github.com/cecil-the-coder/drivepool/pkg/backendtypes"
	"github.com/cecil-the-coder/drivepool/pkg/types"
)

// URLHandler resolves download URLs
type URLHandler struct {
	broker Broker
	logger log.FieldLogger
}

// NewURLHandler creates a new URL handler
func NewURLHandler(b Broker, logger log.FieldLogger) *URLHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &URLHandler{broker: b, logger: logger}
}

// ResolveURL answers with a temporary download URL for a path
// GET /api/url?path=/a.zip&providers=p1,p2[&group=fast][&redirect=1]
//
// The group defaults to "normal". With redirect set the answer is a 302 to
// the URL instead of a JSON body.
func (h *URLHandler) ResolveURL(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	path := q.Get("path")
	if path == "" {
		SendError(w, r, backendtypes.CodeMissingParameter, "path is required", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	group := types.GroupNormal
	if raw := q.Get("group"); raw != "" {
		g, err := types.ParseSelectionGroup(raw)
		if err != nil {
			SendError(w, r, backendtypes.CodeInvalidParameter, err.Error(), http.StatusBadRequest)
			return
		}
		group = g
	}

	candidates := splitList(q.Get("providers"))
	if len(candidates) == 0 {
		SendError(w, r, backendtypes.CodeMissingParameter, "providers is required", http.StatusBadRequest)
		return
	}

	url, err := h.broker.DownloadURL(r.Context(), path, group, candidates)
	if err != nil {
		h.sendResolveError(w, r, path, err)
		return
	}

	switch q.Get("redirect") {
	case "1", "true":
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	SendSuccess(w, r, backendtypes.URLResponse{URL: url, Group: group.String(), Path: path})
}

// sendResolveError maps the failure kind to a status. Upstream diagnostics
// are logged, never returned.
func (h *URLHandler) sendResolveError(w http.ResponseWriter, r *http.Request, path string, err error) {
	entry := h.logger.WithField("request_id", middleware.GetRequestID(r.Context())).WithField("path", path)

	switch {
	case types.IsNotFound(err):
		SendError(w, r, backendtypes.CodeNotFound, "file not found", http.StatusNotFound)
	case types.IsUnavailable(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		entry.Warnf("no provider could resolve path: %v", err)
		SendError(w, r, backendtypes.CodeServiceUnavailable, "no provider available", http.StatusServiceUnavailable)
	default:
		entry.Errorf("resolve failed: %v", err)
		SendError(w, r, backendtypes.CodeInternal, "An internal error occurred", http.StatusInternalServerError)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
