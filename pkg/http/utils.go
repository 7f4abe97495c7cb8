package http

import (
	"io"
	"net/http"
	"strings"
)

// MaxErrorBodyBytes bounds how much of an error response is kept for diagnostics
const MaxErrorBodyBytes = 2048

// ReadErrorBody reads at most MaxErrorBodyBytes of an error response, for logging
func ReadErrorBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}

// DrainAndClose discards what is left of the body so the connection can be reused
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck // Best effort drain
	_ = resp.Body.Close()                                         //nolint:errcheck // Best effort close
}

// IsSuccess reports whether status is in the 2xx range
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
