package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// Recovery turns a handler panic into a 500 response
func Recovery(logger log.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.WithField("request_id", w.Header().Get(RequestIDHeader)).
						Errorf("PANIC: %v\n%s", err, debug.Stack())

					writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// writeError answers in the API envelope shape. The request id comes from the
// context, or from the response header for middleware outside RequestID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	body := map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	id := GetRequestID(r.Context())
	if id == "" {
		id = w.Header().Get(RequestIDHeader)
	}
	if id != "" {
		body["request_id"] = id
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
