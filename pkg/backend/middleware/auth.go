package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
)

// APIKeyHeader is accepted as an alternative to a bearer token
const APIKeyHeader = "X-API-Key"

// AuthConfig selects the key the broker API is guarded with
type AuthConfig struct {
	Enabled     bool
	APIPassword string
	// APIKeyEnv names an environment variable read once when Auth is built
	APIKeyEnv string
	// PublicPaths are served without a key. "/health" matches itself and
	// anything below "/health/", never "/healthz".
	PublicPaths []string
}

// key returns the configured key, the literal password taking precedence
func (c AuthConfig) key() string {
	if c.APIPassword != "" {
		return c.APIPassword
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}

func (c AuthConfig) isPublic(path string) bool {
	for _, p := range c.PublicPaths {
		p = strings.TrimSuffix(p, "/")
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// presentedKey reads "Authorization: Bearer <key>" or the X-API-Key header
func presentedKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
		return ""
	}
	return r.Header.Get(APIKeyHeader)
}

// Auth guards every non-public path with an API key. When enabled without a
// usable key, for example an unset environment variable, guarded paths are
// refused rather than opened.
func Auth(config AuthConfig) func(http.Handler) http.Handler {
	expected := []byte(config.key())

	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if len(expected) == 0 {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "No API key configured")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presentedKey(r)), expected) != 1 {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
