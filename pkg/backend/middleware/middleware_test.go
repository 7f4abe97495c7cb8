package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/time/rate"
)

// Helper function to create a simple test handler
func testHandler(statusCode int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
		w.Write([]byte(body))
	})
}

// Helper function to create a panic handler
func panicHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	handler := RequestID(testHandler(http.StatusOK, "OK"))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Fatal("Expected X-Request-ID header to be set")
	}
	if len(requestID) != 32 {
		t.Errorf("Expected request ID length 32, got %d", len(requestID))
	}
}

func TestRequestID_UsesExistingHeader(t *testing.T) {
	expectedID := "existing-request-id-12345"
	var capturedID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", expectedID)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != expectedID {
		t.Errorf("Expected request ID %s, got %s", expectedID, got)
	}
	if capturedID != expectedID {
		t.Errorf("Expected context request ID %s, got %s", expectedID, capturedID)
	}
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("Expected empty string for empty context, got %s", id)
	}
}

func TestGetRequestID_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey, 12345)
	if id := GetRequestID(ctx); id != "" {
		t.Errorf("Expected empty string for wrong type, got %s", id)
	}
}

func TestLogging_RecordsRequest(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := RequestID(Logging(logger)(testHandler(http.StatusTeapot, "short and stout")))

	req := httptest.NewRequest(http.MethodGet, "/api/url", nil)
	req.Header.Set("X-Request-ID", "req-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("Expected a log entry")
	}
	if entry.Data["status"] != http.StatusTeapot {
		t.Errorf("Expected status %d, got %v", http.StatusTeapot, entry.Data["status"])
	}
	if entry.Data["size"] != len("short and stout") {
		t.Errorf("Expected size %d, got %v", len("short and stout"), entry.Data["size"])
	}
	if entry.Data["request_id"] != "req-7" {
		t.Errorf("Expected request_id req-7, got %v", entry.Data["request_id"])
	}
	if entry.Data["path"] != "/api/url" {
		t.Errorf("Expected path /api/url, got %v", entry.Data["path"])
	}
	if entry.Level != logrus.InfoLevel {
		t.Errorf("Expected info level, got %s", entry.Level)
	}
}

func TestLogging_ServerErrorsWarn(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := Logging(logger)(testHandler(http.StatusServiceUnavailable, ""))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.WarnLevel {
		t.Errorf("Expected a warn entry, got %v", entry)
	}
}

func TestRecovery_HandlesPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := Recovery(logger)(panicHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["success"] != false {
		t.Error("Expected success to be false")
	}
	errObj := body["error"].(map[string]interface{})
	if errObj["code"] != "INTERNAL_ERROR" {
		t.Errorf("Expected error code INTERNAL_ERROR, got %v", errObj["code"])
	}

	entry := hook.LastEntry()
	if entry == nil || !strings.Contains(entry.Message, "test panic") {
		t.Errorf("Expected panic to be logged, got %v", entry)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	logger, _ := test.NewNullLogger()
	handler := Recovery(logger)(testHandler(http.StatusOK, "OK"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("Expected 200 OK, got %d %q", w.Code, w.Body.String())
	}
}

func TestAuth(t *testing.T) {
	config := AuthConfig{
		Enabled:     true,
		APIPassword: "s3cret",
		PublicPaths: []string{"/health", "/api/url/"},
	}
	handler := Auth(config)(testHandler(http.StatusOK, "OK"))

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"PublicPath", "/health", nil, http.StatusOK},
		{"PublicSubtree", "/health/live", nil, http.StatusOK},
		{"PublicTrailingSlash", "/api/url", nil, http.StatusOK},
		{"LookalikePath", "/healthz", nil, http.StatusUnauthorized},
		{"MissingKey", "/api/providers", nil, http.StatusUnauthorized},
		{"WrongKey", "/api/providers", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"NotBearer", "/api/providers", map[string]string{"Authorization": "Basic s3cret"}, http.StatusUnauthorized},
		{"ValidBearer", "/api/providers", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"ValidHeader", "/api/providers", map[string]string{APIKeyHeader: "s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestAuth_KeyFromEnv(t *testing.T) {
	t.Setenv("DRIVEPOOL_TEST_KEY", "from-env")
	handler := Auth(AuthConfig{Enabled: true, APIKeyEnv: "DRIVEPOOL_TEST_KEY"})(testHandler(http.StatusOK, "OK"))

	req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	req.Header.Set("Authorization", "Bearer from-env")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestAuth_Disabled(t *testing.T) {
	handler := Auth(AuthConfig{Enabled: false, APIPassword: "x"})(testHandler(http.StatusOK, "OK"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/providers", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestAuth_EnabledWithoutKeyRefuses(t *testing.T) {
	t.Setenv("DRIVEPOOL_UNSET_KEY", "")
	config := AuthConfig{Enabled: true, APIKeyEnv: "DRIVEPOOL_UNSET_KEY", PublicPaths: []string{"/health"}}
	handler := RequestID(Auth(config)(testHandler(http.StatusOK, "OK")))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/providers", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["request_id"] != w.Header().Get(RequestIDHeader) {
		t.Errorf("Expected request_id %q in body, got %v", w.Header().Get(RequestIDHeader), body["request_id"])
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected public path to pass, got %d", w.Code)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 2)
	handler := rl.Limit(testHandler(http.StatusOK, "OK"))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/url", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("10.0.0.1:1234"); code != http.StatusOK {
		t.Errorf("Expected first request to pass, got %d", code)
	}
	if code := do("10.0.0.1:5678"); code != http.StatusOK {
		t.Errorf("Expected burst request to pass, got %d", code)
	}
	if code := do("10.0.0.1:9999"); code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 over budget, got %d", code)
	}
	if code := do("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("Expected another client to pass, got %d", code)
	}
	if n := rl.Visitors(); n != 2 {
		t.Errorf("Expected 2 visitors, got %d", n)
	}
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(rate.Limit(10), 10)
	rl.now = func() time.Time { return now }

	rl.getVisitor("10.0.0.1")
	now = now.Add(visitorIdle + time.Second)
	rl.getVisitor("10.0.0.2")

	if n := rl.Visitors(); n != 1 {
		t.Errorf("Expected idle visitor to be evicted, got %d visitors", n)
	}
}
