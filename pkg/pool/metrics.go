package pool

import (
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	pkghttp "github.com/cecil-the-coder/drivepool/pkg/http"
)

// sketchAccuracy is the relative accuracy of the latency quantiles
const sketchAccuracy = 0.01

// providerMetrics tracks resolve and refresh outcomes for one provider.
// Resolves run concurrently under the fleet read lock, so it has its own mutex.
type providerMetrics struct {
	mu sync.Mutex

	requests        int64
	successes       int64
	notFound        int64
	failures        int64
	pauses          int64
	refreshes       int64
	refreshFailures int64

	lastSuccess time.Time
	lastFailure time.Time
	lastRefresh time.Time
	lastError   string

	latency *ddsketch.DDSketch
}

func newProviderMetrics() *providerMetrics {
	// only fails for an accuracy outside (0, 1)
	sketch, _ := ddsketch.NewDefaultDDSketch(sketchAccuracy)
	return &providerMetrics{latency: sketch}
}

func (m *providerMetrics) recordResolve(latency time.Duration, err error, notFound bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	if m.latency != nil {
		_ = m.latency.Add(float64(latency) / float64(time.Millisecond))
	}

	switch {
	case err == nil:
		m.successes++
		m.lastSuccess = time.Now()
	case notFound:
		m.notFound++
	default:
		m.failures++
		m.lastFailure = time.Now()
		m.lastError = err.Error()
	}
}

func (m *providerMetrics) recordPause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
}

func (m *providerMetrics) recordRefresh(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.refreshFailures++
		m.lastError = err.Error()
		return
	}
	m.refreshes++
	m.lastRefresh = time.Now()
}

// ProviderStats is a point-in-time view of one provider
type ProviderStats struct {
	ID        string     `json:"id"`
	Region    string     `json:"region"`
	Ready     bool       `json:"ready"`
	Available bool       `json:"available"`
	Excluded  bool       `json:"excluded,omitempty"`
	PausedTil *time.Time `json:"paused_until,omitempty"`

	Requests        int64 `json:"requests"`
	Successes       int64 `json:"successes"`
	NotFound        int64 `json:"not_found"`
	Failures        int64 `json:"failures"`
	Pauses          int64 `json:"pauses"`
	Refreshes       int64 `json:"refreshes"`
	RefreshFailures int64 `json:"refresh_failures"`

	LatencyP50Ms float64 `json:"latency_p50_ms"`
	LatencyP95Ms float64 `json:"latency_p95_ms"`

	LastSuccess time.Time `json:"last_success,omitempty"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	LastError   string    `json:"last_error,omitempty"`

	Transport *pkghttp.ClientMetrics `json:"transport,omitempty"`
}

// SuccessRate returns successes over requests, 0 when there were none
func (s ProviderStats) SuccessRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Requests)
}

func (m *providerMetrics) fill(s *ProviderStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.Requests = m.requests
	s.Successes = m.successes
	s.NotFound = m.notFound
	s.Failures = m.failures
	s.Pauses = m.pauses
	s.Refreshes = m.refreshes
	s.RefreshFailures = m.refreshFailures
	s.LastSuccess = m.lastSuccess
	s.LastFailure = m.lastFailure
	s.LastRefresh = m.lastRefresh
	s.LastError = m.lastError

	if m.latency != nil && !m.latency.IsEmpty() {
		if v, err := m.latency.GetValueAtQuantile(0.5); err == nil {
			s.LatencyP50Ms = v
		}
		if v, err := m.latency.GetValueAtQuantile(0.95); err == nil {
			s.LatencyP95Ms = v
		}
	}
}
