// Package http provides the HTTP client used to talk to drive accounts.
// It retries transport failures a bounded number of times, never retries on an
// HTTP status, applies default headers and keeps request metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultMaxAttempts is the number of tries made for a request whose transport fails.
const DefaultMaxAttempts = 3

// HTTPClient wraps an *http.Client with transport-level retry and metrics
type HTTPClient struct {
	client       *http.Client
	config       HTTPClientConfig
	requestCount int64
	successCount int64
	errorCount   int64
	retryCount   int64
	totalLatency int64 // Nanoseconds
	mu           sync.RWMutex
	statusCounts map[int]int64
	lastRequest  time.Time
}

// HTTPClientConfig configures the HTTP client
type HTTPClientConfig struct {
	// MaxAttempts is the total number of tries per request (default 3, 1 disables retry)
	MaxAttempts int               `json:"max_attempts,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	// Logger receives one entry per failed attempt; nil disables logging
	Logger log.FieldLogger `json:"-"`
}

// ClientMetrics tracks HTTP client performance
type ClientMetrics struct {
	TotalRequests   int64         `json:"total_requests"`
	SuccessfulReqs  int64         `json:"successful_requests"`
	FailedReqs      int64         `json:"failed_requests"`
	RetryCount      int64         `json:"retry_count"`
	AvgLatency      time.Duration `json:"avg_latency"`
	LastRequestTime time.Time     `json:"last_request_time"`
	StatusCounts    map[int]int64 `json:"status_counts"`
}

// NewHTTPClient wraps client. A nil client gets a zero http.Client.
func NewHTTPClient(client *http.Client, config HTTPClientConfig) *HTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	headers := make(map[string]string, len(config.Headers)+1)
	for k, v := range config.Headers {
		headers[k] = v
	}
	if config.UserAgent != "" {
		headers["User-Agent"] = config.UserAgent
	}
	config.Headers = headers

	return &HTTPClient{
		client:       client,
		config:       config,
		statusCounts: make(map[int]int64),
	}
}

// Do executes req, retrying only when the round trip itself fails.
// Any response, whatever its status, is returned to the caller as is.
func (c *HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	startTime := time.Now()
	atomic.AddInt64(&c.requestCount, 1)

	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	var resp *http.Response
	var err error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			atomic.AddInt64(&c.retryCount, 1)
		}

		var attemptReq *http.Request
		attemptReq, err = cloneRequest(ctx, req)
		if err != nil {
			break
		}

		resp, err = c.client.Do(attemptReq)
		if err == nil {
			break
		}

		if c.config.Logger != nil {
			c.config.Logger.WithFields(log.Fields{
				"attempt": fmt.Sprintf("%d/%d", attempt, c.config.MaxAttempts),
				"url":     req.URL.Redacted(),
			}).Errorf("request failed: %v", err)
		}

		// A canceled caller will not get a better answer from another try
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			break
		}
	}

	c.updateMetrics(resp, err, time.Since(startTime))
	return resp, err
}

// cloneRequest creates a fresh copy of the request for one attempt,
// rewinding the body when the request supports it
func cloneRequest(ctx context.Context, orig *http.Request) (*http.Request, error) {
	cloned := orig.Clone(ctx)
	if orig.Body != nil && orig.GetBody != nil {
		body, err := orig.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		cloned.Body = body
	}
	return cloned, nil
}

// updateMetrics updates client metrics after a request
func (c *HTTPClient) updateMetrics(resp *http.Response, err error, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastRequest = time.Now()
	if err != nil {
		c.errorCount++
	} else {
		c.successCount++
		if resp != nil {
			c.statusCounts[resp.StatusCode]++
		}
	}
	atomic.AddInt64(&c.totalLatency, latency.Nanoseconds())
}

// Add combines two snapshots, weighting the average latency by request count
func (m ClientMetrics) Add(o ClientMetrics) ClientMetrics {
	out := ClientMetrics{
		TotalRequests:   m.TotalRequests + o.TotalRequests,
		SuccessfulReqs:  m.SuccessfulReqs + o.SuccessfulReqs,
		FailedReqs:      m.FailedReqs + o.FailedReqs,
		RetryCount:      m.RetryCount + o.RetryCount,
		LastRequestTime: m.LastRequestTime,
		StatusCounts:    make(map[int]int64, len(m.StatusCounts)+len(o.StatusCounts)),
	}
	if o.LastRequestTime.After(out.LastRequestTime) {
		out.LastRequestTime = o.LastRequestTime
	}
	for code, n := range m.StatusCounts {
		out.StatusCounts[code] += n
	}
	for code, n := range o.StatusCounts {
		out.StatusCounts[code] += n
	}
	if out.TotalRequests > 0 {
		total := int64(m.AvgLatency)*m.TotalRequests + int64(o.AvgLatency)*o.TotalRequests
		out.AvgLatency = time.Duration(total / out.TotalRequests)
	}
	return out
}

// GetMetrics returns current client metrics
func (c *HTTPClient) GetMetrics() ClientMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metrics := ClientMetrics{
		TotalRequests:   atomic.LoadInt64(&c.requestCount),
		SuccessfulReqs:  c.successCount,
		FailedReqs:      c.errorCount,
		RetryCount:      atomic.LoadInt64(&c.retryCount),
		LastRequestTime: c.lastRequest,
		StatusCounts:    make(map[int]int64, len(c.statusCounts)),
	}
	for code, n := range c.statusCounts {
		metrics.StatusCounts[code] = n
	}
	if metrics.TotalRequests > 0 {
		metrics.AvgLatency = time.Duration(atomic.LoadInt64(&c.totalLatency) / metrics.TotalRequests)
	}
	return metrics
}
