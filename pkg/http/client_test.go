package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyTransport fails the first `failures` round trips, then delegates
type flakyTransport struct {
	failures int32
	calls    int32
	bodies   []string
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		f.bodies = append(f.bodies, string(b))
	}
	if n <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return f.next.RoundTrip(req)
}

func TestHTTPClient_RetriesTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Run("SucceedsWithinAttempts", func(t *testing.T) {
		transport := &flakyTransport{failures: 2, next: http.DefaultTransport}
		client := NewHTTPClient(&http.Client{Transport: transport}, HTTPClientConfig{})

		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		defer DrainAndClose(resp)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), atomic.LoadInt32(&transport.calls))
		assert.Equal(t, int64(2), client.GetMetrics().RetryCount)
	})

	t.Run("GivesUpAfterMaxAttempts", func(t *testing.T) {
		transport := &flakyTransport{failures: 10, next: http.DefaultTransport}
		client := NewHTTPClient(&http.Client{Transport: transport}, HTTPClientConfig{})

		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		_, err = client.Do(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, int32(DefaultMaxAttempts), atomic.LoadInt32(&transport.calls))
		assert.Equal(t, int64(1), client.GetMetrics().FailedReqs)
	})

	t.Run("SingleAttempt", func(t *testing.T) {
		transport := &flakyTransport{failures: 1, next: http.DefaultTransport}
		client := NewHTTPClient(&http.Client{Transport: transport}, HTTPClientConfig{MaxAttempts: 1})

		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		_, err = client.Do(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&transport.calls))
	})
}

func TestHTTPClient_DoesNotRetryStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := NewHTTPClient(nil, HTTPClientConfig{})
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer DrainAndClose(resp)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "boom", ReadErrorBody(resp))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), client.GetMetrics().StatusCounts[http.StatusInternalServerError])
}

func TestHTTPClient_RewindsBodyAndSetsHeaders(t *testing.T) {
	var gotAgent, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := &flakyTransport{failures: 1, next: http.DefaultTransport}
	client := NewHTTPClient(&http.Client{Transport: transport}, HTTPClientConfig{
		UserAgent: "drivepool-test",
		Headers:   map[string]string{"Accept": "application/json"},
	})

	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("grant_type=refresh_token"))
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	DrainAndClose(resp)

	require.Len(t, transport.bodies, 2)
	assert.Equal(t, transport.bodies[0], transport.bodies[1])
	assert.Equal(t, "drivepool-test", gotAgent)
	assert.Equal(t, "application/json", gotAccept)
}

// roundTripFunc adapts a function to http.RoundTripper
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestHTTPClient_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return nil, errors.New("connection reset by peer")
	})
	client := NewHTTPClient(&http.Client{Transport: transport}, HTTPClientConfig{MaxAttempts: 5})

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	_, err = client.Do(ctx, req)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), client.GetMetrics().FailedReqs)
}

func TestClientMetrics_Add(t *testing.T) {
	early := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := ClientMetrics{
		TotalRequests: 1, SuccessfulReqs: 1, AvgLatency: 10 * time.Millisecond,
		LastRequestTime: early, StatusCounts: map[int]int64{200: 1},
	}
	b := ClientMetrics{
		TotalRequests: 3, SuccessfulReqs: 2, FailedReqs: 1, RetryCount: 2, AvgLatency: 30 * time.Millisecond,
		LastRequestTime: early.Add(time.Minute), StatusCounts: map[int]int64{200: 1, 500: 1},
	}

	sum := a.Add(b)
	assert.Equal(t, int64(4), sum.TotalRequests)
	assert.Equal(t, int64(3), sum.SuccessfulReqs)
	assert.Equal(t, int64(1), sum.FailedReqs)
	assert.Equal(t, int64(2), sum.RetryCount)
	assert.Equal(t, 25*time.Millisecond, sum.AvgLatency)
	assert.Equal(t, early.Add(time.Minute), sum.LastRequestTime)
	assert.Equal(t, map[int]int64{200: 2, 500: 1}, sum.StatusCounts)

	assert.Equal(t, time.Duration(0), ClientMetrics{}.Add(ClientMetrics{}).AvgLatency)
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(200))
	assert.True(t, IsSuccess(204))
	assert.False(t, IsSuccess(400))
	assert.False(t, IsSuccess(500))
}
