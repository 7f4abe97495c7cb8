package drive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	pkghttp "github.com/cecil-the-coder/drivepool/pkg/http"
	"github.com/cecil-the-coder/drivepool/pkg/types"
)

// initAttempts is how many times Initialize tries each of its two phases
const initAttempts = 3

// ErrNoAccessToken is returned before any token exchange has succeeded
var ErrNoAccessToken = errors.New("no access token")

// ClientOptions overrides construction defaults. The zero value is production.
type ClientOptions struct {
	// GraphAPI and OAuthAPI replace the region base URLs; both must end in "/"
	GraphAPI string
	OAuthAPI string
	// Logger defaults to the logrus standard logger
	Logger log.FieldLogger
}

// Client talks to exactly one drive account
type Client struct {
	graphAPI string
	oauthAPI string

	graph     *pkghttp.HTTPClient // bearer auth, transport retry
	graphOnce *pkghttp.HTTPClient // bearer auth, single attempt
	oauth     *pkghttp.HTTPClient // token endpoint, single attempt
	limiter   *rate.Limiter       // nil when unlimited
	logger    *log.Entry

	mu           sync.RWMutex
	config       types.ProviderConfig
	token        *oauth2.Token
	driveID      string
	lastRefresh  time.Time
	refreshCount int
}

// NewClient builds a client for cfg. No network call is made until Initialize.
func NewClient(cfg types.ProviderConfig, opts ClientOptions) *Client {
	graphAPI, oauthAPI := endpointsFor(cfg.Region)
	if opts.GraphAPI != "" {
		graphAPI = opts.GraphAPI
	}
	if opts.OAuthAPI != "" {
		oauthAPI = opts.OAuthAPI
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	c := &Client{
		graphAPI: graphAPI,
		oauthAPI: oauthAPI,
		config:   cfg,
		logger:   logger.WithField("provider", cfg.ID),
	}

	base := newTransport(cfg)
	authed := &http.Client{
		Transport: &oauth2.Transport{Source: tokenSource{c}, Base: base},
		Timeout:   cfg.WholeTimeoutDuration(),
	}
	plain := &http.Client{
		Transport: base,
		Timeout:   cfg.WholeTimeoutDuration(),
	}
	headers := map[string]string{"Accept": acceptHeader}

	c.graph = pkghttp.NewHTTPClient(authed, pkghttp.HTTPClientConfig{
		MaxAttempts: pkghttp.DefaultMaxAttempts,
		Headers:     headers,
		UserAgent:   userAgent,
		Logger:      c.logger,
	})
	c.graphOnce = pkghttp.NewHTTPClient(authed, pkghttp.HTTPClientConfig{
		MaxAttempts: 1,
		Headers:     headers,
		UserAgent:   userAgent,
	})
	c.oauth = pkghttp.NewHTTPClient(plain, pkghttp.HTTPClientConfig{
		MaxAttempts: 1,
		Headers:     headers,
		UserAgent:   userAgent,
	})

	if rpm := cfg.RequestsPerMinute; rpm > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
	}
	return c
}

// newTransport applies the provider's connect and idle timeouts. Proxies from
// the environment are ignored.
func newTransport(cfg types.ProviderConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeoutDuration(),
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:               nil,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeoutDuration(),
		IdleConnTimeout:     cfg.PoolIdleTimeoutDuration(),
		MaxIdleConnsPerHost: 16,
		ForceAttemptHTTP2:   true,
	}
}

// tokenSource feeds the client's current access token to oauth2.Transport
type tokenSource struct {
	c *Client
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	s.c.mu.RLock()
	defer s.c.mu.RUnlock()
	if s.c.token == nil || s.c.token.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	t := *s.c.token
	return &t, nil
}

// ID returns the provider id
func (c *Client) ID() string {
	return c.config.ID
}

// Config returns a copy of the current provider record, including the most
// recently rotated refresh token
func (c *Client) Config() types.ProviderConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Ready reports whether the drive root id has been resolved
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.driveID != ""
}

// DriveID returns the resolved drive root id, empty before Initialize succeeds
func (c *Client) DriveID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.driveID
}

// RefreshStats returns when the tokens last rotated and how often they have
func (c *Client) RefreshStats() (last time.Time, count int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh, c.refreshCount
}

// TransportMetrics sums the HTTP metrics of the Graph and token endpoint
// clients
func (c *Client) TransportMetrics() pkghttp.ClientMetrics {
	return c.graph.GetMetrics().Add(c.graphOnce.GetMetrics()).Add(c.oauth.GetMetrics())
}

// Initialize obtains a first access token and resolves the drive root id.
// Token failures are logged and tolerated: a later refresh can repair them.
// A root id that cannot be resolved is returned as types.ErrRootUnresolved.
func (c *Client) Initialize(ctx context.Context) error {
	for attempt := 1; attempt <= initAttempts; attempt++ {
		err := c.RefreshToken(ctx)
		if err == nil {
			break
		}
		c.logger.WithField("attempt", fmt.Sprintf("%d/%d", attempt, initAttempts)).
			Errorf("initial token refresh failed: %v", err)
	}
	return c.ResolveRoot(ctx)
}

// ResolveRoot looks up the drive root id, trying up to three times
func (c *Client) ResolveRoot(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= initAttempts; attempt++ {
		id, err := c.fetchRootID(ctx)
		if err == nil {
			c.mu.Lock()
			c.driveID = id
			c.mu.Unlock()
			c.logger.Info("drive root id resolved")
			return nil
		}
		lastErr = err
		c.logger.WithField("attempt", fmt.Sprintf("%d/%d", attempt, initAttempts)).
			Errorf("drive root id lookup failed: %v", err)
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: provider %s: %w", types.ErrRootUnresolved, c.config.ID, lastErr)
}

func (c *Client) fetchRootID(ctx context.Context) (string, error) {
	c.mu.RLock()
	driveURL := strings.TrimPrefix(c.config.DriveURL, "/")
	c.mu.RUnlock()

	var out struct {
		ID string `json:"id"`
	}
	if err := c.getJSON(ctx, c.graphOnce, c.graphAPI+driveURL+"?$select=id", "drive_root", &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", types.NewDecodeError(c.config.ID, errors.New("response has no id")).WithOperation("drive_root")
	}
	return out.ID, nil
}

// DownloadURL resolves path, relative to the drive root, into a temporary
// download URL. HTTP 400 is reported as types.ErrCodeNotFound.
func (c *Client) DownloadURL(ctx context.Context, path string) (string, error) {
	c.mu.RLock()
	driveID := c.driveID
	hasToken := c.token != nil && c.token.AccessToken != ""
	c.mu.RUnlock()

	if !hasToken {
		return "", types.NewProviderError(c.config.ID, types.ErrCodeAuthentication, "no access token yet").
			WithOperation("download_url").WithOriginalErr(ErrNoAccessToken)
	}
	if driveID == "" {
		return "", types.NewProviderError(c.config.ID, types.ErrCodeUnavailable, "drive root not resolved").
			WithOperation("download_url").WithOriginalErr(types.ErrRootUnresolved)
	}

	var out struct {
		DownloadURL string `json:"@microsoft.graph.downloadUrl"`
	}
	if err := c.getJSON(ctx, c.graph, c.itemURL(driveID, path), "download_url", &out); err != nil {
		if types.IsNotFound(err) {
			c.logger.WithField("path", path).Warnf("file not found: %v", err)
		}
		return "", err
	}
	if out.DownloadURL == "" {
		return "", types.NewDecodeError(c.config.ID, errors.New("response has no download url")).WithOperation("download_url")
	}

	c.logger.WithField("path", path).Info("download url resolved")
	return out.DownloadURL, nil
}

// itemURL addresses path under the drive root, e.g.
// {graph}drives/{id}/root:/dir/a.zip?$select=content.downloadUrl
func (c *Client) itemURL(driveID, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := &url.URL{Path: "drives/" + driveID + "/root:" + path}
	return c.graphAPI + u.EscapedPath() + "?$select=content.downloadUrl"
}

// getJSON issues an authenticated GET and decodes a 2xx body into out
func (c *Client) getJSON(ctx context.Context, client *pkghttp.HTTPClient, rawURL, operation string, out interface{}) error {
	id := c.config.ID
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return types.NewTransportError(id, err).WithOperation(operation)
		}
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return types.NewTransportError(id, err).WithOperation(operation)
	}
	req.Header.Set("client-request-id", requestID)

	resp, err := client.Do(ctx, req)
	if err != nil {
		return types.NewTransportError(id, err).WithOperation(operation).WithRequestID(requestID)
	}
	defer pkghttp.DrainAndClose(resp)

	if !pkghttp.IsSuccess(resp.StatusCode) {
		body := pkghttp.ReadErrorBody(resp)
		if types.ClassifyHTTPError(resp.StatusCode) == types.ErrCodeNotFound {
			return types.NewNotFoundError(id, "item not found: "+body).
				WithOperation(operation).WithRequestID(requestID)
		}
		return types.NewUnavailableError(id, resp.StatusCode, "unexpected status: "+body).
			WithOperation(operation).WithRequestID(requestID)
	}

	if err := decodeJSON(resp, out); err != nil {
		return types.NewDecodeError(id, err).WithOperation(operation).WithRequestID(requestID)
	}
	return nil
}
