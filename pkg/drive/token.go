package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	pkghttp "github.com/cecil-the-coder/drivepool/pkg/http"
	"github.com/cecil-the-coder/drivepool/pkg/types"
)

// tokenResponse is the subset of the token endpoint answer we use
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshToken exchanges the stored refresh token for a new token pair.
// On success both tokens are replaced together; on any failure neither changes.
// The redirect_uri is sent along with the grant, which golang.org/x/oauth2's
// refresh flow does not do, so the exchange is issued by hand.
func (c *Client) RefreshToken(ctx context.Context) error {
	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()

	form := url.Values{}
	form.Set("client_id", cfg.ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cfg.RefreshToken)
	form.Set("redirect_uri", cfg.RedirectURL)
	form.Set("client_secret", cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthAPI+"token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.oauth.Do(ctx, req)
	if err != nil {
		return types.NewTransportError(cfg.ID, err).WithOperation("refresh_token")
	}
	defer pkghttp.DrainAndClose(resp)

	if !pkghttp.IsSuccess(resp.StatusCode) {
		return types.NewProviderError(cfg.ID, types.ErrCodeAuthentication,
			"token endpoint rejected refresh: "+pkghttp.ReadErrorBody(resp)).
			WithStatusCode(resp.StatusCode).WithOperation("refresh_token")
	}

	var tr tokenResponse
	if err := decodeJSON(resp, &tr); err != nil {
		return types.NewDecodeError(cfg.ID, err).WithOperation("refresh_token")
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return types.NewDecodeError(cfg.ID, errors.New("token response is missing a token")).WithOperation("refresh_token")
	}

	now := time.Now()
	token := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	c.mu.Lock()
	c.token = token
	c.config.RefreshToken = tr.RefreshToken
	c.lastRefresh = now
	c.refreshCount++
	c.mu.Unlock()

	c.logger.Info("token refreshed")
	return nil
}

// TokenExpiry returns when the current access token expires, zero if unknown
func (c *Client) TokenExpiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return time.Time{}
	}
	return c.token.Expiry
}

func decodeJSON(resp *http.Response, out interface{}) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
