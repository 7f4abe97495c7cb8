package types

import (
	"fmt"
	"time"
)

// Region selects the national cloud a provider account lives in.
type Region string

const (
	// RegionGlobal is the default Microsoft Graph deployment.
	RegionGlobal Region = "global"
	// RegionChina is the 21Vianet-operated Graph deployment.
	RegionChina Region = "china"
)

// Default transport timeouts, applied when a provider record leaves them at zero.
const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultWholeTimeout    = 15 * time.Second
	DefaultPoolIdleTimeout = 600 * time.Second
)

// ProviderConfig is the persisted identity of one backend drive account.
// RefreshToken rotates on every successful token exchange and must be written
// back out, everything else is static for the process lifetime.
type ProviderConfig struct {
	ID string `yaml:"id" json:"id"`

	// Timeouts in seconds, matching the on-disk format
	ConnectTimeout  int `yaml:"connect_timeout" json:"connect_timeout"`
	WholeTimeout    int `yaml:"whole_timeout" json:"whole_timeout"`
	PoolIdleTimeout int `yaml:"pool_idle_timeout" json:"pool_idle_timeout"`

	Region       Region `yaml:"region" json:"region"`
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"-"`
	DriveURL     string `yaml:"drive_url" json:"drive_url"`
	RedirectURL  string `yaml:"redirect_url" json:"redirect_url"`
	RefreshToken string `yaml:"refresh_token" json:"-"`

	// RequestsPerMinute caps Graph calls made through this account (0 = unlimited)
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty" json:"requests_per_minute,omitempty"`
}

// ConnectTimeoutDuration returns the dial timeout, falling back to DefaultConnectTimeout.
func (c ProviderConfig) ConnectTimeoutDuration() time.Duration {
	return secondsOr(c.ConnectTimeout, DefaultConnectTimeout)
}

// WholeTimeoutDuration returns the whole-request timeout, falling back to DefaultWholeTimeout.
func (c ProviderConfig) WholeTimeoutDuration() time.Duration {
	return secondsOr(c.WholeTimeout, DefaultWholeTimeout)
}

// PoolIdleTimeoutDuration returns the idle connection timeout, falling back to DefaultPoolIdleTimeout.
func (c ProviderConfig) PoolIdleTimeoutDuration() time.Duration {
	return secondsOr(c.PoolIdleTimeout, DefaultPoolIdleTimeout)
}

// Validate checks the fields a provider cannot work without.
func (c ProviderConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("provider %s: client_id is required", c.ID)
	}
	if c.DriveURL == "" {
		return fmt.Errorf("provider %s: drive_url is required", c.ID)
	}
	if c.ConnectTimeout < 0 || c.WholeTimeout < 0 || c.PoolIdleTimeout < 0 {
		return fmt.Errorf("provider %s: timeouts must not be negative", c.ID)
	}
	return nil
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// SelectionGroup partitions download requests into tiers. It is only a cache
// key dimension: provider selection is driven by the caller's candidate list.
type SelectionGroup string

const (
	GroupNormal SelectionGroup = "normal"
	GroupFast   SelectionGroup = "fast"
)

// ParseSelectionGroup converts a route parameter into a SelectionGroup.
func ParseSelectionGroup(s string) (SelectionGroup, error) {
	switch SelectionGroup(s) {
	case GroupNormal, GroupFast:
		return SelectionGroup(s), nil
	}
	return "", fmt.Errorf("unknown selection group %q", s)
}

// String implements fmt.Stringer
func (g SelectionGroup) String() string {
	return string(g)
}
