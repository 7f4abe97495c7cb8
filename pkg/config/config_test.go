package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cecil-the-coder/drivepool/pkg/types"
)

const sampleConfig = `# drivepool configuration
server:
  host: 127.0.0.1
  port: 9090
  read_timeout: 5s

logging:
  level: debug
  format: json

rate_limit:
  requests_per_second: 20
  burst: 40

pool:
  pause_duration: 2m
  exclude_unrooted_providers: true

# accounts, tried in the order callers list them
providers:
  - id: od1
    connect_timeout: 5
    whole_timeout: 20
    pool_idle_timeout: 300
    region: china
    client_id: client-1
    client_secret: secret-1
    drive_url: me/drive
    redirect_url: http://localhost/callback
    refresh_token: rt-initial
  - id: od2
    client_id: client-2
    client_secret: secret-2
    drive_url: users/someone/drive
    redirect_url: http://localhost/callback
    refresh_token: rt-other
    requests_per_minute: 600
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drivepool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Address())
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 20.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 40, cfg.RateLimit.Burst)

	assert.Equal(t, 2*time.Minute, cfg.Pool.PauseDuration)
	assert.Equal(t, 50*time.Minute, cfg.Pool.RefreshEvery)
	assert.Equal(t, time.Minute, cfg.Pool.RetryInterval)
	assert.Equal(t, 10, cfg.Pool.MaxRefreshPasses)
	assert.Equal(t, 110*time.Minute, cfg.Pool.CacheFreshness)
	assert.True(t, cfg.Pool.ExcludeUnrooted)

	require.Len(t, cfg.Providers, 2)
	od1 := cfg.Providers[0]
	assert.Equal(t, "od1", od1.ID)
	assert.Equal(t, types.RegionChina, od1.Region)
	assert.Equal(t, 20*time.Second, od1.WholeTimeoutDuration())
	assert.Equal(t, "rt-initial", od1.RefreshToken)

	od2 := cfg.Providers[1]
	assert.Equal(t, types.RegionGlobal, od2.Region)
	assert.Equal(t, types.DefaultConnectTimeout, od2.ConnectTimeoutDuration())
	assert.Equal(t, 600, od2.RequestsPerMinute)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
providers:
  - id: p1
    client_id: c
    drive_url: me/drive
`))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "dev", cfg.Server.Version)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 3*time.Minute, cfg.Pool.PauseDuration)
	assert.Zero(t, cfg.RateLimit.RequestsPerSecond)
	assert.False(t, cfg.Auth.Enabled)
	assert.Nil(t, cfg.Auth.PublicPaths)
}

func TestParse_AuthDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
auth:
  enabled: true
  api_key_env: DRIVEPOOL_KEY
providers:
  - id: p1
    client_id: c
    drive_url: me/drive
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"/health", "/status", "/version"}, cfg.Auth.PublicPaths)
	assert.Equal(t, "DRIVEPOOL_KEY", cfg.Auth.APIKeyEnv)
}

func TestLoggingConfig_Apply(t *testing.T) {
	logger := logrus.New()

	require.NoError(t, LoggingConfig{Level: "debug", Format: "json"}.Apply(logger))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	require.NoError(t, LoggingConfig{Level: "warn", Format: "text"}.Apply(logger))
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	assert.Error(t, LoggingConfig{Level: "chatty"}.Apply(logger))
}

func TestParse_Invalid(t *testing.T) {
	provider := "  - id: p1\n    client_id: c\n    drive_url: me/drive\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"Empty", "", "at least one provider"},
		{"NoProviders", "providers: []\n", "at least one provider"},
		{"DuplicateID", "providers:\n" + provider + provider, "duplicate provider id"},
		{"MissingClientID", "providers:\n  - id: p1\n    drive_url: me/drive\n", "client_id is required"},
		{"UnknownRegion", "providers:\n" + provider + "    region: mars\n", "unknown region"},
		{"UnknownField", "providers:\n" + provider + "    colour: blue\n", "failed to parse YAML"},
		{"BadLevel", "logging:\n  level: chatty\nproviders:\n" + provider, "logging.level"},
		{"BadFormat", "logging:\n  format: xml\nproviders:\n" + provider, "logging.format"},
		{"BadDuration", "pool:\n  pause_duration: soon\nproviders:\n" + provider, "failed to parse YAML"},
		{"ConflictingUnrooted", "pool:\n  exclude_unrooted_providers: true\n  fail_on_unrooted_provider: true\nproviders:\n" + provider, "mutually exclusive"},
		{"AuthWithoutKey", "auth:\n  enabled: true\nproviders:\n" + provider, "api_password or api_key_env"},
		{"NegativePasses", "pool:\n  max_refresh_passes: -1\nproviders:\n" + provider, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
