package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  readTimeout: 5s
auction:
  bidIncrementPct: 0.10
reconciler:
  enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, 0.10, cfg.Auction.BidIncrementPct)
	assert.False(t, cfg.Reconciler.Enabled)
	// Untouched sections keep defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 100, cfg.Pagination.MaxLimit)
}

func TestLoadRejectsInvalidIncrement(t *testing.T) {
	path := writeConfig(t, `
auction:
  bidIncrementPct: 1.5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bidIncrementPct")
}

func TestLoadRejectsInvertedDurations(t *testing.T) {
	path := writeConfig(t, `
auction:
  minDurationSeconds: 7200
  maxDurationSeconds: 3600
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MARKETD_SERVER_PORT", "7070")
	t.Setenv("MARKETD_COLLABORATOR_TIMEOUT", "45s")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Collaborator.Timeout.Duration)
}

func TestEnabledTokenizationRequiresEndpoint(t *testing.T) {
	path := writeConfig(t, `
tokenization:
  enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokenization.endpoint")
}
