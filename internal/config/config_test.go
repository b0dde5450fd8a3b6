package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  venue: mock
  symbol: SHSE.600000
system:
  log_level: INFO
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	b := cfg.Broker
	assert.Equal(t, int64(100), b.LotSize)
	assert.Equal(t, time.Second, b.SelfHealMinInterval())
	assert.Equal(t, 2*time.Second, b.SnapshotMinInterval())
	assert.Equal(t, 2*time.Second, b.DeferredReplayInterval())
	assert.Equal(t, 20*time.Second, b.RetryWarnTimeout())
	assert.Equal(t, 2, b.SnapshotRetries)
	assert.Equal(t, 50*time.Millisecond, b.SnapshotRetrySleep())
	assert.Equal(t, 3, b.UncertainFails)
	assert.Equal(t, time.Minute, b.UncertainTTL())
	assert.Equal(t, 5000, b.StateMemoryMaxItems)
	assert.Equal(t, 12*time.Hour, b.StateMemoryTTL())
	assert.Equal(t, 30*time.Second, b.CashDegradedTTL())
	assert.Equal(t, 5*time.Second, b.DeferredClearGrace())
	assert.Equal(t, 10*time.Minute, b.LongGap())
	assert.Equal(t, 3, b.MaxRejectionDowngrades)
	require.NotNil(t, b.ReleaseRetryOnCancelInUncertain)
	assert.True(t, *b.ReleaseRetryOnCancelInUncertain)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
app:
  symbol: AAPL
broker:
  lot_size: 1
  uncertain_fails: 5
  release_retry_on_cancel_in_uncertain: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.Broker.LotSize)
	assert.Equal(t, 5, cfg.Broker.UncertainFails)
	assert.False(t, *cfg.Broker.ReleaseRetryOnCancelInUncertain)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("LB_TEST_TOKEN", "tok-123")
	path := writeConfig(t, `
app:
  symbol: AAPL
alerts:
  telegram_bot_token: ${LB_TEST_TOKEN}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cfg.Alerts.TelegramBotToken)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []string{
		// missing symbol
		"broker:\n  lot_size: 100\n",
		// bad lot size
		"app:\n  symbol: AAPL\nbroker:\n  lot_size: -5\n",
		// bad log level
		"app:\n  symbol: AAPL\nsystem:\n  log_level: SHOUT\n",
		// commission out of range
		"app:\n  symbol: AAPL\n  commission_rate: 2.0\n",
	}

	for _, content := range cases {
		path := writeConfig(t, content)
		_, err := LoadConfig(path)
		assert.Error(t, err, content)
	}
}
