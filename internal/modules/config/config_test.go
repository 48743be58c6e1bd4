package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
trading:
  risk_percent: 1.5
  max_open_positions: 3
strategy:
  name: My Strategy
  confirmation_timeout: 2m
backup:
  s3:
    bucket: from-file
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.InDelta(t, 1.5, cfg.Trading.RiskPercent, 1e-9)
	assert.Equal(t, 3, cfg.Trading.MaxOpenPositions)
	assert.Equal(t, "My Strategy", cfg.Strategy.Name)
	assert.Equal(t, 2*time.Minute, cfg.Strategy.ConfirmationTimeout)

	// не заданное в файле берётся из умолчаний
	assert.InDelta(t, 3.0, cfg.Trading.StopLossPercent, 1e-9)
	assert.Equal(t, []float64{2, 4, 6}, cfg.Trading.TakeProfitOffsets)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.MonitorInterval)
	assert.Equal(t, 15*time.Second, cfg.WhiteBit.PriceMaxAge)
	assert.NotEmpty(t, cfg.Symbols.Mapping)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("BACKUP_S3_BUCKET", "from-env")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")
	t.Setenv("WEBHOOK_SECRET", "s3cret")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Backup.S3.Bucket)
	assert.Equal(t, int64(12345), cfg.Telegram.ChatID)
	assert.Equal(t, "s3cret", cfg.Webhook.Secret)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, `
trading:
  risk_percent: 150
  take_profit_offsets: [2, 4]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk_percent")
	assert.Contains(t, err.Error(), "take_profit_offsets")
}

func TestLoad_PositionShareCapped(t *testing.T) {
	_, err := Load(writeConfig(t, `
trading:
  max_position_share: 50
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_position_share")

	cfg, err := Load(writeConfig(t, `
trading:
  max_position_share: 5
`))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, cfg.Trading.MaxPositionShare, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.WhiteBit.OrderTimeout)
}

func TestDump_RedactsSecrets(t *testing.T) {
	t.Setenv("WHITEBIT_SECRET_KEY", "very-secret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	out, err := cfg.Dump()
	require.NoError(t, err)
	assert.NotContains(t, out, "very-secret")
	assert.NotContains(t, out, "123:abc")
	assert.Contains(t, out, "***")
	assert.Equal(t, "very-secret", cfg.WhiteBit.Secret)
}
