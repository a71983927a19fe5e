package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_DefaultsAndEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("PAYMENT_SETTLEMENT_TIMEOUT", "3s")
	t.Setenv("PRICING_MONTH_DAYS", "28")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, 3*time.Second, cfg.Payment.SettlementTimeout)
	assert.Equal(t, 28, cfg.Pricing.MonthDays)
	assert.Equal(t, "THB", cfg.Pricing.Currency)
	assert.Equal(t, 3, cfg.Tx.MaxRetries)
	assert.Equal(t, "s3cret", cfg.Payment.CashSlipSecret)
	assert.Equal(t, 24*time.Hour, cfg.Payment.CashSlipTTL)
}

func TestLoadFile_CashSlipSecretOverride(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PAYMENT_CASH_SLIP_SECRET", "counter-key")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "counter-key", cfg.Payment.CashSlipSecret)
}

func TestLoadFile_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jwt:
  secret: from-file
pricing:
  currency: INR
payment:
  lock_ttl: 45s
scheduler:
  completion_spec: "0 0 * * * *"
`), 0o600))

	t.Setenv("PRICING_CURRENCY", "USD")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, "USD", cfg.Pricing.Currency)
	assert.Equal(t, 45*time.Second, cfg.Payment.LockTTL)
	assert.Equal(t, "0 0 * * * *", cfg.Scheduler.CompletionSpec)
	assert.Equal(t, 30, cfg.Pricing.MonthDays)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.JWT.Secret = "x"
	require.NoError(t, cfg.Validate())

	cfg.Pricing.MonthDays = 0
	cfg.Payment.LockTTL = time.Second
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "month_days")
	assert.Contains(t, err.Error(), "lock_ttl")
}

func TestValidate_RequiresSecret(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestDatabaseDSN(t *testing.T) {
	dsn := Default().Database.DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=vehicle_rental")
	assert.Contains(t, dsn, "sslmode=disable")
}
