package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "test-token")
	t.Setenv("DB_PASSWORD", "test-password")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBHost)
	assert.Equal(t, "Asia/Tokyo", cfg.AppTimezone)
	assert.Equal(t, int64(100), cfg.EconomyMinTransfer)
	assert.True(t, cfg.EconomyTransferFeePercent.Equal(decimal.RequireFromString("1.2")))
	assert.True(t, cfg.EconomyShopFeePercent.Equal(decimal.RequireFromString("3.0")))
	assert.True(t, cfg.EconomyTaxPercent.Equal(decimal.RequireFromString("3.3")))
	assert.True(t, cfg.VaultSilverRate.Equal(decimal.RequireFromString("1.0")))
	assert.True(t, cfg.VaultGoldRate.Equal(decimal.RequireFromString("2.5")))
}

// Проценты едут строками (*_PERCENT) и парсятся в Load; сами decimal-поля
// envconfig не заполняет — иначе дробь прошла бы мимо парсинга через
// TextUnmarshaler.
func TestLoad_PercentsParsedFromRawOnly(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ECONOMY_TAX_PERCENT", "7.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7.5", cfg.EconomyTaxPercentRaw)
	assert.True(t, cfg.EconomyTaxPercent.Equal(decimal.RequireFromString("7.5")))
}

func TestLoad_BadPercent(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ECONOMY_SHOP_FEE_PERCENT", "не число")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	setRequiredEnv(t)

	t.Run("процент вне диапазона", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		cfg.EconomyTaxPercent = decimal.RequireFromString("150")
		assert.Error(t, cfg.Validate())
	})

	t.Run("дефолты проходят", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_DatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: 5432, DBUser: "bot",
		DBPassword: "secret", DBName: "economy", DBSSLMode: "disable",
	}
	assert.Equal(t, "postgres://bot:secret@db:5432/economy?sslmode=disable", cfg.DatabaseDSN())
}
