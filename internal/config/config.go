// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
//
// Здесь только инфраструктурные настройки (БД, Discord, планировщик) и
// общие дефолты экономики. Пер-гильдийные настройки живут в таблице
// guild_settings и загружаются как снапшот на каждую операцию
// (см. internal/features/settings).
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Discord ---
	DiscordBotToken string `envconfig:"DISCORD_BOT_TOKEN" required:"true"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки
	// переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"discord_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	// Часовой пояс планировщика: от него зависят окна налоговой выгрузки
	// ("последний день месяца, 23 часа") и начисления процентов.
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Asia/Tokyo"`

	// --- Economy defaults (применяются, пока гильдия не настроила свои) ---
	EconomyTransferFeePercentRaw string `envconfig:"ECONOMY_TRANSFER_FEE_PERCENT" default:"1.2"`
	EconomyShopFeePercentRaw     string `envconfig:"ECONOMY_SHOP_FEE_PERCENT" default:"3.0"`
	EconomyTaxPercentRaw         string `envconfig:"ECONOMY_TAX_PERCENT" default:"3.3"`
	EconomyMinTransfer           int64  `envconfig:"ECONOMY_MIN_TRANSFER" default:"100"`
	EconomyPrimaryCurrencyName   string `envconfig:"ECONOMY_PRIMARY_CURRENCY_NAME" default:"топи"`
	EconomySecondaryCurrencyName string `envconfig:"ECONOMY_SECONDARY_CURRENCY_NAME" default:"руби"`

	// Распарсенные проценты (заполняются в Load, envconfig их не трогает)
	EconomyTransferFeePercent decimal.Decimal `ignored:"true"`
	EconomyShopFeePercent     decimal.Decimal `ignored:"true"`
	EconomyTaxPercent         decimal.Decimal `ignored:"true"`

	// --- Vault tiers ---
	VaultSilverLimit   int64           `envconfig:"VAULT_SILVER_LIMIT" default:"100000"`
	VaultGoldLimit     int64           `envconfig:"VAULT_GOLD_LIMIT" default:"500000"`
	VaultSilverRateRaw string          `envconfig:"VAULT_SILVER_RATE" default:"1.0"`
	VaultGoldRateRaw   string          `envconfig:"VAULT_GOLD_RATE" default:"2.5"`
	VaultSilverRate    decimal.Decimal `ignored:"true"`
	VaultGoldRate      decimal.Decimal `ignored:"true"`
	SubscriptionDays   int             `envconfig:"SUBSCRIPTION_DAYS" default:"30"`

	// --- Jobs ---
	// Таймаут одного внешнего вызова Discord (снятие/выдача роли) внутри свипа.
	JobRoleCallTimeoutSeconds int `envconfig:"JOB_ROLE_CALL_TIMEOUT_SECONDS" default:"10"`
	// Канал для сводок фоновых задач; пустой — сводки только в лог.
	JobReportChannelID string `envconfig:"JOB_REPORT_CHANNEL_ID"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.EconomyMinTransfer < 0 {
		return fmt.Errorf("ECONOMY_MIN_TRANSFER не может быть отрицательным")
	}
	if c.VaultSilverLimit <= 0 || c.VaultGoldLimit <= 0 {
		return fmt.Errorf("лимиты хранилища должны быть положительными")
	}
	if c.JobRoleCallTimeoutSeconds <= 0 {
		return fmt.Errorf("JOB_ROLE_CALL_TIMEOUT_SECONDS должен быть > 0")
	}
	for name, p := range map[string]decimal.Decimal{
		"ECONOMY_TRANSFER_FEE_PERCENT": c.EconomyTransferFeePercent,
		"ECONOMY_SHOP_FEE_PERCENT":     c.EconomyShopFeePercent,
		"ECONOMY_TAX_PERCENT":          c.EconomyTaxPercent,
		"VAULT_SILVER_RATE":            c.VaultSilverRate,
		"VAULT_GOLD_RATE":              c.VaultGoldRate,
	} {
		if p.Sign() < 0 || p.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%s должен быть в диапазоне [0, 100]", name)
		}
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	// Проценты задаются строками и парсятся в decimal,
	// чтобы дробные значения (1.2%) не проходили через float64.
	var err error
	if cfg.EconomyTransferFeePercent, err = decimal.NewFromString(cfg.EconomyTransferFeePercentRaw); err != nil {
		return nil, fmt.Errorf("ECONOMY_TRANSFER_FEE_PERCENT parse: %w", err)
	}
	if cfg.EconomyShopFeePercent, err = decimal.NewFromString(cfg.EconomyShopFeePercentRaw); err != nil {
		return nil, fmt.Errorf("ECONOMY_SHOP_FEE_PERCENT parse: %w", err)
	}
	if cfg.EconomyTaxPercent, err = decimal.NewFromString(cfg.EconomyTaxPercentRaw); err != nil {
		return nil, fmt.Errorf("ECONOMY_TAX_PERCENT parse: %w", err)
	}
	if cfg.VaultSilverRate, err = decimal.NewFromString(cfg.VaultSilverRateRaw); err != nil {
		return nil, fmt.Errorf("VAULT_SILVER_RATE parse: %w", err)
	}
	if cfg.VaultGoldRate, err = decimal.NewFromString(cfg.VaultGoldRateRaw); err != nil {
		return nil, fmt.Errorf("VAULT_GOLD_RATE parse: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
