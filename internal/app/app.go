// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, клиента Discord, репозитории,
// сервисы и планировщик, собирает всё в один объект App.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"guildhub.ru/discord-bot/internal/config"
	"guildhub.ru/discord-bot/internal/db/postgres"
	"guildhub.ru/discord-bot/internal/discord"
	"guildhub.ru/discord-bot/internal/features/economy"
	"guildhub.ru/discord-bot/internal/features/settings"
	"guildhub.ru/discord-bot/internal/features/shop"
	"guildhub.ru/discord-bot/internal/features/subscription"
	"guildhub.ru/discord-bot/internal/features/treasury"
	"guildhub.ru/discord-bot/internal/features/vault"
	"guildhub.ru/discord-bot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Discord   *discord.Client
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool

	Settings     *settings.Repository
	Economy      *economy.Service
	Treasury     *treasury.Service
	Subscription *subscription.Service
	Vault        *vault.Service
	Shop         *shop.Service
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Запускаем миграции
	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Discord ===
	client, err := discord.NewClient(cfg.DiscordBotToken, cfg.JobRoleCallTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	// === 3. Репозитории ===
	settingsRepo := settings.NewRepository(pool, cfg)
	economyRepo := economy.NewRepository(pool)
	treasuryRepo := treasury.NewRepository(pool)
	subscriptionRepo := subscription.NewRepository(pool)
	vaultRepo := vault.NewRepository(pool)
	shopRepo := shop.NewRepository(pool)

	// === 4. Сервисы ===
	economyService := economy.NewService(economyRepo)
	treasuryService := treasury.NewService(treasuryRepo)
	subscriptionService := subscription.NewService(subscriptionRepo)
	vaultService := vault.NewService(vaultRepo, subscriptionService, economyService)
	shopService := shop.NewService(shopRepo, subscriptionService, client, cfg.SubscriptionDays)

	// === 5. Планировщик задач ===
	location, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки временной зоны %s: %w", cfg.AppTimezone, err)
	}
	scheduler := jobs.NewScheduler(
		location,
		economyService,
		vaultService,
		shopService,
		subscriptionService,
		settingsRepo,
		client,
		cfg.JobReportChannelID,
	)

	return &App{
		Discord:      client,
		Scheduler:    scheduler,
		DB:           pool,
		Settings:     settingsRepo,
		Economy:      economyService,
		Treasury:     treasuryService,
		Subscription: subscriptionService,
		Vault:        vaultService,
		Shop:         shopService,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	// Инициализируем систему миграций
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return err
	}

	// Выполняем миграции по порядку
	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Wallets},
		{2, migration002Treasury},
		{3, migration003Subscriptions},
		{4, migration004Vaults},
		{5, migration005Shop},
		{6, migration006Processing},
		{7, migration007Settings},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Wallets = `
CREATE TABLE IF NOT EXISTS wallets (
    id BIGSERIAL PRIMARY KEY,
    guild_id VARCHAR(32) NOT NULL,
    user_id VARCHAR(32) NOT NULL,
    currency_kind VARCHAR(16) NOT NULL,
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    total_earned BIGINT NOT NULL DEFAULT 0,
    daily_earned BIGINT NOT NULL DEFAULT 0,
    earned_date DATE NOT NULL DEFAULT CURRENT_DATE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (guild_id, user_id, currency_kind)
);
CREATE INDEX IF NOT EXISTS idx_wallets_guild ON wallets(guild_id);

CREATE TABLE IF NOT EXISTS transactions (
    id BIGSERIAL PRIMARY KEY,
    guild_id VARCHAR(32) NOT NULL,
    user_id VARCHAR(32) NOT NULL,
    currency_kind VARCHAR(16) NOT NULL,
    transaction_type VARCHAR(32) NOT NULL,
    amount BIGINT NOT NULL,
    balance_after BIGINT NOT NULL,
    fee BIGINT NOT NULL DEFAULT 0,
    related_user_id VARCHAR(32),
    description TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_guild_user ON transactions(guild_id, user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC);
`

var migration002Treasury = `
CREATE TABLE IF NOT EXISTS treasuries (
    guild_id VARCHAR(32) PRIMARY KEY,
    topy_balance BIGINT NOT NULL DEFAULT 0 CHECK (topy_balance >= 0),
    ruby_balance BIGINT NOT NULL DEFAULT 0 CHECK (ruby_balance >= 0),
    topy_collected BIGINT NOT NULL DEFAULT 0,
    ruby_collected BIGINT NOT NULL DEFAULT 0,
    topy_distributed BIGINT NOT NULL DEFAULT 0,
    ruby_distributed BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration003Subscriptions = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id BIGSERIAL PRIMARY KEY,
    guild_id VARCHAR(32) NOT NULL,
    user_id VARCHAR(32) NOT NULL,
    tier VARCHAR(16) NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (guild_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_guild_expires ON subscriptions(guild_id, expires_at);
`

var migration004Vaults = `
CREATE TABLE IF NOT EXISTS vaults (
    id BIGSERIAL PRIMARY KEY,
    guild_id VARCHAR(32) NOT NULL,
    user_id VARCHAR(32) NOT NULL,
    deposited_amount BIGINT NOT NULL DEFAULT 0 CHECK (deposited_amount >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (guild_id, user_id)
);
`

var migration005Shop = `
CREATE TABLE IF NOT EXISTS shop_items (
    id BIGSERIAL PRIMARY KEY,
    guild_id VARCHAR(32) NOT NULL,
    name VARCHAR(255) NOT NULL,
    description TEXT,
    topy_price BIGINT NOT NULL DEFAULT 0,
    ruby_price BIGINT NOT NULL DEFAULT 0,
    currency_type VARCHAR(16) NOT NULL DEFAULT 'topy',
    duration_days INTEGER NOT NULL DEFAULT 0,
    stock BIGINT,
    max_per_user BIGINT,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    item_type VARCHAR(32) NOT NULL DEFAULT 'normal',
    subscription_tier VARCHAR(16),
    role_ticket JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_shop_items_guild ON shop_items(guild_id) WHERE enabled;

CREATE TABLE IF NOT EXISTS user_items (
    id BIGSERIAL PRIMARY KEY,
    guild_id VARCHAR(32) NOT NULL,
    user_id VARCHAR(32) NOT NULL,
    shop_item_id BIGINT NOT NULL REFERENCES shop_items(id),
    quantity BIGINT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    expires_at TIMESTAMPTZ,
    current_role_id VARCHAR(32),
    fixed_role_id VARCHAR(32),
    role_expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (guild_id, user_id, shop_item_id)
);
CREATE INDEX IF NOT EXISTS idx_user_items_expires ON user_items(expires_at) WHERE expires_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_user_items_role_expires ON user_items(role_expires_at) WHERE role_expires_at IS NOT NULL;
`

var migration006Processing = `
CREATE TABLE IF NOT EXISTS monthly_processing (
    id BIGSERIAL PRIMARY KEY,
    guild_id VARCHAR(32) NOT NULL,
    period VARCHAR(7) NOT NULL,
    job_type VARCHAR(32) NOT NULL,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (guild_id, period, job_type)
);
`

var migration007Settings = `
CREATE TABLE IF NOT EXISTS guild_settings (
    guild_id VARCHAR(32) PRIMARY KEY,
    transfer_fee_percent NUMERIC(6,3) NOT NULL DEFAULT 1.2,
    shop_fee_percent NUMERIC(6,3) NOT NULL DEFAULT 3.0,
    tax_percent NUMERIC(6,3) NOT NULL DEFAULT 3.3,
    tax_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    min_transfer BIGINT NOT NULL DEFAULT 100,
    primary_currency_name VARCHAR(64) NOT NULL DEFAULT 'топи',
    secondary_currency_name VARCHAR(64) NOT NULL DEFAULT 'руби',
    currency_manager_ids TEXT[] NOT NULL DEFAULT '{}',
    vault_silver_limit BIGINT NOT NULL DEFAULT 100000,
    vault_silver_rate NUMERIC(6,3) NOT NULL DEFAULT 1.0,
    vault_gold_limit BIGINT NOT NULL DEFAULT 500000,
    vault_gold_rate NUMERIC(6,3) NOT NULL DEFAULT 2.5,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
