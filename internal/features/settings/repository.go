// Package settings — repository.go читает таблицу guild_settings.
// Таблица принадлежит дашборду (ядро её не пишет); при отсутствии строки
// действуют дефолты из конфигурации приложения.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"guildhub.ru/discord-bot/internal/config"
)

// Repository загружает настройки гильдий.
type Repository struct {
	db  *pgxpool.Pool
	cfg *config.Config
}

// NewRepository создаёт репозиторий настроек.
func NewRepository(db *pgxpool.Pool, cfg *config.Config) *Repository {
	return &Repository{db: db, cfg: cfg}
}

// Load возвращает снапшот настроек гильдии.
// Строки может не быть — тогда гильдия работает на дефолтах приложения.
func (r *Repository) Load(ctx context.Context, guildID string) (*Snapshot, error) {
	snap := r.defaults(guildID)

	query := `
		SELECT transfer_fee_percent, shop_fee_percent, tax_percent, tax_enabled,
		       min_transfer, primary_currency_name, secondary_currency_name,
		       currency_manager_ids,
		       vault_silver_limit, vault_gold_limit, vault_silver_rate, vault_gold_rate
		FROM guild_settings
		WHERE guild_id = $1
	`
	var (
		transferFee, shopFee, taxPercent decimal.Decimal
		silverRate, goldRate             decimal.Decimal
		silverLimit, goldLimit           int64
		taxEnabled                       bool
		minTransfer                      int64
		primaryName, secondaryName       string
		managerIDs                       []string
	)
	err := r.db.QueryRow(ctx, query, guildID).Scan(
		&transferFee, &shopFee, &taxPercent, &taxEnabled,
		&minTransfer, &primaryName, &secondaryName,
		&managerIDs,
		&silverLimit, &goldLimit, &silverRate, &goldRate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки настроек гильдии %s: %w", guildID, err)
	}

	snap.TransferFeePercent = transferFee
	snap.ShopFeePercent = shopFee
	snap.TaxPercent = taxPercent
	snap.TaxEnabled = taxEnabled
	snap.MinTransfer = minTransfer
	snap.PrimaryCurrencyName = primaryName
	snap.SecondaryCurrencyName = secondaryName
	snap.CurrencyManagerIDs = managerIDs
	snap.Tiers = map[Tier]TierConfig{
		TierSilver: {StorageLimit: silverLimit, InterestRate: silverRate, FeeExempt: true, TaxExempt: true},
		TierGold:   {StorageLimit: goldLimit, InterestRate: goldRate, FeeExempt: true, TaxExempt: true},
	}
	return snap, nil
}

// defaults собирает снапшот из дефолтов приложения.
func (r *Repository) defaults(guildID string) *Snapshot {
	return &Snapshot{
		GuildID:               guildID,
		TransferFeePercent:    r.cfg.EconomyTransferFeePercent,
		ShopFeePercent:        r.cfg.EconomyShopFeePercent,
		TaxPercent:            r.cfg.EconomyTaxPercent,
		TaxEnabled:            true,
		MinTransfer:           r.cfg.EconomyMinTransfer,
		PrimaryCurrencyName:   r.cfg.EconomyPrimaryCurrencyName,
		SecondaryCurrencyName: r.cfg.EconomySecondaryCurrencyName,
		Tiers: map[Tier]TierConfig{
			TierSilver: {StorageLimit: r.cfg.VaultSilverLimit, InterestRate: r.cfg.VaultSilverRate, FeeExempt: true, TaxExempt: true},
			TierGold:   {StorageLimit: r.cfg.VaultGoldLimit, InterestRate: r.cfg.VaultGoldRate, FeeExempt: true, TaxExempt: true},
		},
	}
}
