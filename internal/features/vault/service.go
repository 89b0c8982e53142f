// Package vault — service.go содержит бизнес-логику хранилища.
// Доступ закрыт подпиской: без действующего тира нет ни депозита, ни сводки
// лимита. Снятие доступно всегда — истёкшая подписка не запирает деньги.
package vault

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/economy"
	"guildhub.ru/discord-bot/internal/features/settings"
	"guildhub.ru/discord-bot/internal/features/subscription"
)

// Service управляет хранилищем.
type Service struct {
	repo    Repository
	subs    *subscription.Service
	economy *economy.Service
}

// NewService создаёт сервис хранилища.
func NewService(repo Repository, subs *subscription.Service, economyService *economy.Service) *Service {
	return &Service{repo: repo, subs: subs, economy: economyService}
}

// GetSummary возвращает сводку хранилища пользователя.
// Подписка не обязательна: после истечения тира вклад остаётся виден
// (и доступен к снятию), просто без тира и с нулевым лимитом.
func (s *Service) GetSummary(ctx context.Context, snap *settings.Snapshot, userID string) (*Summary, error) {
	v, err := s.repo.Get(ctx, snap.GuildID, userID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.economy.GetWallet(ctx, snap.GuildID, userID, economy.CurrencyTopy)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		DepositedAmount: v.DepositedAmount,
		WalletBalance:   wallet.Balance,
	}
	tier, cfg, err := s.activeTier(ctx, snap, userID)
	switch {
	case err == nil:
		summary.Tier = string(tier)
		summary.StorageLimit = cfg.StorageLimit
	case errors.Is(err, common.ErrNoSubscription):
		// Тир истёк или его не было — сводка без лимита.
	default:
		return nil, err
	}
	return summary, nil
}

// Deposit вносит amount с topy-кошелька во вклад.
// Проверки: действующая подписка, лимит тира, достаточность средств —
// последние две под блокировками строк внутри репозитория.
func (s *Service) Deposit(ctx context.Context, snap *settings.Snapshot, userID string, amount int64) (*Vault, error) {
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}
	_, cfg, err := s.activeTier(ctx, snap, userID)
	if err != nil {
		return nil, err
	}

	v, err := s.repo.Deposit(ctx, snap.GuildID, userID, amount, cfg.StorageLimit)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"guild":     snap.GuildID,
		"user":      userID,
		"amount":    amount,
		"deposited": v.DepositedAmount,
	}).Info("Депозит в хранилище выполнен")
	return v, nil
}

// Withdraw снимает amount из вклада на topy-кошелёк. Без комиссии.
func (s *Service) Withdraw(ctx context.Context, snap *settings.Snapshot, userID string, amount int64) (*Vault, error) {
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}

	v, err := s.repo.Withdraw(ctx, snap.GuildID, userID, amount)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"guild":     snap.GuildID,
		"user":      userID,
		"amount":    amount,
		"deposited": v.DepositedAmount,
	}).Info("Снятие из хранилища выполнено")
	return v, nil
}

// ProcessMonthlyInterest начисляет месячные проценты по всей гильдии.
// Ставка каждого вкладчика определяется его действующим тиром; вклады без
// действующей подписки пропускаются. Идемпотентность — на репозитории.
func (s *Service) ProcessMonthlyInterest(ctx context.Context, snap *settings.Snapshot, period string) (*InterestResult, error) {
	subs, err := s.subs.ListActive(ctx, snap.GuildID)
	if err != nil {
		return nil, err
	}
	rates := make(map[string]decimal.Decimal, len(subs))
	for _, sub := range subs {
		if cfg, ok := snap.TierConfig(sub.Tier); ok {
			rates[sub.UserID] = cfg.InterestRate
		}
	}

	result, err := s.repo.ProcessMonthlyInterest(ctx, snap.GuildID, period, rates)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"guild":    snap.GuildID,
		"period":   period,
		"vaults":   result.VaultCount,
		"interest": result.TotalInterest,
	}).Info("Проценты хранилища начислены")
	return result, nil
}

// activeTier возвращает действующий тир пользователя и его конфигурацию.
func (s *Service) activeTier(ctx context.Context, snap *settings.Snapshot, userID string) (settings.Tier, settings.TierConfig, error) {
	sub, err := s.subs.GetActive(ctx, snap.GuildID, userID)
	if err != nil {
		return "", settings.TierConfig{}, err
	}
	if sub == nil {
		return "", settings.TierConfig{}, common.ErrNoSubscription
	}
	cfg, ok := snap.TierConfig(sub.Tier)
	if !ok {
		return "", settings.TierConfig{}, common.ErrNoSubscription
	}
	return sub.Tier, cfg, nil
}
