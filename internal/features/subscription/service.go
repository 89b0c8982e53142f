// Package subscription — service.go содержит бизнес-логику подписок и льгот.
package subscription

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"guildhub.ru/discord-bot/internal/features/settings"
)

// Service управляет подписками.
type Service struct {
	repo Repository
}

// NewService создаёт сервис подписок.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetActive возвращает действующую подписку или nil.
func (s *Service) GetActive(ctx context.Context, guildID, userID string) (*Subscription, error) {
	return s.repo.GetActive(ctx, guildID, userID)
}

// Grant выдаёт или продлевает подписку (вызывается магазином при покупке
// товара vault_subscription).
func (s *Service) Grant(ctx context.Context, guildID, userID string,
	tier settings.Tier, duration time.Duration) (*Subscription, error) {

	sub, err := s.repo.GrantOrExtend(ctx, guildID, userID, tier, duration)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"guild":      guildID,
		"user":       userID,
		"tier":       tier,
		"expires_at": sub.ExpiresAt,
	}).Info("Подписка выдана/продлена")
	return sub, nil
}

// IsFeeExempt сообщает, освобождён ли пользователь от комиссий
// перевода и магазина по льготе подписки.
func (s *Service) IsFeeExempt(ctx context.Context, snap *settings.Snapshot, userID string) (bool, error) {
	sub, err := s.repo.GetActive(ctx, snap.GuildID, userID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}
	cfg, ok := snap.TierConfig(sub.Tier)
	return ok && cfg.FeeExempt, nil
}

// TaxExemptUsers возвращает пользователей гильдии, освобождённых от налога
// по льготе подписки.
func (s *Service) TaxExemptUsers(ctx context.Context, snap *settings.Snapshot) (map[string]bool, error) {
	subs, err := s.repo.ListActive(ctx, snap.GuildID)
	if err != nil {
		return nil, err
	}
	exempt := make(map[string]bool, len(subs))
	for _, sub := range subs {
		if cfg, ok := snap.TierConfig(sub.Tier); ok && cfg.TaxExempt {
			exempt[sub.UserID] = true
		}
	}
	return exempt, nil
}

// ListActive возвращает все действующие подписки гильдии
// (для месячного начисления процентов).
func (s *Service) ListActive(ctx context.Context, guildID string) ([]*Subscription, error) {
	return s.repo.ListActive(ctx, guildID)
}
