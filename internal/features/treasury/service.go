// Package treasury — service.go содержит бизнес-логику казны.
package treasury

import (
	"context"

	log "github.com/sirupsen/logrus"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/settings"
)

// Service управляет казной гильдии.
type Service struct {
	repo Repository
}

// NewService создаёт сервис казны.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetTreasury возвращает текущее состояние казны.
func (s *Service) GetTreasury(ctx context.Context, guildID string) (*Treasury, error) {
	return s.repo.Get(ctx, guildID)
}

// Distribute раздаёт средства из казны пользователю.
// Доступно только управляющим валютой; при нехватке средств в казне
// возвращает InsufficientTreasuryError, ничего не меняя.
func (s *Service) Distribute(ctx context.Context, snap *settings.Snapshot,
	actorID, userID, kind string, amount int64) (int64, error) {

	if !snap.IsCurrencyManager(actorID) {
		return 0, common.ErrNotCurrencyManager
	}
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if kind != "topy" && kind != "ruby" {
		return 0, common.ErrInvalidAmount
	}

	balance, err := s.repo.Distribute(ctx, snap.GuildID, userID, kind, amount)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"guild":  snap.GuildID,
		"actor":  actorID,
		"user":   userID,
		"kind":   kind,
		"amount": amount,
	}).Info("Раздача из казны выполнена")

	return balance, nil
}
