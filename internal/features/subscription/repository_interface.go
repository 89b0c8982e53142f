// Package subscription — repository_interface.go описывает контракт хранилища подписок.
package subscription

import (
	"context"
	"time"

	"guildhub.ru/discord-bot/internal/features/settings"
)

// Repository — контракт хранилища подписок.
type Repository interface {
	// GetActive возвращает действующую подписку или nil, если её нет
	// либо она просрочена.
	GetActive(ctx context.Context, guildID, userID string) (*Subscription, error)

	// GrantOrExtend выдаёт подписку или продлевает существующую на duration.
	// Продление отсчитывается от позднего из (now, текущий срок): действующая
	// подписка не укорачивается. Смена тира применяется сразу.
	GrantOrExtend(ctx context.Context, guildID, userID string, tier settings.Tier, duration time.Duration) (*Subscription, error)

	// ListActive возвращает все действующие подписки гильдии.
	ListActive(ctx context.Context, guildID string) ([]*Subscription, error)
}
