// Package subscription управляет подписками хранилища (silver/gold).
// Подписка открывает доступ к хранилищу и даёт льготы: освобождение от
// комиссий перевода и магазина и от месячного налога.
// models.go описывает структуру подписки.
package subscription

import (
	"time"

	"guildhub.ru/discord-bot/internal/features/settings"
)

// Subscription — подписка пользователя в гильдии.
// Просроченная подписка (ExpiresAt < now) везде трактуется как отсутствующая.
type Subscription struct {
	ID        int64         `db:"id"`
	GuildID   string        `db:"guild_id"`
	UserID    string        `db:"user_id"`
	Tier      settings.Tier `db:"tier"`
	ExpiresAt time.Time     `db:"expires_at"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}

// Active сообщает, действует ли подписка на момент now.
func (s *Subscription) Active(now time.Time) bool {
	return s != nil && s.ExpiresAt.After(now)
}
