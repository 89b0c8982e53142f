// Package subscription — repository.go выполняет операции с таблицей subscriptions.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"guildhub.ru/discord-bot/internal/features/settings"
)

// PgRepository — реализация Repository поверх pgxpool.
type PgRepository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий подписок.
func NewRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

// GetActive возвращает действующую подписку пользователя.
// Просроченные строки отфильтровываются на чтении — фоновая чистка не нужна.
func (r *PgRepository) GetActive(ctx context.Context, guildID, userID string) (*Subscription, error) {
	query := `
		SELECT id, guild_id, user_id, tier, expires_at, created_at, updated_at
		FROM subscriptions
		WHERE guild_id = $1 AND user_id = $2 AND expires_at > NOW()
	`
	var s Subscription
	err := r.db.QueryRow(ctx, query, guildID, userID).Scan(
		&s.ID, &s.GuildID, &s.UserID, &s.Tier, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения подписки: %w", err)
	}
	return &s, nil
}

// GrantOrExtend выдаёт или продлевает подписку.
func (r *PgRepository) GrantOrExtend(ctx context.Context, guildID, userID string,
	tier settings.Tier, duration time.Duration) (*Subscription, error) {

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := GrantOrExtendTx(ctx, tx, guildID, userID, tier, duration)
	if err != nil {
		return nil, err
	}
	return s, tx.Commit(ctx)
}

// GrantOrExtendTx выдаёт или продлевает подписку внутри чужой транзакции БД.
// Покупка товара-подписки в магазине вызывает его из транзакции покупки:
// списание и подписка фиксируются вместе или не фиксируются вовсе.
//
// GREATEST(expires_at, NOW()) — действующий срок продлевается с конца,
// просроченный отсчитывается заново от текущего момента.
func GrantOrExtendTx(ctx context.Context, tx pgx.Tx, guildID, userID string,
	tier settings.Tier, duration time.Duration) (*Subscription, error) {

	query := `
		INSERT INTO subscriptions (guild_id, user_id, tier, expires_at)
		VALUES ($1, $2, $3, NOW() + $4::interval)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			expires_at = GREATEST(subscriptions.expires_at, NOW()) + $4::interval,
			updated_at = NOW()
		RETURNING id, guild_id, user_id, tier, expires_at, created_at, updated_at
	`
	interval := fmt.Sprintf("%d seconds", int64(duration.Seconds()))
	var s Subscription
	err := tx.QueryRow(ctx, query, guildID, userID, tier, interval).Scan(
		&s.ID, &s.GuildID, &s.UserID, &s.Tier, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка выдачи подписки: %w", err)
	}
	return &s, nil
}

// ListActive возвращает все действующие подписки гильдии.
// Используется налоговой выгрузкой (освобождения) и начислением процентов.
func (r *PgRepository) ListActive(ctx context.Context, guildID string) ([]*Subscription, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, guild_id, user_id, tier, expires_at, created_at, updated_at
		FROM subscriptions
		WHERE guild_id = $1 AND expires_at > NOW()
		ORDER BY user_id
	`, guildID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения подписчиков: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.GuildID, &s.UserID, &s.Tier, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования подписки: %w", err)
		}
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}
