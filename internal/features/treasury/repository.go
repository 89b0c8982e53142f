// Package treasury — repository.go выполняет операции с таблицей treasuries.
// CreditTx/DebitTx работают внутри чужой транзакции БД: пополнение казны
// комиссией или налогом фиксируется вместе с породившей его операцией.
package treasury

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"guildhub.ru/discord-bot/internal/common"
)

// PgRepository — реализация Repository поверх pgxpool.
type PgRepository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий казны.
func NewRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

// CreditTx пополняет казну внутри переданной транзакции БД и возвращает
// новый баланс валюты. Строка казны создаётся при первом пополнении.
// kind — "topy" или "ruby" (строкой, чтобы не тянуть пакет economy).
func CreditTx(ctx context.Context, tx pgx.Tx, guildID, kind string, amount int64) (int64, error) {
	query := `
		INSERT INTO treasuries (guild_id, topy_balance, ruby_balance, topy_collected, ruby_collected)
		VALUES ($1,
			CASE WHEN $2 = 'topy' THEN $3 ELSE 0 END,
			CASE WHEN $2 = 'ruby' THEN $3 ELSE 0 END,
			CASE WHEN $2 = 'topy' THEN $3 ELSE 0 END,
			CASE WHEN $2 = 'ruby' THEN $3 ELSE 0 END)
		ON CONFLICT (guild_id) DO UPDATE SET
			topy_balance = treasuries.topy_balance + EXCLUDED.topy_balance,
			ruby_balance = treasuries.ruby_balance + EXCLUDED.ruby_balance,
			topy_collected = treasuries.topy_collected + EXCLUDED.topy_collected,
			ruby_collected = treasuries.ruby_collected + EXCLUDED.ruby_collected,
			updated_at = NOW()
		RETURNING CASE WHEN $2 = 'topy' THEN topy_balance ELSE ruby_balance END
	`
	var balance int64
	if err := tx.QueryRow(ctx, query, guildID, kind, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("ошибка пополнения казны: %w", err)
	}
	return balance, nil
}

// DebitTx списывает из казны внутри переданной транзакции БД.
// Проверка остатка — под блокировкой строки.
func DebitTx(ctx context.Context, tx pgx.Tx, guildID, kind string, amount int64) (int64, error) {
	var current int64
	err := tx.QueryRow(ctx, `
		SELECT CASE WHEN $2 = 'topy' THEN topy_balance ELSE ruby_balance END
		FROM treasuries WHERE guild_id = $1
		FOR UPDATE
	`, guildID, kind).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, &common.InsufficientTreasuryError{Required: amount, Available: 0}
		}
		return 0, fmt.Errorf("ошибка блокировки казны: %w", err)
	}
	if current < amount {
		return 0, &common.InsufficientTreasuryError{Required: amount, Available: current}
	}

	query := `
		UPDATE treasuries SET
			topy_balance = topy_balance - CASE WHEN $2 = 'topy' THEN $3 ELSE 0 END,
			ruby_balance = ruby_balance - CASE WHEN $2 = 'ruby' THEN $3 ELSE 0 END,
			topy_distributed = topy_distributed + CASE WHEN $2 = 'topy' THEN $3 ELSE 0 END,
			ruby_distributed = ruby_distributed + CASE WHEN $2 = 'ruby' THEN $3 ELSE 0 END,
			updated_at = NOW()
		WHERE guild_id = $1
		RETURNING CASE WHEN $2 = 'topy' THEN topy_balance ELSE ruby_balance END
	`
	var balance int64
	if err := tx.QueryRow(ctx, query, guildID, kind, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("ошибка списания из казны: %w", err)
	}
	return balance, nil
}

// Get возвращает казну гильдии (нулевую, если строки ещё нет).
func (r *PgRepository) Get(ctx context.Context, guildID string) (*Treasury, error) {
	query := `
		SELECT guild_id, topy_balance, ruby_balance, topy_collected, ruby_collected,
		       topy_distributed, ruby_distributed, created_at, updated_at
		FROM treasuries WHERE guild_id = $1
	`
	var t Treasury
	err := r.db.QueryRow(ctx, query, guildID).Scan(
		&t.GuildID, &t.TopyBalance, &t.RubyBalance, &t.TopyCollected, &t.RubyCollected,
		&t.TopyDistributed, &t.RubyDistributed, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return &Treasury{GuildID: guildID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения казны: %w", err)
	}
	return &t, nil
}

// Distribute раздаёт средства из казны пользователю одной транзакцией БД:
// списание из казны, зачисление на кошелёк и запись журнала admin_distribute.
func (r *PgRepository) Distribute(ctx context.Context, guildID, userID, kind string, amount int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := DebitTx(ctx, tx, guildID, kind, amount); err != nil {
		return 0, err
	}

	// Кошелёк получателя: создание при необходимости, блокировка, зачисление.
	// Раздача из казны считается заработком (total_earned, daily_earned).
	_, err = tx.Exec(ctx, `
		INSERT INTO wallets (guild_id, user_id, currency_kind, balance, total_earned, daily_earned, earned_date)
		VALUES ($1, $2, $3, 0, 0, 0, CURRENT_DATE)
		ON CONFLICT (guild_id, user_id, currency_kind) DO NOTHING
	`, guildID, userID, kind)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания кошелька: %w", err)
	}
	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET
			balance = balance + $4,
			total_earned = total_earned + $4,
			daily_earned = CASE WHEN earned_date = CURRENT_DATE THEN daily_earned + $4 ELSE $4 END,
			earned_date = CURRENT_DATE,
			updated_at = NOW()
		WHERE guild_id = $1 AND user_id = $2 AND currency_kind = $3
		RETURNING balance
	`, guildID, userID, kind, amount).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("ошибка зачисления раздачи: %w", err)
	}

	desc := "Раздача из казны"
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (guild_id, user_id, currency_kind, transaction_type,
		                          amount, balance_after, fee, description)
		VALUES ($1, $2, $3, 'admin_distribute', $4, $5, 0, $6)
	`, guildID, userID, kind, amount, newBalance, desc)
	if err != nil {
		return 0, fmt.Errorf("ошибка записи транзакции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации раздачи: %w", err)
	}
	return newBalance, nil
}
