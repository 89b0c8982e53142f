// Package vault — repository.go выполняет операции с таблицей vaults.
// Перенос кошелёк↔вклад и месячные проценты — строго в транзакциях БД.
package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/economy"
)

// PgRepository — реализация Repository поверх pgxpool.
type PgRepository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий хранилища.
func NewRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

// Get возвращает вклад пользователя (нулевой, если строки нет).
func (r *PgRepository) Get(ctx context.Context, guildID, userID string) (*Vault, error) {
	query := `
		SELECT id, guild_id, user_id, deposited_amount, created_at, updated_at
		FROM vaults WHERE guild_id = $1 AND user_id = $2
	`
	var v Vault
	err := r.db.QueryRow(ctx, query, guildID, userID).Scan(
		&v.ID, &v.GuildID, &v.UserID, &v.DepositedAmount, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Vault{GuildID: guildID, UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения вклада: %w", err)
	}
	return &v, nil
}

// lockVault создаёт при необходимости и блокирует строку вклада.
func lockVault(ctx context.Context, tx pgx.Tx, guildID, userID string) (int64, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO vaults (guild_id, user_id, deposited_amount)
		VALUES ($1, $2, 0)
		ON CONFLICT (guild_id, user_id) DO NOTHING
	`, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания вклада: %w", err)
	}
	var deposited int64
	err = tx.QueryRow(ctx, `
		SELECT deposited_amount FROM vaults
		WHERE guild_id = $1 AND user_id = $2
		FOR UPDATE
	`, guildID, userID).Scan(&deposited)
	if err != nil {
		return 0, fmt.Errorf("ошибка блокировки вклада: %w", err)
	}
	return deposited, nil
}

// Deposit переносит amount с topy-кошелька во вклад одной транзакцией БД.
func (r *PgRepository) Deposit(ctx context.Context, guildID, userID string, amount, limit int64) (*Vault, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	deposited, err := lockVault(ctx, tx, guildID, userID)
	if err != nil {
		return nil, err
	}
	if deposited+amount > limit {
		return nil, &common.VaultLimitExceededError{Current: deposited, Deposit: amount, Limit: limit}
	}

	walletBalance, err := economy.LockWallet(ctx, tx, guildID, userID, economy.CurrencyTopy)
	if err != nil {
		return nil, err
	}
	desc := "Внесение в хранилище"
	if _, err := economy.DebitLocked(ctx, tx, guildID, userID, economy.CurrencyTopy,
		walletBalance, amount, economy.TxTypeVaultDeposit, 0, nil, &desc); err != nil {
		return nil, err
	}

	v, err := updateVault(ctx, tx, guildID, userID, amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации депозита: %w", err)
	}
	return v, nil
}

// Withdraw переносит amount из вклада на topy-кошелёк одной транзакцией БД.
func (r *PgRepository) Withdraw(ctx context.Context, guildID, userID string, amount int64) (*Vault, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	deposited, err := lockVault(ctx, tx, guildID, userID)
	if err != nil {
		return nil, err
	}
	if deposited < amount {
		return nil, &common.InsufficientVaultBalanceError{Required: amount, Available: deposited}
	}

	walletBalance, err := economy.LockWallet(ctx, tx, guildID, userID, economy.CurrencyTopy)
	if err != nil {
		return nil, err
	}
	desc := "Снятие из хранилища"
	if _, err := economy.CreditLocked(ctx, tx, guildID, userID, economy.CurrencyTopy,
		walletBalance, amount, economy.TxTypeVaultWithdraw, 0, nil, &desc); err != nil {
		return nil, err
	}

	v, err := updateVault(ctx, tx, guildID, userID, -amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации снятия: %w", err)
	}
	return v, nil
}

// updateVault изменяет вклад на delta и возвращает свежую строку.
func updateVault(ctx context.Context, tx pgx.Tx, guildID, userID string, delta int64) (*Vault, error) {
	var v Vault
	err := tx.QueryRow(ctx, `
		UPDATE vaults SET deposited_amount = deposited_amount + $3, updated_at = NOW()
		WHERE guild_id = $1 AND user_id = $2
		RETURNING id, guild_id, user_id, deposited_amount, created_at, updated_at
	`, guildID, userID, delta).Scan(
		&v.ID, &v.GuildID, &v.UserID, &v.DepositedAmount, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления вклада: %w", err)
	}
	return &v, nil
}

// ProcessMonthlyInterest начисляет месячные проценты по вкладам гильдии.
//
// Маркер (guild_id, period, "interest") пишется первым в той же транзакции
// БД, что и начисления — см. ChargeMonthlyTax в пакете economy. Проценты
// капитализируются во вклад; balance_after в записи журнала — вклад после
// начисления.
func (r *PgRepository) ProcessMonthlyInterest(ctx context.Context, guildID, period string,
	rates map[string]decimal.Decimal) (*InterestResult, error) {

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	claimed, err := economy.ClaimPeriodTx(ctx, tx, guildID, period, "interest")
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, &common.AlreadyProcessedError{GuildID: guildID, Period: period, Job: "interest"}
	}

	rows, err := tx.Query(ctx, `
		SELECT user_id, deposited_amount FROM vaults
		WHERE guild_id = $1 AND deposited_amount > 0
		ORDER BY user_id
		FOR UPDATE
	`, guildID)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки вкладов: %w", err)
	}
	type entry struct {
		userID    string
		deposited int64
	}
	var vaults []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.userID, &e.deposited); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ошибка сканирования вклада: %w", err)
		}
		vaults = append(vaults, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода вкладов: %w", err)
	}

	result := &InterestResult{GuildID: guildID, Period: period}
	desc := fmt.Sprintf("Проценты хранилища за %s", period)
	for _, v := range vaults {
		rate, ok := rates[v.userID]
		if !ok {
			// Подписка истекла — вклад сохраняется, но проценты не идут
			continue
		}
		interest := common.PercentFloor(v.deposited, rate)
		if interest == 0 {
			continue
		}
		updated, err := updateVault(ctx, tx, guildID, v.userID, interest)
		if err != nil {
			return nil, err
		}
		if err := economy.InsertTransaction(ctx, tx, guildID, v.userID, economy.CurrencyTopy,
			economy.TxTypeInterest, interest, updated.DepositedAmount, 0, nil, &desc); err != nil {
			return nil, err
		}
		result.VaultCount++
		result.TotalInterest += interest
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации процентов: %w", err)
	}
	return result, nil
}
