// Package vault — repository_interface.go описывает контракт хранилища вкладов.
package vault

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository — контракт хранилища вкладов.
type Repository interface {
	// Get возвращает вклад пользователя (нулевой, если строки нет).
	Get(ctx context.Context, guildID, userID string) (*Vault, error)

	// Deposit атомарно переносит amount с topy-кошелька во вклад.
	// limit — лимит тира вкладчика; превышение — VaultLimitExceededError,
	// нехватка на кошельке — InsufficientBalanceError.
	Deposit(ctx context.Context, guildID, userID string, amount, limit int64) (*Vault, error)

	// Withdraw атомарно переносит amount из вклада на topy-кошелёк.
	// Комиссия не взимается; нехватка — InsufficientVaultBalanceError.
	Withdraw(ctx context.Context, guildID, userID string, amount int64) (*Vault, error)

	// ProcessMonthlyInterest начисляет проценты всем вкладам гильдии с
	// положительным вкладом и действующим тиром. rates — ставка на
	// пользователя (только держатели действующей подписки). Вся гильдия —
	// одна транзакция БД вместе с маркером периода; повтор —
	// *common.AlreadyProcessedError.
	ProcessMonthlyInterest(ctx context.Context, guildID, period string,
		rates map[string]decimal.Decimal) (*InterestResult, error)
}
