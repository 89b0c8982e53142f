// Package economy — repository_interface.go описывает контракт хранилища
// кошельков. Сервис зависит от интерфейса, чтобы бизнес-логику можно было
// тестировать на моках без живой БД.
package economy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransferParams — параметры атомарного перевода между кошельками.
type TransferParams struct {
	GuildID    string
	FromUserID string
	ToUserID   string
	Kind       CurrencyKind
	Amount     int64 // Списывается с отправителя целиком
	Fee        int64 // Удерживается из зачисления получателю, уходит в казну
}

// TransferOutcome — балансы сторон после перевода.
type TransferOutcome struct {
	SenderBalance    int64
	RecipientBalance int64
}

// Repository — контракт хранилища кошельков и журнала.
type Repository interface {
	EnsureWallet(ctx context.Context, guildID, userID string, kind CurrencyKind) error
	GetWallet(ctx context.Context, guildID, userID string, kind CurrencyKind) (*Wallet, error)

	// Credit атомарно увеличивает баланс и пишет запись журнала.
	// Возвращает баланс после операции.
	Credit(ctx context.Context, guildID, userID string, kind CurrencyKind,
		amount int64, txType string, description *string) (int64, error)

	// Debit атомарно списывает с проверкой достаточности средств.
	// При нехватке возвращает *common.InsufficientBalanceError, ничего не меняя.
	Debit(ctx context.Context, guildID, userID string, kind CurrencyKind,
		amount int64, txType string, description *string) (int64, error)

	// Transfer выполняет перевод одной транзакцией БД: списание у отправителя,
	// зачисление получателю за вычетом комиссии, комиссия в казну и три
	// записи журнала. Либо всё, либо ничего.
	Transfer(ctx context.Context, p TransferParams) (*TransferOutcome, error)

	// ChargeMonthlyTax облагает налогом все неосвобождённые topy-кошельки
	// гильдии одной транзакцией БД вместе с маркером идемпотентности.
	// Повторный вызов за тот же период — *common.AlreadyProcessedError.
	ChargeMonthlyTax(ctx context.Context, guildID, period string,
		percent decimal.Decimal, exempt map[string]bool) (*TaxResult, error)

	GetTransactions(ctx context.Context, guildID, userID string, limit int) ([]*Transaction, error)
	GetTransactionsByPeriod(ctx context.Context, guildID, userID string, since time.Time) ([]*Transaction, error)

	// ListGuildIDs возвращает все гильдии с хотя бы одним кошельком.
	// Используется фоновыми задачами для обхода арендаторов.
	ListGuildIDs(ctx context.Context) ([]string, error)
}
