// Package common — errors.go определяет бизнес-ошибки экономического ядра.
// Каждая ошибка несёт числовой контекст (сколько нужно / сколько есть),
// чтобы обработчики команд и дашборд могли показать точное сообщение,
// а не голый текст. Сопоставление — через errors.Is / errors.As,
// никогда через сравнение строк.
package common

import (
	"errors"
	"fmt"
)

// Простые ошибки валидации (без числового контекста)
var (
	// ErrInvalidAmount — сумма нулевая или отрицательная
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrSelfTransfer — попытка перевести валюту самому себе
	ErrSelfTransfer = errors.New("нельзя переводить валюту самому себе")
	// ErrItemNotFound — товар не найден или выключен
	ErrItemNotFound = errors.New("товар не найден")
	// ErrItemNotOwned — у пользователя нет этого предмета
	ErrItemNotOwned = errors.New("у вас нет этого предмета")
	// ErrNotCurrencyManager — вызывающий не входит в список управляющих валютой
	ErrNotCurrencyManager = errors.New("нет прав управляющего валютой")
	// ErrNoSubscription — нет активной подписки, дающей доступ к хранилищу
	ErrNoSubscription = errors.New("нет активной подписки")
)

// InsufficientBalanceError — на кошельке не хватает средств.
type InsufficientBalanceError struct {
	Required  int64 // Сколько требовалось списать
	Available int64 // Сколько было на кошельке
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("недостаточно средств: нужно %d, есть %d", e.Required, e.Available)
}

// InsufficientVaultBalanceError — в хранилище не хватает средств для снятия.
type InsufficientVaultBalanceError struct {
	Required  int64
	Available int64
}

func (e *InsufficientVaultBalanceError) Error() string {
	return fmt.Sprintf("недостаточно средств в хранилище: нужно %d, есть %d", e.Required, e.Available)
}

// InsufficientQuantityError — предметов меньше, чем требуется изъять или использовать.
type InsufficientQuantityError struct {
	Required  int64
	Available int64
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("недостаточно предметов: нужно %d, есть %d", e.Required, e.Available)
}

// VaultLimitExceededError — депозит превысил бы лимит хранилища тира.
type VaultLimitExceededError struct {
	Current int64 // Текущий вклад
	Deposit int64 // Сколько пытались внести
	Limit   int64 // Лимит тира
}

func (e *VaultLimitExceededError) Error() string {
	return fmt.Sprintf("превышен лимит хранилища: вклад %d + депозит %d > лимит %d",
		e.Current, e.Deposit, e.Limit)
}

// OutOfStockError — товара нет в нужном количестве на складе магазина.
type OutOfStockError struct {
	Requested int64
	Stock     int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("товара нет в наличии: запрошено %d, осталось %d", e.Requested, e.Stock)
}

// MaxPerUserError — покупка превысила бы лимит предметов на одного пользователя.
type MaxPerUserError struct {
	Owned      int64
	Requested  int64
	MaxPerUser int64
}

func (e *MaxPerUserError) Error() string {
	return fmt.Sprintf("превышен лимит на пользователя: есть %d, запрошено %d, максимум %d",
		e.Owned, e.Requested, e.MaxPerUser)
}

// BelowMinTransferError — сумма перевода меньше минимальной для гильдии.
type BelowMinTransferError struct {
	Amount  int64
	Minimum int64
}

func (e *BelowMinTransferError) Error() string {
	return fmt.Sprintf("сумма перевода %d меньше минимальной %d", e.Amount, e.Minimum)
}

// AlreadyProcessedError — месячная задача уже выполнена для этой гильдии и периода.
// Идемпотентный барьер: повторный запуск не изменяет ни одной записи.
type AlreadyProcessedError struct {
	GuildID string
	Period  string // Период в формате "2006-01"
	Job     string // "tax" или "interest"
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("задача %s уже выполнена для гильдии %s за период %s", e.Job, e.GuildID, e.Period)
}

// InsufficientTreasuryError — в казне гильдии не хватает средств для раздачи.
type InsufficientTreasuryError struct {
	Required  int64
	Available int64
}

func (e *InsufficientTreasuryError) Error() string {
	return fmt.Sprintf("недостаточно средств в казне: нужно %d, есть %d", e.Required, e.Available)
}
