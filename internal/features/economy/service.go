// Package economy — service.go содержит бизнес-логику валютных операций.
// Валидация сумм, расчёт комиссий, проверка прав управляющих.
//
// Каждая операция принимает снапшот настроек гильдии явным параметром:
// сервис ничего не читает из глобального состояния.
package economy

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/settings"
)

// Service управляет кошельками и переводами.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис экономики.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetWallet возвращает кошелёк пользователя (создавая пустой при первом обращении).
func (s *Service) GetWallet(ctx context.Context, guildID, userID string, kind CurrencyKind) (*Wallet, error) {
	if err := s.repo.EnsureWallet(ctx, guildID, userID, kind); err != nil {
		return nil, err
	}
	return s.repo.GetWallet(ctx, guildID, userID, kind)
}

// Credit начисляет валюту пользователю.
// Используется XP-конвейером и внутренними операциями (снятие из хранилища).
func (s *Service) Credit(ctx context.Context, guildID, userID string, kind CurrencyKind,
	amount int64, txType string, description *string) (int64, error) {

	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if !kind.Valid() {
		return 0, common.ErrInvalidAmount
	}
	return s.repo.Credit(ctx, guildID, userID, kind, amount, txType, description)
}

// Debit списывает валюту пользователя.
// При нехватке средств возвращает InsufficientBalanceError с контекстом.
func (s *Service) Debit(ctx context.Context, guildID, userID string, kind CurrencyKind,
	amount int64, txType string, description *string) (int64, error) {

	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if !kind.Valid() {
		return 0, common.ErrInvalidAmount
	}
	return s.repo.Debit(ctx, guildID, userID, kind, amount, txType, description)
}

// Transfer переводит валюту между пользователями.
//
// Алгоритм:
//  1. Валидация: не себе, сумма положительная и не меньше минимума гильдии
//  2. Комиссия = floor(amount × процент / 100); держатели подписки с льготой
//     комиссию не платят
//  3. Отправитель теряет amount, получатель получает amount − fee,
//     казна получает fee — одной транзакцией БД
//
// Проверка баланса выполняется под блокировкой строки внутри репозитория.
func (s *Service) Transfer(ctx context.Context, snap *settings.Snapshot,
	fromUserID, toUserID string, kind CurrencyKind, amount int64, feeExempt bool) (*TransferOutcome, error) {

	if fromUserID == toUserID {
		return nil, common.ErrSelfTransfer
	}
	if amount <= 0 || !kind.Valid() {
		return nil, common.ErrInvalidAmount
	}
	if amount < snap.MinTransfer {
		return nil, &common.BelowMinTransferError{Amount: amount, Minimum: snap.MinTransfer}
	}

	var fee int64
	if !feeExempt {
		fee = common.PercentFloor(amount, snap.TransferFeePercent)
	}

	outcome, err := s.repo.Transfer(ctx, TransferParams{
		GuildID:    snap.GuildID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Kind:       kind,
		Amount:     amount,
		Fee:        fee,
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"guild":  snap.GuildID,
		"from":   fromUserID,
		"to":     toUserID,
		"kind":   kind,
		"amount": amount,
		"fee":    fee,
	}).Info("Перевод выполнен")

	return outcome, nil
}

// AdminGrant выдаёт валюту от имени управляющего.
// Доступно только пользователям из списка управляющих гильдии.
func (s *Service) AdminGrant(ctx context.Context, snap *settings.Snapshot,
	actorID, userID string, kind CurrencyKind, amount int64) (int64, error) {

	if !snap.IsCurrencyManager(actorID) {
		return 0, common.ErrNotCurrencyManager
	}
	if amount <= 0 || !kind.Valid() {
		return 0, common.ErrInvalidAmount
	}

	desc := "Выдача управляющим"
	balance, err := s.repo.Credit(ctx, snap.GuildID, userID, kind, amount, TxTypeAdminGrant, &desc)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"guild":  snap.GuildID,
		"actor":  actorID,
		"user":   userID,
		"kind":   kind,
		"amount": amount,
	}).Info("Админ-выдача выполнена")

	return balance, nil
}

// ProcessMonthlyTax выполняет налоговую выгрузку по одной гильдии.
// exempt — пользователи, освобождённые от налога (льгота подписки или
// предмет-освобождение). Идемпотентность обеспечивает репозиторий.
func (s *Service) ProcessMonthlyTax(ctx context.Context, snap *settings.Snapshot,
	period string, exempt map[string]bool) (*TaxResult, error) {

	if !snap.TaxEnabled || snap.TaxPercent.Sign() <= 0 {
		return &TaxResult{GuildID: snap.GuildID, Period: period}, nil
	}
	return s.repo.ChargeMonthlyTax(ctx, snap.GuildID, period, snap.TaxPercent, exempt)
}

// GetTransactionHistory возвращает последние операции пользователя.
func (s *Service) GetTransactionHistory(ctx context.Context, guildID, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.repo.GetTransactions(ctx, guildID, userID, limit)
}

// GetTransactionsByPeriod возвращает операции пользователя с указанного момента.
func (s *Service) GetTransactionsByPeriod(ctx context.Context, guildID, userID string, since time.Time) ([]*Transaction, error) {
	return s.repo.GetTransactionsByPeriod(ctx, guildID, userID, since)
}

// ListGuildIDs возвращает гильдии для обхода фоновыми задачами.
func (s *Service) ListGuildIDs(ctx context.Context) ([]string, error) {
	return s.repo.ListGuildIDs(ctx)
}
