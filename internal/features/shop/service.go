// Package shop — service.go содержит бизнес-логику магазина: покупки,
// админ-выдачи, активацию ролевых билетов и свип истечений.
package shop

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/settings"
	"guildhub.ru/discord-bot/internal/features/subscription"
)

// RoleManager — внешнее управление ролями Discord. Вызовы идут ПОСЛЕ
// фиксации транзакции БД: сбой роли логируется, но леджер не откатывается.
type RoleManager interface {
	GrantRole(ctx context.Context, guildID, userID, roleID string) error
	RevokeRole(ctx context.Context, guildID, userID, roleID string) error
}

// Service — бизнес-логика магазина.
type Service struct {
	repo             Repository
	subs             *subscription.Service
	roles            RoleManager
	subscriptionDays int
}

// NewService создаёт сервис магазина.
func NewService(repo Repository, subs *subscription.Service, roles RoleManager, subscriptionDays int) *Service {
	return &Service{repo: repo, subs: subs, roles: roles, subscriptionDays: subscriptionDays}
}

// ListItems возвращает каталог гильдии.
func (s *Service) ListItems(ctx context.Context, guildID string) ([]*ShopItem, error) {
	return s.repo.ListItems(ctx, guildID)
}

// GetUserItem возвращает предмет инвентаря.
func (s *Service) GetUserItem(ctx context.Context, guildID, userID string, itemID int64) (*UserItem, error) {
	return s.repo.GetUserItem(ctx, guildID, userID, itemID)
}

// Purchase покупает товар.
//
// Порядок: валидация → расчёт списаний (в зависимости от валюты товара
// и льготы подписки) → одна транзакция БД в репозитории → побочные
// эффекты (подписка хранилища для vault_subscription).
func (s *Service) Purchase(ctx context.Context, snap *settings.Snapshot,
	userID string, itemID, quantity int64) (*PurchaseResult, error) {

	if quantity <= 0 {
		return nil, common.ErrInvalidAmount
	}
	item, err := s.repo.GetItem(ctx, snap.GuildID, itemID)
	if err != nil {
		return nil, err
	}
	if !item.Enabled {
		return nil, common.ErrItemNotFound
	}

	feeExempt, err := s.subs.IsFeeExempt(ctx, snap, userID)
	if err != nil {
		return nil, err
	}

	charges, result := buildCharges(item, quantity, snap, feeExempt)
	params := PurchaseParams{
		GuildID:  snap.GuildID,
		UserID:   userID,
		ItemID:   itemID,
		Quantity: quantity,
		Charges:  charges,
	}
	// Товар-подписка: тир и срок уходят в транзакцию покупки, чтобы
	// списание без подписки было невозможно даже при падении процесса
	if item.ItemType == ItemTypeVaultSubscription && item.SubscriptionTier != nil {
		params.SubscriptionTier = item.SubscriptionTier
		params.SubscriptionDuration = time.Duration(int64(s.subscriptionDays)*quantity) * 24 * time.Hour
	}

	ui, err := s.repo.Purchase(ctx, params)
	if err != nil {
		return nil, err
	}
	result.Item = item
	result.UserItem = ui

	log.WithFields(log.Fields{
		"guild":     snap.GuildID,
		"user":      userID,
		"item":      item.Name,
		"quantity":  quantity,
		"paid_topy": result.PaidTopy,
		"paid_ruby": result.PaidRuby,
	}).Info("Покупка в магазине")
	return result, nil
}

// buildCharges считает списания по валюте товара. Комиссия магазина
// берётся с цены и уходит в казну; льготнику комиссия не начисляется.
func buildCharges(item *ShopItem, quantity int64, snap *settings.Snapshot, feeExempt bool) ([]Charge, *PurchaseResult) {
	result := &PurchaseResult{}
	var charges []Charge

	add := func(kind string, unitPrice int64) {
		if unitPrice <= 0 {
			return
		}
		price := unitPrice * quantity
		var fee int64
		if !feeExempt {
			fee = common.PercentFloor(price, snap.ShopFeePercent)
		}
		charges = append(charges, Charge{Kind: kind, Price: price, Fee: fee})
		switch kind {
		case "topy":
			result.PaidTopy = price + fee
			result.FeeTopy = fee
		case "ruby":
			result.PaidRuby = price + fee
			result.FeeRuby = fee
		}
	}

	switch item.CurrencyType {
	case CurrencyTypeTopy:
		add("topy", item.TopyPrice)
	case CurrencyTypeRuby:
		add("ruby", item.RubyPrice)
	case CurrencyTypeBoth:
		add("topy", item.TopyPrice)
		add("ruby", item.RubyPrice)
	}
	return charges, result
}

// GiveItem выдаёт предмет без оплаты. Только для управляющих валютой.
func (s *Service) GiveItem(ctx context.Context, snap *settings.Snapshot,
	actorID, userID string, itemID, quantity int64) (*UserItem, error) {

	if !snap.IsCurrencyManager(actorID) {
		return nil, common.ErrNotCurrencyManager
	}
	if quantity <= 0 {
		return nil, common.ErrInvalidAmount
	}
	ui, err := s.repo.GrantItem(ctx, snap.GuildID, userID, itemID, quantity)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"guild":    snap.GuildID,
		"actor":    actorID,
		"user":     userID,
		"item_id":  itemID,
		"quantity": quantity,
	}).Info("Админ-выдача предмета")
	return ui, nil
}

// TakeItem изымает предмет. Только для управляющих валютой.
func (s *Service) TakeItem(ctx context.Context, snap *settings.Snapshot,
	actorID, userID string, itemID, quantity int64) (*UserItem, error) {

	if !snap.IsCurrencyManager(actorID) {
		return nil, common.ErrNotCurrencyManager
	}
	if quantity <= 0 {
		return nil, common.ErrInvalidAmount
	}
	ui, err := s.repo.TakeItem(ctx, snap.GuildID, userID, itemID, quantity)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"guild":    snap.GuildID,
		"actor":    actorID,
		"user":     userID,
		"item_id":  itemID,
		"quantity": quantity,
	}).Info("Админ-изъятие предмета")
	return ui, nil
}

// UseItem расходует одну единицу обычного предмета.
func (s *Service) UseItem(ctx context.Context, guildID, userID string, itemID int64) (*UserItem, error) {
	ui, err := s.repo.GetUserItem(ctx, guildID, userID, itemID)
	if err != nil {
		return nil, err
	}
	if ui.Quantity <= 0 || ui.OwnershipExpired(time.Now()) {
		return nil, common.ErrItemNotOwned
	}
	used, err := s.repo.TakeItem(ctx, guildID, userID, itemID, 1)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"guild":   guildID,
		"user":    userID,
		"item_id": itemID,
	}).Info("Предмет использован")
	return used, nil
}

// ActivateRoleTicket активирует ролевой билет: пользователь выбирает роль
// из списка опций. Состояние сначала пишется в БД, затем выполняются
// Discord-вызовы; их сбои логируются и не откатывают запись.
func (s *Service) ActivateRoleTicket(ctx context.Context, guildID, userID string,
	itemID int64, roleID string) error {

	item, err := s.repo.GetItem(ctx, guildID, itemID)
	if err != nil {
		return err
	}
	if item.RoleTicket == nil {
		return common.ErrItemNotFound
	}
	ticket := item.RoleTicket

	valid := false
	for _, opt := range ticket.RoleOptionIDs {
		if opt == roleID {
			valid = true
			break
		}
	}
	if !valid {
		return common.ErrItemNotFound
	}

	ui, err := s.repo.GetUserItem(ctx, guildID, userID, itemID)
	if err != nil {
		return err
	}
	if ui.Quantity <= 0 || ui.OwnershipExpired(time.Now()) {
		return common.ErrItemNotOwned
	}

	var roleExpiresAt *time.Time
	if ticket.EffectDurationSeconds != nil {
		t := time.Now().Add(time.Duration(*ticket.EffectDurationSeconds) * time.Second)
		roleExpiresAt = &t
	}
	previousRole := ui.CurrentRoleID

	if err := s.repo.SetRoles(ctx, ui.ID, &roleID, ticket.FixedRoleID, roleExpiresAt); err != nil {
		return err
	}

	// Дальше только внешние вызовы: запись уже зафиксирована
	if ticket.RemovePreviousRole && previousRole != nil && *previousRole != roleID {
		if err := s.roles.RevokeRole(ctx, guildID, userID, *previousRole); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"guild": guildID, "user": userID, "role": *previousRole,
			}).Warn("Не удалось снять прежнюю роль билета")
		}
	}
	if err := s.roles.GrantRole(ctx, guildID, userID, roleID); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild": guildID, "user": userID, "role": roleID,
		}).Warn("Не удалось выдать выбранную роль билета")
	}
	if ticket.FixedRoleID != nil {
		if err := s.roles.GrantRole(ctx, guildID, userID, *ticket.FixedRoleID); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"guild": guildID, "user": userID, "role": *ticket.FixedRoleID,
			}).Warn("Не удалось выдать фиксированную роль билета")
		}
	}

	log.WithFields(log.Fields{
		"guild":   guildID,
		"user":    userID,
		"item_id": itemID,
		"role":    roleID,
	}).Info("Ролевой билет активирован")
	return nil
}

// SweepExpirations — часовой свип двух линий истечения.
// Возвращает (истёкших предметов, истёкших эффектов ролей).
func (s *Service) SweepExpirations(ctx context.Context) (int, int, error) {
	expired, err := s.repo.ExpiredItems(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range expired {
		s.revokeEntryRoles(ctx, e)
		if err := s.repo.FinishItemExpiry(ctx, e.UserItemID); err != nil {
			log.WithError(err).WithField("user_item", e.UserItemID).
				Error("Не удалось завершить истечение предмета")
			continue
		}
		log.WithFields(log.Fields{
			"guild": e.GuildID, "user": e.UserID, "item": e.ItemName,
		}).Info("Предмет истёк")
	}

	roleExpired, err := s.repo.ExpiredRoleEffects(ctx)
	if err != nil {
		return len(expired), 0, err
	}
	for _, e := range roleExpired {
		s.revokeEntryRoles(ctx, e)
		if err := s.repo.ClearRoles(ctx, e.UserItemID); err != nil {
			log.WithError(err).WithField("user_item", e.UserItemID).
				Error("Не удалось снять истёкшие роли")
			continue
		}
		log.WithFields(log.Fields{
			"guild": e.GuildID, "user": e.UserID, "item": e.ItemName,
		}).Info("Эффект роли истёк")
	}
	return len(expired), len(roleExpired), nil
}

// revokeEntryRoles снимает роли записи в Discord; сбой не прерывает свип.
func (s *Service) revokeEntryRoles(ctx context.Context, e *ExpiredEntry) {
	for _, roleID := range []*string{e.CurrentRoleID, e.FixedRoleID} {
		if roleID == nil {
			continue
		}
		if err := s.roles.RevokeRole(ctx, e.GuildID, e.UserID, *roleID); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"guild": e.GuildID, "user": e.UserID, "role": *roleID,
			}).Warn("Не удалось снять роль при истечении")
		}
	}
}

// TaxExemptOwners — владельцы предмета-освобождения от налога.
// Объединяется сервисом задач с льготами подписок перед налоговым свипом.
func (s *Service) TaxExemptOwners(ctx context.Context, guildID string) ([]string, error) {
	return s.repo.TaxExemptUsers(ctx, guildID)
}
