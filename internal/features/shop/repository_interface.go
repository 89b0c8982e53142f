// Package shop — repository_interface.go описывает контракт хранилища магазина.
package shop

import (
	"context"
	"time"

	"guildhub.ru/discord-bot/internal/features/settings"
)

// Charge — списание с одного кошелька при покупке.
type Charge struct {
	Kind  string // "topy" или "ruby"
	Price int64  // Стоимость (сжигается)
	Fee   int64  // Комиссия (уходит в казну)
}

// PurchaseParams — параметры атомарной покупки.
type PurchaseParams struct {
	GuildID  string
	UserID   string
	ItemID   int64
	Quantity int64
	Charges  []Charge

	// Для товара-подписки: тир и срок выдаются в той же транзакции БД,
	// что и списания. Деньги не могут уйти без подписки.
	SubscriptionTier     *settings.Tier
	SubscriptionDuration time.Duration
}

// Repository — контракт хранилища каталога и инвентаря.
type Repository interface {
	GetItem(ctx context.Context, guildID string, itemID int64) (*ShopItem, error)
	ListItems(ctx context.Context, guildID string) ([]*ShopItem, error)
	GetUserItem(ctx context.Context, guildID, userID string, itemID int64) (*UserItem, error)

	// Purchase выполняет покупку одной транзакцией БД: проверка и списание
	// склада, лимит на пользователя, списания с кошельков, комиссия в казну,
	// апсерт инвентаря с продлением срока. Либо всё, либо ничего.
	Purchase(ctx context.Context, p PurchaseParams) (*UserItem, error)

	// GrantItem добавляет предмет без оплаты (та же математика количества
	// и срока, что у покупки).
	GrantItem(ctx context.Context, guildID, userID string, itemID int64, quantity int64) (*UserItem, error)

	// TakeItem изымает предметы. Нет строки — ErrItemNotOwned;
	// не хватает — *common.InsufficientQuantityError.
	TakeItem(ctx context.Context, guildID, userID string, itemID int64, quantity int64) (*UserItem, error)

	// SetRoles записывает текущее состояние ролей билета.
	SetRoles(ctx context.Context, userItemID int64, currentRoleID, fixedRoleID *string, roleExpiresAt *time.Time) error

	// ExpiredItems — предметы с истёкшим владением, требующие обработки.
	ExpiredItems(ctx context.Context) ([]*ExpiredEntry, error)
	// ExpiredRoleEffects — предметы с истёкшим эффектом роли при живом владении.
	ExpiredRoleEffects(ctx context.Context) ([]*ExpiredEntry, error)
	// FinishItemExpiry обнуляет владение и роли истёкшего предмета.
	FinishItemExpiry(ctx context.Context, userItemID int64) error
	// ClearRoles снимает только ролевые поля (владение сохраняется).
	ClearRoles(ctx context.Context, userItemID int64) error

	// TaxExemptUsers — владельцы действующего предмета-освобождения от налога.
	TaxExemptUsers(ctx context.Context, guildID string) ([]string, error)
}
