// Package shop управляет магазином гильдии и инвентарём пользователей.
// models.go описывает товары каталога и предметы во владении.
//
// У предмета две НЕЗАВИСИМЫЕ линии истечения:
//   - истечение самого предмета (expires_at): заканчивается владение;
//   - истечение эффекта роли (role_expires_at): роль снимается, предмет
//     остаётся во владении.
//
// Их нельзя сводить в одно поле — иначе снятая роль «воскресает» после
// истечения предмета или наоборот. Часовой свип обрабатывает линии двумя
// раздельными запросами.
package shop

import (
	"time"

	"guildhub.ru/discord-bot/internal/features/settings"
)

// CurrencyType — в какой валюте оплачивается товар.
type CurrencyType string

const (
	CurrencyTypeTopy CurrencyType = "topy"
	CurrencyTypeRuby CurrencyType = "ruby"
	// CurrencyTypeBoth — товар стоит обе валюты сразу (и topy, и ruby)
	CurrencyTypeBoth CurrencyType = "both"
)

// Типы товаров с особым поведением
const (
	ItemTypeNormal = "normal"
	// ItemTypeVaultSubscription — покупка выдаёт/продлевает подписку хранилища
	ItemTypeVaultSubscription = "vault_subscription"
	// ItemTypeTaxExemption — владение освобождает от месячного налога
	ItemTypeTaxExemption = "tax_exemption"
)

// RoleTicketConfig — настройка ролевого билета (хранится в JSONB).
// Пользователь активирует предмет, выбирая роль из списка опций.
type RoleTicketConfig struct {
	// RoleOptionIDs — роли на выбор
	RoleOptionIDs []string `json:"role_option_ids"`
	// RemovePreviousRole — снимать ли прежнюю выбранную роль при повторном выборе
	RemovePreviousRole bool `json:"remove_previous_role"`
	// FixedRoleID — дополнительная роль, выдаваемая всегда, независимо от выбора
	FixedRoleID *string `json:"fixed_role_id,omitempty"`
	// EffectDurationSeconds — срок действия роли, отдельный от срока предмета
	EffectDurationSeconds *int64 `json:"effect_duration_seconds,omitempty"`
}

// ShopItem — товар каталога гильдии.
type ShopItem struct {
	ID               int64             `db:"id"`
	GuildID          string            `db:"guild_id"`
	Name             string            `db:"name"`
	Description      *string           `db:"description"`
	TopyPrice        int64             `db:"topy_price"`
	RubyPrice        int64             `db:"ruby_price"`
	CurrencyType     CurrencyType      `db:"currency_type"`
	DurationDays     int               `db:"duration_days"` // 0 = бессрочный
	Stock            *int64            `db:"stock"`         // nil = не ограничен
	MaxPerUser       *int64            `db:"max_per_user"`  // nil = не ограничен
	Enabled          bool              `db:"enabled"`
	ItemType         string            `db:"item_type"`
	SubscriptionTier *settings.Tier    `db:"subscription_tier"` // Для vault_subscription
	RoleTicket       *RoleTicketConfig `db:"role_ticket"`
	CreatedAt        time.Time         `db:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at"`
}

// UserItem — предмет во владении пользователя.
// Quantity = 0 — терминальное состояние; строка остаётся ради истории.
type UserItem struct {
	ID            int64      `db:"id"`
	GuildID       string     `db:"guild_id"`
	UserID        string     `db:"user_id"`
	ShopItemID    int64      `db:"shop_item_id"`
	Quantity      int64      `db:"quantity"`
	ExpiresAt     *time.Time `db:"expires_at"`      // Истечение владения
	CurrentRoleID *string    `db:"current_role_id"` // Выбранная роль билета
	FixedRoleID   *string    `db:"fixed_role_id"`   // Фиксированная роль билета
	RoleExpiresAt *time.Time `db:"role_expires_at"` // Истечение эффекта роли
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// PurchaseResult — итог покупки.
type PurchaseResult struct {
	Item     *ShopItem
	UserItem *UserItem
	PaidTopy int64 // Уплачено topy (цена + комиссия)
	PaidRuby int64 // Уплачено ruby (цена + комиссия)
	FeeTopy  int64 // Из них комиссия в казну
	FeeRuby  int64
}

// ExpiredEntry — строка инвентаря, подлежащая обработке свипом истечений.
type ExpiredEntry struct {
	UserItemID    int64
	GuildID       string
	UserID        string
	ItemName      string
	CurrentRoleID *string
	FixedRoleID   *string
}
