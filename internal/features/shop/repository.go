// Package shop — repository.go выполняет операции с таблицами shop_items
// и user_items. Покупка — одна транзакция БД: склад, лимиты, списания,
// комиссия и инвентарь фиксируются вместе или не фиксируются вовсе.
package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/economy"
	"guildhub.ru/discord-bot/internal/features/subscription"
	"guildhub.ru/discord-bot/internal/features/treasury"
)

// PgRepository — реализация Repository поверх pgxpool.
type PgRepository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий магазина.
func NewRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

const shopItemColumns = `id, guild_id, name, description, topy_price, ruby_price,
	currency_type, duration_days, stock, max_per_user, enabled, item_type,
	subscription_tier, role_ticket, created_at, updated_at`

func scanShopItem(row pgx.Row) (*ShopItem, error) {
	var it ShopItem
	err := row.Scan(
		&it.ID, &it.GuildID, &it.Name, &it.Description, &it.TopyPrice, &it.RubyPrice,
		&it.CurrencyType, &it.DurationDays, &it.Stock, &it.MaxPerUser, &it.Enabled,
		&it.ItemType, &it.SubscriptionTier, &it.RoleTicket, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// GetItem возвращает товар каталога.
// Отсутствующий товар — ErrItemNotFound (выключенность решает сервис).
func (r *PgRepository) GetItem(ctx context.Context, guildID string, itemID int64) (*ShopItem, error) {
	query := `SELECT ` + shopItemColumns + ` FROM shop_items WHERE guild_id = $1 AND id = $2`
	it, err := scanShopItem(r.db.QueryRow(ctx, query, guildID, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения товара: %w", err)
	}
	return it, nil
}

// ListItems возвращает включённые товары гильдии.
func (r *PgRepository) ListItems(ctx context.Context, guildID string) ([]*ShopItem, error) {
	query := `SELECT ` + shopItemColumns + ` FROM shop_items
		WHERE guild_id = $1 AND enabled ORDER BY id`
	rows, err := r.db.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога: %w", err)
	}
	defer rows.Close()

	var items []*ShopItem
	for rows.Next() {
		it, err := scanShopItem(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования товара: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetUserItem возвращает предмет инвентаря или ErrItemNotOwned.
func (r *PgRepository) GetUserItem(ctx context.Context, guildID, userID string, itemID int64) (*UserItem, error) {
	query := `
		SELECT id, guild_id, user_id, shop_item_id, quantity, expires_at,
		       current_role_id, fixed_role_id, role_expires_at, created_at, updated_at
		FROM user_items
		WHERE guild_id = $1 AND user_id = $2 AND shop_item_id = $3
	`
	var ui UserItem
	err := r.db.QueryRow(ctx, query, guildID, userID, itemID).Scan(
		&ui.ID, &ui.GuildID, &ui.UserID, &ui.ShopItemID, &ui.Quantity, &ui.ExpiresAt,
		&ui.CurrentRoleID, &ui.FixedRoleID, &ui.RoleExpiresAt, &ui.CreatedAt, &ui.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrItemNotOwned
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения предмета: %w", err)
	}
	return &ui, nil
}

// Purchase выполняет покупку одной транзакцией БД.
func (r *PgRepository) Purchase(ctx context.Context, p PurchaseParams) (*UserItem, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку товара: проверка и списание склада под замком
	var (
		stock        *int64
		maxPerUser   *int64
		durationDays int
		enabled      bool
	)
	err = tx.QueryRow(ctx, `
		SELECT stock, max_per_user, duration_days, enabled
		FROM shop_items WHERE guild_id = $1 AND id = $2
		FOR UPDATE
	`, p.GuildID, p.ItemID).Scan(&stock, &maxPerUser, &durationDays, &enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки товара: %w", err)
	}
	if !enabled {
		return nil, common.ErrItemNotFound
	}
	if stock != nil {
		if *stock < p.Quantity {
			return nil, &common.OutOfStockError{Requested: p.Quantity, Stock: *stock}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE shop_items SET stock = stock - $3, updated_at = NOW()
			WHERE guild_id = $1 AND id = $2
		`, p.GuildID, p.ItemID, p.Quantity); err != nil {
			return nil, fmt.Errorf("ошибка списания склада: %w", err)
		}
	}

	// Лимит на пользователя — по текущему количеству во владении
	if maxPerUser != nil {
		var owned int64
		err := tx.QueryRow(ctx, `
			SELECT quantity FROM user_items
			WHERE guild_id = $1 AND user_id = $2 AND shop_item_id = $3
			FOR UPDATE
		`, p.GuildID, p.UserID, p.ItemID).Scan(&owned)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ошибка проверки лимита: %w", err)
		}
		if owned+p.Quantity > *maxPerUser {
			return nil, &common.MaxPerUserError{Owned: owned, Requested: p.Quantity, MaxPerUser: *maxPerUser}
		}
	}

	// Списания с кошельков: цена сжигается, комиссия уходит в казну
	itemDesc := fmt.Sprintf("Покупка товара #%d x%d", p.ItemID, p.Quantity)
	for _, c := range p.Charges {
		kind := economy.CurrencyKind(c.Kind)
		balance, err := economy.LockWallet(ctx, tx, p.GuildID, p.UserID, kind)
		if err != nil {
			return nil, err
		}
		if _, err := economy.DebitLocked(ctx, tx, p.GuildID, p.UserID, kind,
			balance, c.Price+c.Fee, economy.TxTypeShopPurchase, c.Fee, nil, &itemDesc); err != nil {
			return nil, err
		}
		if c.Fee > 0 {
			treasuryBalance, err := treasury.CreditTx(ctx, tx, p.GuildID, c.Kind, c.Fee)
			if err != nil {
				return nil, err
			}
			if err := economy.InsertTransaction(ctx, tx, p.GuildID, p.UserID, kind,
				economy.TxTypeShopFee, c.Fee, treasuryBalance, 0, nil, &itemDesc); err != nil {
				return nil, err
			}
		}
	}

	ui, err := upsertUserItem(ctx, tx, p.GuildID, p.UserID, p.ItemID, p.Quantity, durationDays)
	if err != nil {
		return nil, err
	}

	// Товар-подписка: подписка выдаётся той же транзакцией, что и списания
	if p.SubscriptionTier != nil {
		if _, err := subscription.GrantOrExtendTx(ctx, tx, p.GuildID, p.UserID,
			*p.SubscriptionTier, p.SubscriptionDuration); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации покупки: %w", err)
	}
	return ui, nil
}

// upsertUserItem добавляет количество и продлевает срок владения.
// Математика срока — StackExpiry (expiry.go); SQL обязан давать тот же
// результат, что и функция.
func upsertUserItem(ctx context.Context, tx pgx.Tx, guildID, userID string,
	itemID, quantity int64, durationDays int) (*UserItem, error) {

	query := `
		INSERT INTO user_items (guild_id, user_id, shop_item_id, quantity, expires_at)
		VALUES ($1, $2, $3, $4,
			CASE WHEN $5::int > 0 THEN NOW() + ($5 * $4) * INTERVAL '1 day' ELSE NULL END)
		ON CONFLICT (guild_id, user_id, shop_item_id) DO UPDATE SET
			quantity = user_items.quantity + EXCLUDED.quantity,
			expires_at = CASE
				WHEN $5::int > 0 THEN GREATEST(COALESCE(user_items.expires_at, NOW()), NOW()) + ($5 * $4) * INTERVAL '1 day'
				ELSE user_items.expires_at
			END,
			updated_at = NOW()
		RETURNING id, guild_id, user_id, shop_item_id, quantity, expires_at,
		          current_role_id, fixed_role_id, role_expires_at, created_at, updated_at
	`
	var ui UserItem
	err := tx.QueryRow(ctx, query, guildID, userID, itemID, quantity, durationDays).Scan(
		&ui.ID, &ui.GuildID, &ui.UserID, &ui.ShopItemID, &ui.Quantity, &ui.ExpiresAt,
		&ui.CurrentRoleID, &ui.FixedRoleID, &ui.RoleExpiresAt, &ui.CreatedAt, &ui.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления инвентаря: %w", err)
	}
	return &ui, nil
}

// GrantItem добавляет предмет без оплаты (админ-выдача).
func (r *PgRepository) GrantItem(ctx context.Context, guildID, userID string, itemID, quantity int64) (*UserItem, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var durationDays int
	err = tx.QueryRow(ctx, `
		SELECT duration_days FROM shop_items WHERE guild_id = $1 AND id = $2
	`, guildID, itemID).Scan(&durationDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения товара: %w", err)
	}

	ui, err := upsertUserItem(ctx, tx, guildID, userID, itemID, quantity, durationDays)
	if err != nil {
		return nil, err
	}
	return ui, tx.Commit(ctx)
}

// TakeItem изымает предметы из инвентаря.
func (r *PgRepository) TakeItem(ctx context.Context, guildID, userID string, itemID, quantity int64) (*UserItem, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var owned int64
	err = tx.QueryRow(ctx, `
		SELECT quantity FROM user_items
		WHERE guild_id = $1 AND user_id = $2 AND shop_item_id = $3
		FOR UPDATE
	`, guildID, userID, itemID).Scan(&owned)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrItemNotOwned
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки предмета: %w", err)
	}
	if owned < quantity {
		return nil, &common.InsufficientQuantityError{Required: quantity, Available: owned}
	}

	var ui UserItem
	err = tx.QueryRow(ctx, `
		UPDATE user_items SET quantity = quantity - $4, updated_at = NOW()
		WHERE guild_id = $1 AND user_id = $2 AND shop_item_id = $3
		RETURNING id, guild_id, user_id, shop_item_id, quantity, expires_at,
		          current_role_id, fixed_role_id, role_expires_at, created_at, updated_at
	`, guildID, userID, itemID, quantity).Scan(
		&ui.ID, &ui.GuildID, &ui.UserID, &ui.ShopItemID, &ui.Quantity, &ui.ExpiresAt,
		&ui.CurrentRoleID, &ui.FixedRoleID, &ui.RoleExpiresAt, &ui.CreatedAt, &ui.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка изъятия предмета: %w", err)
	}
	return &ui, tx.Commit(ctx)
}

// SetRoles записывает состояние ролей билета после активации.
func (r *PgRepository) SetRoles(ctx context.Context, userItemID int64,
	currentRoleID, fixedRoleID *string, roleExpiresAt *time.Time) error {

	_, err := r.db.Exec(ctx, `
		UPDATE user_items SET current_role_id = $2, fixed_role_id = $3,
		       role_expires_at = $4, updated_at = NOW()
		WHERE id = $1
	`, userItemID, currentRoleID, fixedRoleID, roleExpiresAt)
	if err != nil {
		return fmt.Errorf("ошибка записи ролей: %w", err)
	}
	return nil
}

// ExpiredItems — предметы с истёкшим владением, ещё не обработанные свипом.
// Условие WHERE — UserItem.NeedsExpirySweep (expiry.go): повторный запуск
// ничего не выбирает, обработка обнуляет и количество, и ролевые поля.
func (r *PgRepository) ExpiredItems(ctx context.Context) ([]*ExpiredEntry, error) {
	query := `
		SELECT ui.id, ui.guild_id, ui.user_id, si.name, ui.current_role_id, ui.fixed_role_id
		FROM user_items ui
		JOIN shop_items si ON si.id = ui.shop_item_id
		WHERE ui.expires_at IS NOT NULL AND ui.expires_at <= NOW()
		  AND (ui.quantity > 0 OR ui.current_role_id IS NOT NULL OR ui.fixed_role_id IS NOT NULL)
		ORDER BY ui.guild_id, ui.id
	`
	return r.queryExpired(ctx, query)
}

// ExpiredRoleEffects — предметы, у которых истёк эффект роли, а владение
// живо. Условие WHERE — UserItem.RoleEffectLapsed (expiry.go).
func (r *PgRepository) ExpiredRoleEffects(ctx context.Context) ([]*ExpiredEntry, error) {
	query := `
		SELECT ui.id, ui.guild_id, ui.user_id, si.name, ui.current_role_id, ui.fixed_role_id
		FROM user_items ui
		JOIN shop_items si ON si.id = ui.shop_item_id
		WHERE ui.role_expires_at IS NOT NULL AND ui.role_expires_at <= NOW()
		  AND (ui.current_role_id IS NOT NULL OR ui.fixed_role_id IS NOT NULL)
		  AND (ui.expires_at IS NULL OR ui.expires_at > NOW())
		ORDER BY ui.guild_id, ui.id
	`
	return r.queryExpired(ctx, query)
}

func (r *PgRepository) queryExpired(ctx context.Context, query string) ([]*ExpiredEntry, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки истечений: %w", err)
	}
	defer rows.Close()

	var entries []*ExpiredEntry
	for rows.Next() {
		var e ExpiredEntry
		if err := rows.Scan(&e.UserItemID, &e.GuildID, &e.UserID, &e.ItemName,
			&e.CurrentRoleID, &e.FixedRoleID); err != nil {
			return nil, fmt.Errorf("ошибка сканирования истечения: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// FinishItemExpiry завершает владение истёкшим предметом:
// количество и ролевые поля обнуляются, строка остаётся ради истории.
func (r *PgRepository) FinishItemExpiry(ctx context.Context, userItemID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE user_items SET quantity = 0, current_role_id = NULL,
		       fixed_role_id = NULL, role_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, userItemID)
	if err != nil {
		return fmt.Errorf("ошибка завершения истечения: %w", err)
	}
	return nil
}

// ClearRoles снимает ролевые поля, не трогая владение.
func (r *PgRepository) ClearRoles(ctx context.Context, userItemID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE user_items SET current_role_id = NULL, fixed_role_id = NULL,
		       role_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, userItemID)
	if err != nil {
		return fmt.Errorf("ошибка снятия ролей: %w", err)
	}
	return nil
}

// TaxExemptUsers — владельцы действующего предмета-освобождения от налога.
func (r *PgRepository) TaxExemptUsers(ctx context.Context, guildID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ui.user_id
		FROM user_items ui
		JOIN shop_items si ON si.id = ui.shop_item_id
		WHERE ui.guild_id = $1 AND si.item_type = $2 AND ui.quantity > 0
		  AND (ui.expires_at IS NULL OR ui.expires_at > NOW())
	`, guildID, ItemTypeTaxExemption)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки освобождений: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования освобождения: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
