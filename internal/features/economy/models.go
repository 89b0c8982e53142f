// Package economy управляет кошельками двух валют гильдии и журналом операций.
// models.go описывает структуры для кошельков и транзакций.
package economy

import "time"

// CurrencyKind — вид валюты кошелька.
// У каждого пользователя в гильдии по одному кошельку на вид.
type CurrencyKind string

const (
	// CurrencyTopy — основная валюта (зарабатывается активностью, облагается налогом)
	CurrencyTopy CurrencyKind = "topy"
	// CurrencyRuby — дополнительная валюта
	CurrencyRuby CurrencyKind = "ruby"
)

// Valid сообщает, известен ли вид валюты.
func (k CurrencyKind) Valid() bool {
	return k == CurrencyTopy || k == CurrencyRuby
}

// Wallet представляет кошелёк пользователя в гильдии.
// Инвариант: Balance >= 0 всегда; TotalEarned монотонно растёт и учитывает
// только заработок (earn, interest, admin_grant), но не входящие переводы.
type Wallet struct {
	ID          int64        `db:"id"`
	GuildID     string       `db:"guild_id"`
	UserID      string       `db:"user_id"`
	Kind        CurrencyKind `db:"currency_kind"`
	Balance     int64        `db:"balance"`
	TotalEarned int64        `db:"total_earned"`
	DailyEarned int64        `db:"daily_earned"`
	EarnedDate  time.Time    `db:"earned_date"` // День, к которому относится DailyEarned
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

// Transaction — одна запись журнала операций. Журнал только дописывается:
// записи никогда не изменяются и не удаляются. BalanceAfter равен балансу
// кошелька сразу после применения операции и используется для аудита.
type Transaction struct {
	ID              int64        `db:"id"`
	GuildID         string       `db:"guild_id"`
	UserID          string       `db:"user_id"`
	Kind            CurrencyKind `db:"currency_kind"`
	TransactionType string       `db:"transaction_type"`
	Amount          int64        `db:"amount"`
	BalanceAfter    int64        `db:"balance_after"`
	Fee             int64        `db:"fee"`
	RelatedUserID   *string      `db:"related_user_id"` // Второй участник перевода
	Description     *string      `db:"description"`
	CreatedAt       time.Time    `db:"created_at"`
}

// Допустимые типы транзакций
const (
	TxTypeEarn            = "earn"             // Начисление из внешнего XP-конвейера
	TxTypeTransferIn      = "transfer_in"      // Входящий перевод
	TxTypeTransferOut     = "transfer_out"     // Исходящий перевод
	TxTypeTransferFee     = "transfer_fee"     // Комиссия перевода (в казну)
	TxTypeShopPurchase    = "shop_purchase"    // Покупка в магазине
	TxTypeShopFee         = "shop_fee"         // Комиссия магазина (в казну)
	TxTypeTax             = "tax"              // Месячный налог
	TxTypeInterest        = "interest"         // Проценты хранилища
	TxTypeAdminGrant      = "admin_grant"      // Выдача управляющим
	TxTypeAdminDistribute = "admin_distribute" // Раздача из казны
	TxTypeVaultDeposit    = "vault_deposit"    // Внесение в хранилище
	TxTypeVaultWithdraw   = "vault_withdraw"   // Снятие из хранилища
)

// IsEarningType сообщает, увеличивает ли тип транзакции счётчики заработка.
// Входящие переводы и возвраты из хранилища заработком не считаются.
func IsEarningType(txType string) bool {
	switch txType {
	case TxTypeEarn, TxTypeInterest, TxTypeAdminGrant, TxTypeAdminDistribute:
		return true
	}
	return false
}

// TaxResult — итог налоговой выгрузки по одной гильдии.
type TaxResult struct {
	GuildID      string
	Period       string
	TaxedWallets int   // Сколько кошельков обложено
	TotalTax     int64 // Суммарно собрано в казну
}
