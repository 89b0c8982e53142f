// Package vault управляет хранилищем — процентным суб-леджером для
// держателей подписки. Вклад ограничен лимитом тира; раз в месяц на вклад
// начисляются сложные проценты (прямо в хранилище, не на кошелёк).
// models.go описывает структуры хранилища.
package vault

import "time"

// Vault — вклад пользователя в гильдии.
// Инвариант: 0 <= DepositedAmount, и на момент каждого депозита
// DepositedAmount <= лимит тира. Понижение тира задним числом вклад
// не урезает — лимит проверяется только при внесении.
type Vault struct {
	ID              int64     `db:"id"`
	GuildID         string    `db:"guild_id"`
	UserID          string    `db:"user_id"`
	DepositedAmount int64     `db:"deposited_amount"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Summary — сводка хранилища для отображения.
type Summary struct {
	DepositedAmount int64
	StorageLimit    int64  // Лимит текущего тира
	Tier            string // Действующий тир
	WalletBalance   int64  // Баланс topy-кошелька для удобства
}

// InterestResult — итог месячного начисления процентов по одной гильдии.
type InterestResult struct {
	GuildID       string
	Period        string
	VaultCount    int   // Скольким вкладам начислено
	TotalInterest int64 // Суммарно начислено
}
