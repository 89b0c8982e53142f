// Package treasury управляет казной гильдии — общим пулом, который пополняют
// комиссии и налог и опустошают раздачи управляющих.
// models.go описывает структуру казны.
package treasury

import "time"

// Treasury — казна гильдии, по одной строке на гильдию.
// Инвариант: баланс каждой валюты равен сумме собранных комиссий и налогов
// минус сумма раздач; проверяется воспроизведением журнала transactions
// по типам transfer_fee, shop_fee, tax, admin_distribute.
type Treasury struct {
	GuildID         string    `db:"guild_id"`
	TopyBalance     int64     `db:"topy_balance"`
	RubyBalance     int64     `db:"ruby_balance"`
	TopyCollected   int64     `db:"topy_collected"` // Всего собрано (комиссии + налог)
	RubyCollected   int64     `db:"ruby_collected"`
	TopyDistributed int64     `db:"topy_distributed"` // Всего роздано
	RubyDistributed int64     `db:"ruby_distributed"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}
