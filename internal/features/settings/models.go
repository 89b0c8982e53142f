// Package settings управляет пер-гильдийными настройками экономики.
// models.go описывает снапшот настроек.
//
// Ядро никогда не читает настройки из глобального состояния: обработчик
// (или фоновая задача) загружает Snapshot один раз и передаёт его в каждую
// операцию явно. Так операции детерминированы и тестируются без живой БД.
package settings

import "github.com/shopspring/decimal"

// Tier — уровень подписки хранилища.
type Tier string

const (
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// TierConfig — параметры одного уровня подписки.
type TierConfig struct {
	StorageLimit int64           // Максимальный вклад в хранилище
	InterestRate decimal.Decimal // Месячная ставка, процентов
	FeeExempt    bool            // Освобождение от комиссий перевода и магазина
	TaxExempt    bool            // Освобождение от месячного налога
}

// Snapshot — неизменяемый снимок настроек гильдии на момент операции.
type Snapshot struct {
	GuildID string

	TransferFeePercent decimal.Decimal // Комиссия перевода, процентов
	ShopFeePercent     decimal.Decimal // Комиссия магазина, процентов
	TaxPercent         decimal.Decimal // Месячный налог, процентов
	TaxEnabled         bool            // Включён ли налог в гильдии
	MinTransfer        int64           // Минимальная сумма перевода

	PrimaryCurrencyName   string // Отображаемое имя основной валюты
	SecondaryCurrencyName string // Отображаемое имя дополнительной валюты

	// CurrencyManagerIDs — пользователи с правом админ-выдачи и раздачи из казны
	CurrencyManagerIDs []string

	Tiers map[Tier]TierConfig
}

// IsCurrencyManager проверяет, входит ли пользователь в список управляющих.
func (s *Snapshot) IsCurrencyManager(userID string) bool {
	for _, id := range s.CurrencyManagerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// TierConfig возвращает параметры тира. Неизвестный тир — нулевая
// конфигурация без льгот: просроченные или мусорные записи подписки
// не дают доступа к хранилищу.
func (s *Snapshot) TierConfig(tier Tier) (TierConfig, bool) {
	cfg, ok := s.Tiers[tier]
	return cfg, ok
}
