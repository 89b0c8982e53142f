// Package common содержит общие утилиты, используемые во всём проекте.
// helpers.go: целочисленная процентная математика и работа с месячными периодами.
package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PercentFloor вычисляет floor(amount × percent / 100) без плавающей точки.
// Проценты в настройках гильдии бывают дробными (например, комиссия 1.2%),
// поэтому прямое целочисленное умножение не подходит, а float64 на денежном
// пути запрещён. decimal даёт точный результат, который мы округляем вниз.
//
// Примеры:
//
//	PercentFloor(1000, "1.2")  → 12
//	PercentFloor(10000, "3.3") → 330
//	PercentFloor(99, "1.2")    → 1 (1.188 → 1)
func PercentFloor(amount int64, percent decimal.Decimal) int64 {
	if amount <= 0 || percent.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(percent).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}

// YearMonth возвращает ключ месячного периода в формате "2006-01".
// Используется как часть уникального ключа в monthly_processing.
func YearMonth(t time.Time) string {
	return t.Format("2006-01")
}

// IsLastDayOfMonth сообщает, является ли t последним днём месяца.
func IsLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}

// IsTaxWindow — окно запуска налоговой выгрузки: последний день месяца, 23-й час.
func IsTaxWindow(t time.Time) bool {
	return t.Hour() == 23 && IsLastDayOfMonth(t)
}

// IsInterestWindow — окно начисления процентов: первый день месяца, 0-й час.
func IsInterestWindow(t time.Time) bool {
	return t.Day() == 1 && t.Hour() == 0
}

// FormatAmount форматирует сумму с названием валюты для логов и уведомлений.
func FormatAmount(amount int64, currencyName string) string {
	return fmt.Sprintf("%d %s", amount, currencyName)
}
