package common

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPercentFloor(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		percent  string
		expected int64
	}{
		{"комиссия перевода 1.2% от 1000", 1000, "1.2", 12},
		{"налог 3.3% от 10000", 10000, "3.3", 330},
		{"дробный результат округляется вниз", 99, "1.2", 1},
		{"меньше одной единицы — ноль", 10, "1.2", 0},
		{"целый процент", 200, "50", 100},
		{"нулевая сумма", 0, "3.3", 0},
		{"нулевой процент", 1000, "0", 0},
		{"ставка хранилища 2.5% от 500000", 500000, "2.5", 12500},
		// float64 здесь дал бы 1.2000000000000002 на некоторых суммах
		{"точность на больших суммах", 1_000_000_007, "1.2", 12_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			percent := decimal.RequireFromString(tt.percent)
			assert.Equal(t, tt.expected, PercentFloor(tt.amount, percent))
		})
	}
}

func TestYearMonth(t *testing.T) {
	assert.Equal(t, "2026-08", YearMonth(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-01", YearMonth(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestIsTaxWindow(t *testing.T) {
	tests := []struct {
		name     string
		at       time.Time
		expected bool
	}{
		{"последний день августа, 23 часа", time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC), true},
		{"последний день августа, 22 часа", time.Date(2026, 8, 31, 22, 0, 0, 0, time.UTC), false},
		{"не последний день, 23 часа", time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC), false},
		{"февраль невисокосного года", time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC), true},
		{"28 февраля високосного года", time.Date(2028, 2, 28, 23, 0, 0, 0, time.UTC), false},
		{"29 февраля високосного года", time.Date(2028, 2, 29, 23, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTaxWindow(tt.at))
		})
	}
}

func TestIsInterestWindow(t *testing.T) {
	assert.True(t, IsInterestWindow(time.Date(2026, 9, 1, 0, 30, 0, 0, time.UTC)))
	assert.False(t, IsInterestWindow(time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC)))
	assert.False(t, IsInterestWindow(time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)))
}
