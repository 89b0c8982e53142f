// Package shop — expiry.go: правила двух линий истечения в виде чистых
// функций. SQL репозитория (апсерт инвентаря и два запроса свипа) повторяет
// ровно эту математику; тесты закрепляют её здесь, где её можно выполнить
// без БД.
package shop

import "time"

// StackExpiry вычисляет новый срок владения при покупке или выдаче:
//
//	max(текущий срок, now) + durationDays × quantity
//
// Докупка к непросроченному предмету продлевает срок с его конца,
// к просроченному — заново от текущего момента. Нулевой durationDays —
// бессрочный предмет, срок не меняется.
//
// Зеркало SQL: GREATEST(COALESCE(expires_at, NOW()), NOW()) +
// (duration_days * quantity) * INTERVAL '1 day' в upsertUserItem.
func StackExpiry(current *time.Time, now time.Time, durationDays int, quantity int64) *time.Time {
	if durationDays <= 0 {
		return current
	}
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	expires := base.Add(time.Duration(int64(durationDays)*quantity) * 24 * time.Hour)
	return &expires
}

// OwnershipExpired сообщает, истёк ли срок владения предметом.
// Бессрочный предмет (ExpiresAt == nil) не истекает.
func (ui *UserItem) OwnershipExpired(now time.Time) bool {
	return ui.ExpiresAt != nil && !ui.ExpiresAt.After(now)
}

// NeedsExpirySweep сообщает, должен ли свип завершить владение предметом:
// срок истёк, а строка ещё не обработана (есть количество или роли).
// После FinishItemExpiry предикат ложен — повторный свип ничего не выберет.
//
// Зеркало SQL: условие WHERE запроса ExpiredItems.
func (ui *UserItem) NeedsExpirySweep(now time.Time) bool {
	return ui.OwnershipExpired(now) &&
		(ui.Quantity > 0 || ui.CurrentRoleID != nil || ui.FixedRoleID != nil)
}

// RoleEffectLapsed сообщает, истёк ли эффект роли при живом владении:
// роль снимается, предмет остаётся. Истёкшее владение обрабатывает другая
// линия (NeedsExpirySweep) — предикаты не пересекаются ни на какой строке.
//
// Зеркало SQL: условие WHERE запроса ExpiredRoleEffects.
func (ui *UserItem) RoleEffectLapsed(now time.Time) bool {
	return ui.RoleExpiresAt != nil && !ui.RoleExpiresAt.After(now) &&
		(ui.CurrentRoleID != nil || ui.FixedRoleID != nil) &&
		!ui.OwnershipExpired(now)
}
