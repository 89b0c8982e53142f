// Налоговый свип: последний час месяца, по всем гильдиям.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/economy"
)

// runTaxSweep взимает месячный налог с topy-кошельков каждой гильдии.
// Сбой одной гильдии не останавливает обход остальных.
func (s *Scheduler) runTaxSweep(ctx context.Context, period string) {
	runID := uuid.NewString()
	logger := log.WithFields(log.Fields{"run": runID, "period": period, "job": "tax"})
	logger.Info("Налоговый свип начат")

	guilds, err := s.economy.ListGuildIDs(ctx)
	if err != nil {
		logger.WithError(err).Error("Не удалось получить список гильдий")
		return
	}

	var processed, skipped int
	var totalTax int64
	for _, guildID := range guilds {
		result, err := s.taxGuild(ctx, guildID, period)
		var already *common.AlreadyProcessedError
		switch {
		case errors.As(err, &already):
			skipped++
		case err != nil:
			logger.WithError(err).WithField("guild", guildID).Error("Сбой налогового свипа гильдии")
		case result != nil:
			processed++
			totalTax += result.TotalTax
		}
	}

	logger.WithFields(log.Fields{
		"guilds":    len(guilds),
		"processed": processed,
		"skipped":   skipped,
		"total_tax": totalTax,
	}).Info("Налоговый свип завершён")
	s.report(ctx, fmt.Sprintf(
		"Налог за %s: гильдий обработано %d, пропущено %d, собрано %d",
		period, processed, skipped, totalTax))
}

// taxGuild — одна гильдия: снимок настроек, объединение льгот, свип.
func (s *Scheduler) taxGuild(ctx context.Context, guildID, period string) (*economy.TaxResult, error) {
	snap, err := s.settings.Load(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки настроек: %w", err)
	}

	// Льготы: подписка с TaxExempt-тиром и предмет-освобождение
	exempt, err := s.subs.TaxExemptUsers(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("ошибка льгот подписок: %w", err)
	}
	owners, err := s.shop.TaxExemptOwners(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("ошибка льгот предметов: %w", err)
	}
	for _, userID := range owners {
		exempt[userID] = true
	}

	return s.economy.ProcessMonthlyTax(ctx, snap, period, exempt)
}
