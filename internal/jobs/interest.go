// Процентный свип: первый час нового месяца, за только что завершившийся.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"guildhub.ru/discord-bot/internal/common"
)

// runInterestSweep начисляет месячные проценты по хранилищам всех гильдий.
func (s *Scheduler) runInterestSweep(ctx context.Context, period string) {
	runID := uuid.NewString()
	logger := log.WithFields(log.Fields{"run": runID, "period": period, "job": "interest"})
	logger.Info("Процентный свип начат")

	guilds, err := s.economy.ListGuildIDs(ctx)
	if err != nil {
		logger.WithError(err).Error("Не удалось получить список гильдий")
		return
	}

	var processed, skipped int
	var totalInterest int64
	for _, guildID := range guilds {
		snap, err := s.settings.Load(ctx, guildID)
		if err != nil {
			logger.WithError(err).WithField("guild", guildID).Error("Ошибка загрузки настроек")
			continue
		}
		result, err := s.vault.ProcessMonthlyInterest(ctx, snap, period)
		var already *common.AlreadyProcessedError
		switch {
		case errors.As(err, &already):
			skipped++
		case err != nil:
			logger.WithError(err).WithField("guild", guildID).Error("Сбой процентного свипа гильдии")
		default:
			processed++
			totalInterest += result.TotalInterest
		}
	}

	logger.WithFields(log.Fields{
		"guilds":         len(guilds),
		"processed":      processed,
		"skipped":        skipped,
		"total_interest": totalInterest,
	}).Info("Процентный свип завершён")
	s.report(ctx, fmt.Sprintf(
		"Проценты за %s: гильдий обработано %d, пропущено %d, начислено %d",
		period, processed, skipped, totalInterest))
}
