// Часовой свип истечений предметов и эффектов ролей.
package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// runExpirationSweep обрабатывает обе линии истечения во всех гильдиях.
// Запросы репозитория сами отфильтровывают уже обработанные строки,
// поэтому повторный запуск безопасен.
func (s *Scheduler) runExpirationSweep(ctx context.Context) {
	runID := uuid.NewString()
	logger := log.WithFields(log.Fields{"run": runID, "job": "expiration"})

	items, roles, err := s.shop.SweepExpirations(ctx)
	if err != nil {
		logger.WithError(err).Error("Сбой свипа истечений")
		return
	}
	if items == 0 && roles == 0 {
		return
	}
	logger.WithFields(log.Fields{
		"expired_items": items,
		"expired_roles": roles,
	}).Info("Свип истечений завершён")
	s.report(ctx, fmt.Sprintf(
		"Истечения: предметов %d, эффектов ролей %d", items, roles))
}
