// Package jobs — планировщик фоновых задач экономики.
//
// Один часовой тик, три ворота:
//   - налог: час 23 и завтра 1-е число (последний час месяца);
//   - проценты: 1-е число, час 0 (первый час нового месяца);
//   - истечения предметов: каждый час, без ворот.
//
// Ворота считаются во временной зоне планировщика. Идемпотентность
// месячных свипов обеспечивают маркеры периодов в БД, поэтому повторный
// тик в том же окне безопасен.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/economy"
	"guildhub.ru/discord-bot/internal/features/settings"
	"guildhub.ru/discord-bot/internal/features/shop"
	"guildhub.ru/discord-bot/internal/features/subscription"
	"guildhub.ru/discord-bot/internal/features/vault"
)

// Notifier — доставка сводок задач. Сбой логируется, задача не прерывается.
type Notifier interface {
	Notify(ctx context.Context, channelID, message string) error
}

// Scheduler запускает фоновые задачи по расписанию.
type Scheduler struct {
	cron            *cron.Cron
	location        *time.Location
	economy         *economy.Service
	vault           *vault.Service
	shop            *shop.Service
	subs            *subscription.Service
	settings        *settings.Repository
	notifier        Notifier
	reportChannelID string
}

// NewScheduler создаёт планировщик в заданной временной зоне.
func NewScheduler(
	location *time.Location,
	economySvc *economy.Service,
	vaultSvc *vault.Service,
	shopSvc *shop.Service,
	subsSvc *subscription.Service,
	settingsRepo *settings.Repository,
	notifier Notifier,
	reportChannelID string,
) *Scheduler {
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(location)),
		location:        location,
		economy:         economySvc,
		vault:           vaultSvc,
		shop:            shopSvc,
		subs:            subsSvc,
		settings:        settingsRepo,
		notifier:        notifier,
		reportChannelID: reportChannelID,
	}
}

// Start регистрирует часовой тик и запускает cron.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 * * * *", func() {
		s.RunHourly(context.Background(), time.Now().In(s.location))
	}); err != nil {
		return err
	}
	s.cron.Start()
	log.WithField("timezone", s.location.String()).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает cron и ждёт завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// RunHourly выполняет один тик: проверяет ворота и запускает свипы.
// Вынесен отдельно, чтобы тик можно было проверять с фиксированным временем.
func (s *Scheduler) RunHourly(ctx context.Context, now time.Time) {
	s.runExpirationSweep(ctx)

	if common.IsTaxWindow(now) {
		s.runTaxSweep(ctx, common.YearMonth(now))
	}
	if common.IsInterestWindow(now) {
		// Проценты начисляются за только что завершившийся месяц
		s.runInterestSweep(ctx, common.YearMonth(now.AddDate(0, 0, -1)))
	}
}

// report отправляет сводку в канал отчётов, если он настроен.
func (s *Scheduler) report(ctx context.Context, message string) {
	if s.notifier == nil || s.reportChannelID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, s.reportChannelID, message); err != nil {
		log.WithError(err).Warn("Не удалось отправить сводку задачи")
	}
}
