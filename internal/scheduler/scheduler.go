package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler управляет фоновыми задачами: периодической проверкой
// доступности бэкенда и ежедневным отчётом об использовании.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	healthSpec string
	reportSpec string
	healthFunc func(ctx context.Context) error
	reportFunc func(ctx context.Context) error
}

// New создает новый планировщик; spec-аргументы в формате cron
func New(healthSpec, reportSpec string) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		ctx:        ctx,
		cancel:     cancel,
		healthSpec: healthSpec,
		reportSpec: reportSpec,
	}
}

// SetHealthFunc устанавливает функцию проверки доступности бэкенда
func (s *Scheduler) SetHealthFunc(f func(ctx context.Context) error) {
	s.healthFunc = f
}

// SetReportFunc устанавливает функцию генерации ежедневного отчёта
func (s *Scheduler) SetReportFunc(f func(ctx context.Context) error) {
	s.reportFunc = f
}

// Start запускает планировщик
func (s *Scheduler) Start() error {
	if s.healthFunc != nil && s.healthSpec != "" {
		_, err := s.cron.AddFunc(s.healthSpec, func() {
			if err := s.healthFunc(s.ctx); err != nil {
				log.Printf("⚠️ Health probe failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
	}

	if s.reportFunc != nil && s.reportSpec != "" {
		_, err := s.cron.AddFunc(s.reportSpec, func() {
			log.Println("🕘 Triggered daily usage report")
			if err := s.reportFunc(s.ctx); err != nil {
				log.Printf("❌ Daily report generation failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
	}

	if len(s.cron.Entries()) == 0 {
		log.Println("⚠️ No scheduled jobs configured")
		return nil
	}

	s.cron.Start()
	log.Printf("📅 Scheduler started with %d job(s)", len(s.cron.Entries()))
	return nil
}

// Stop останавливает планировщик
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("📅 Scheduler stopped")
}
