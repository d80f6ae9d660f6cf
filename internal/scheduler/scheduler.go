package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job интерфейс для периодических задач
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler управляет запуском периодических задач по cron расписанию
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	jobs   []Job
}

// NewScheduler создает новый планировщик задач
func NewScheduler(logger *zap.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger))),
		logger: logger,
	}
}

// AddJob регистрирует задачу. Каждый запуск ограничен timeout
func (s *Scheduler) AddJob(ctx context.Context, spec string, timeout time.Duration, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		s.run(runCtx, job)
	})
	if err != nil {
		return fmt.Errorf("ошибка регистрации задачи %s: %w", job.Name(), err)
	}

	s.jobs = append(s.jobs, job)
	s.logger.Info("задача зарегистрирована",
		zap.String("job", job.Name()),
		zap.String("schedule", spec))
	return nil
}

// Start запускает все задачи сразу, затем по расписанию
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("запуск планировщика задач", zap.Int("jobs_count", len(s.jobs)))

	for _, job := range s.jobs {
		s.run(ctx, job)
	}
	s.cron.Start()
}

// Stop останавливает планировщик. Контекст завершается, когда закончатся текущие задачи
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("остановка планировщика задач")
	return s.cron.Stop()
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	s.logger.Debug("запуск задачи", zap.String("job", job.Name()))

	if err := job.Run(ctx); err != nil {
		s.logger.Error("ошибка выполнения задачи",
			zap.String("job", job.Name()),
			zap.Error(err))
	}
}
