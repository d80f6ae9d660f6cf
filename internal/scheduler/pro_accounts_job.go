package scheduler

import (
	"context"
	"fmt"
	"time"

	"ai-assistant/internal/metrics"
	"ai-assistant/internal/subscription"
	"ai-assistant/pkg/models"

	"go.uber.org/zap"
)

// ProLister возвращает аккаунты с флагом is_pro
type ProLister interface {
	ListPro(ctx context.Context) ([]*models.Account, error)
}

// ProAccountsJob пересчитывает количество аккаунтов с действующим PRO
type ProAccountsJob struct {
	accounts ProLister
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewProAccountsJob создает задачу подсчета PRO аккаунтов
func NewProAccountsJob(accounts ProLister, m *metrics.Metrics, logger *zap.Logger) *ProAccountsJob {
	return &ProAccountsJob{
		accounts: accounts,
		metrics:  m,
		now:      time.Now,
		logger:   logger,
	}
}

func (j *ProAccountsJob) Name() string {
	return "pro_accounts"
}

// Run считает только аккаунты, у которых срок еще не истек
func (j *ProAccountsJob) Run(ctx context.Context) error {
	active, err := j.Count(ctx)
	if err != nil {
		return err
	}

	j.metrics.SetActiveProAccounts(active)
	j.logger.Info("пересчитаны PRO аккаунты", zap.Int("active", active))
	return nil
}

// Count возвращает количество действующих PRO аккаунтов
func (j *ProAccountsJob) Count(ctx context.Context) (int, error) {
	accounts, err := j.accounts.ListPro(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения PRO аккаунтов: %w", err)
	}

	now := j.now()
	active := 0
	for _, acc := range accounts {
		if subscription.IsValid(acc, now) {
			active++
		}
	}
	return active, nil
}
