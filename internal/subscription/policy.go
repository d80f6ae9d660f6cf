package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-assistant/internal/metrics"
	"ai-assistant/internal/store"
	"ai-assistant/pkg/models"

	"go.uber.org/zap"
)

// Источники выдачи PRO
const (
	SourceReferral = "referral"
	SourceApproval = "approval"
	SourceOperator = "operator"
)

// AccountRepository интерфейс для работы с аккаунтами
type AccountRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Account, error)
	SetProStatus(ctx context.Context, userID int64, isPro bool, expiry string) error
}

// Policy решает, действует ли PRO, и меняет его статус
type Policy struct {
	accounts AccountRepository
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewPolicy создает политику подписки
func NewPolicy(accounts AccountRepository, m *metrics.Metrics, logger *zap.Logger) *Policy {
	return &Policy{
		accounts: accounts,
		metrics:  m,
		logger:   logger,
	}
}

// IsValid возвращает true, только если is_pro установлен и expiry строго позже now.
// Пустая или нераспознанная дата считается недействительной
func IsValid(acc *models.Account, now time.Time) bool {
	if acc == nil || !acc.IsPro {
		return false
	}
	expiry, err := time.ParseInLocation(models.ExpiryLayout, acc.Expiry, now.Location())
	if err != nil {
		return false
	}
	return expiry.After(now)
}

// ExpiryAfter вычисляет дату окончания подписки
func ExpiryAfter(now time.Time, days int) string {
	return now.AddDate(0, 0, days).Format(models.ExpiryLayout)
}

// Grant выдает PRO на days дней от now. Предыдущий срок перезаписывается
func (p *Policy) Grant(ctx context.Context, userID int64, days int, now time.Time, source string) (string, error) {
	if days <= 0 {
		return "", fmt.Errorf("некорректная длительность подписки: %d", days)
	}

	expiry := ExpiryAfter(now, days)
	if err := p.accounts.SetProStatus(ctx, userID, true, expiry); err != nil {
		return "", fmt.Errorf("ошибка выдачи PRO: %w", err)
	}

	p.metrics.RecordProGrant(source)
	p.logger.Info("PRO выдан",
		zap.Int64("user_id", userID),
		zap.Int("days", days),
		zap.String("expiry", expiry),
		zap.String("source", source))

	return expiry, nil
}

// Revoke отменяет PRO. Отмена отличается от отсутствия подписки значением expiry
func (p *Policy) Revoke(ctx context.Context, userID int64) error {
	if err := p.accounts.SetProStatus(ctx, userID, false, models.ExpiryCancelled); err != nil {
		return fmt.Errorf("ошибка отмены PRO: %w", err)
	}

	p.metrics.RecordProRevocation()
	p.logger.Info("PRO отменен", zap.Int64("user_id", userID))
	return nil
}

// IsProValid загружает аккаунт и проверяет PRO. Отсутствующий аккаунт не имеет PRO
func (p *Policy) IsProValid(ctx context.Context, userID int64, now time.Time) (bool, error) {
	acc, err := p.accounts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return IsValid(acc, now), nil
}

// Status возвращает то, что пользователь видит в разделе аккаунта
func (p *Policy) Status(ctx context.Context, userID int64, now time.Time) (models.AccountStatus, error) {
	status := models.AccountStatus{
		UserID: userID,
		Expiry: models.ExpiryNone,
	}

	acc, err := p.accounts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return status, nil
		}
		return status, err
	}

	status.ProActive = IsValid(acc, now)
	status.Expiry = acc.ExpiryOrNone()
	status.ReferralCount = acc.ReferralCount
	return status, nil
}
