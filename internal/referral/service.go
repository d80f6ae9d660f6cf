package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-assistant/internal/metrics"
	"ai-assistant/internal/notify"
	"ai-assistant/internal/store"
	"ai-assistant/internal/subscription"

	"go.uber.org/zap"
)

// AccountRepository интерфейс для работы со счетчиком рефералов
type AccountRepository interface {
	IncrementReferralCount(ctx context.Context, userID int64) (int, error)
}

// Granter выдает PRO, реализуется subscription.Policy
type Granter interface {
	Grant(ctx context.Context, userID int64, days int, now time.Time, source string) (string, error)
}

// Joiner новый пользователь, пришедший по реферальной ссылке
type Joiner struct {
	UserID    int64
	Username  string
	FirstName string
}

// Label возвращает имя для уведомления пригласившему
func (j Joiner) Label() string {
	if j.Username != "" {
		return "@" + j.Username
	}
	if j.FirstName != "" {
		return j.FirstName
	}
	return "Someone"
}

// Result итог привязки реферала
type Result struct {
	Credited      bool
	ReferralCount int
	Rewarded      bool
	Expiry        string
	Notified      bool
}

// Config фиксированные параметры реферальной программы
type Config struct {
	Threshold  int
	RewardDays int
}

// Service начисляет рефералов и выдает награду за каждого Threshold-го
type Service struct {
	accounts AccountRepository
	granter  Granter
	notifier notify.Notifier
	cfg      Config
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService создает новый сервис рефералов
func NewService(accounts AccountRepository, granter Granter, notifier notify.Notifier, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		accounts: accounts,
		granter:  granter,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		metrics:  m,
		logger:   logger,
	}
}

// WithClock подменяет источник времени
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Attribute вызывается один раз, сразу после создания аккаунта joiner.
// Начисление и награда фиксируются до отправки уведомления и не откатываются при ее ошибке
func (s *Service) Attribute(ctx context.Context, joiner Joiner, referrerID *int64) (*Result, error) {
	result := &Result{}

	if referrerID == nil {
		return result, nil
	}
	if *referrerID == joiner.UserID {
		s.metrics.RecordReferralAttribution("self")
		s.logger.Debug("попытка пригласить самого себя", zap.Int64("user_id", joiner.UserID))
		return result, nil
	}

	count, err := s.accounts.IncrementReferralCount(ctx, *referrerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.RecordReferralAttribution("unknown_referrer")
			s.logger.Info("пригласивший пользователь не найден",
				zap.Int64("user_id", joiner.UserID),
				zap.Int64("referrer_id", *referrerID))
			return result, nil
		}
		s.metrics.RecordReferralAttribution("failed")
		return nil, fmt.Errorf("ошибка начисления реферала: %w", err)
	}

	result.Credited = true
	result.ReferralCount = count
	s.metrics.RecordReferralAttribution("credited")

	if count > 0 && count%s.cfg.Threshold == 0 {
		expiry, err := s.granter.Grant(ctx, *referrerID, s.cfg.RewardDays, s.now(), subscription.SourceReferral)
		if err != nil {
			return result, fmt.Errorf("ошибка выдачи награды за рефералов: %w", err)
		}
		result.Rewarded = true
		result.Expiry = expiry
		s.metrics.RecordReferralReward()
	}

	s.logger.Info("реферал начислен",
		zap.Int64("referrer_id", *referrerID),
		zap.Int64("referred_id", joiner.UserID),
		zap.Int("referral_count", count),
		zap.Bool("rewarded", result.Rewarded))

	err = s.notifier.Notify(ctx, notify.Notice{
		UserID: *referrerID,
		Text:   ComposeNotice(joiner.Label(), count, result.Rewarded, s.cfg.RewardDays),
	})
	switch {
	case err == nil:
		result.Notified = true
	case notify.IsDeliveryFailure(err):
		s.logger.Warn("уведомление о реферале не доставлено",
			zap.Int64("referrer_id", *referrerID),
			zap.Error(err))
	default:
		return result, fmt.Errorf("ошибка уведомления о реферале: %w", err)
	}

	return result, nil
}

// ComposeNotice формирует уведомление пригласившему
func ComposeNotice(joinerLabel string, count int, rewarded bool, rewardDays int) string {
	text := fmt.Sprintf("🔔 *New Referral!*\n%s joined.\nTotal Referrals: `%d`", joinerLabel, count)
	if rewarded {
		text += fmt.Sprintf("\n🎉 %d Days PRO added automatically!", rewardDays)
	}
	return text
}

// Link формирует реферальную ссылку на бота
func Link(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", botUsername, userID)
}
