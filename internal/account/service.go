package account

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ai-assistant/internal/referral"
	"ai-assistant/internal/store"
	"ai-assistant/pkg/models"

	"go.uber.org/zap"
)

// Attributor начисляет реферала, реализуется referral.Service
type Attributor interface {
	Attribute(ctx context.Context, joiner referral.Joiner, referrerID *int64) (*referral.Result, error)
}

// Contact входящий первый контакт пользователя с ботом
type Contact struct {
	UserID     int64
	Username   string
	FirstName  string
	ReferrerID *int64
}

// FirstContact итог обработки первого контакта
type FirstContact struct {
	Account  *models.Account
	Created  bool
	Referral *referral.Result
}

// Service представляет сервис для работы с аккаунтами
type Service struct {
	accounts  store.AccountRepository
	referrals Attributor
	logger    *zap.Logger
}

// NewService создает новый сервис аккаунтов
func NewService(accounts store.AccountRepository, referrals Attributor, logger *zap.Logger) *Service {
	return &Service{
		accounts:  accounts,
		referrals: referrals,
		logger:    logger,
	}
}

// OnFirstContact создает аккаунт при первом обращении и начисляет реферала.
// Для существующего аккаунта реферер игнорируется
func (s *Service) OnFirstContact(ctx context.Context, c Contact) (*FirstContact, error) {
	referrerID := c.ReferrerID
	if referrerID != nil && *referrerID == c.UserID {
		s.logger.Debug("реферер совпадает с пользователем", zap.Int64("user_id", c.UserID))
		referrerID = nil
	}

	acc, created, err := s.accounts.GetOrCreate(ctx, c.UserID, c.Username, referrerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения аккаунта: %w", err)
	}

	result := &FirstContact{Account: acc, Created: created}
	if !created {
		return result, nil
	}

	s.logger.Info("новый пользователь",
		zap.Int64("user_id", c.UserID),
		zap.String("username", c.Username),
		zap.Bool("has_referrer", acc.HasReferrer()))

	joiner := referral.Joiner{UserID: c.UserID, Username: c.Username, FirstName: c.FirstName}
	res, err := s.referrals.Attribute(ctx, joiner, acc.ReferredBy)
	result.Referral = res
	if err != nil {
		return result, fmt.Errorf("ошибка начисления реферала: %w", err)
	}

	return result, nil
}

// Referred возвращает пользователей, приглашенных userID
func (s *Service) Referred(ctx context.Context, userID int64) ([]*models.Account, error) {
	accounts, err := s.accounts.ListByReferrer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения приглашенных пользователей: %w", err)
	}
	return accounts, nil
}

// ParseStartArgument извлекает реферера из аргумента /start.
// Учитываются только аргументы из цифр, отличные от userID
func ParseStartArgument(arg string, userID int64) *int64 {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil
	}
	for _, r := range arg {
		if r < '0' || r > '9' {
			return nil
		}
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id == userID {
		return nil
	}
	return &id
}
