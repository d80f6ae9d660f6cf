package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ai-assistant/pkg/models"

	"go.uber.org/zap"
)

// memoryStore хранит аккаунты в памяти процесса
type memoryStore struct {
	account *memoryAccountRepository
}

// NewMemoryStore создает хранилище в памяти
func NewMemoryStore(logger *zap.Logger) Store {
	return &memoryStore{
		account: &memoryAccountRepository{
			accounts: make(map[int64]*models.Account),
			logger:   logger,
		},
	}
}

func (s *memoryStore) Account() AccountRepository {
	return s.account
}

func (s *memoryStore) Close() error {
	return nil
}

type memoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
	logger   *zap.Logger
}

// copyAccount не дает вызывающему коду менять запись в обход мьютекса
func copyAccount(acc *models.Account) *models.Account {
	c := *acc
	if acc.ReferredBy != nil {
		ref := *acc.ReferredBy
		c.ReferredBy = &ref
	}
	return &c
}

func (r *memoryAccountRepository) GetOrCreate(_ context.Context, userID int64, displayName string, referrerID *int64) (*models.Account, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if acc, ok := r.accounts[userID]; ok {
		return copyAccount(acc), false, nil
	}

	now := time.Now()
	acc := &models.Account{
		UserID:      userID,
		DisplayName: displayName,
		Expiry:      models.ExpiryNone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if referrerID != nil && *referrerID != userID {
		ref := *referrerID
		acc.ReferredBy = &ref
	}
	r.accounts[userID] = acc

	r.logger.Info("аккаунт создан",
		zap.Int64("user_id", userID),
		zap.String("display_name", displayName),
		zap.Bool("has_referrer", acc.HasReferrer()))

	return copyAccount(acc), true, nil
}

func (r *memoryAccountRepository) GetByUserID(_ context.Context, userID int64) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user_id %d", ErrNotFound, userID)
	}
	return copyAccount(acc), nil
}

func (r *memoryAccountRepository) SetProStatus(_ context.Context, userID int64, isPro bool, expiry string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[userID]
	if !ok {
		return fmt.Errorf("%w: user_id %d", ErrNotFound, userID)
	}
	acc.IsPro = isPro
	acc.Expiry = expiry
	acc.UpdatedAt = time.Now()
	return nil
}

func (r *memoryAccountRepository) IncrementReferralCount(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[userID]
	if !ok {
		return 0, fmt.Errorf("%w: user_id %d", ErrNotFound, userID)
	}
	acc.ReferralCount++
	acc.UpdatedAt = time.Now()
	return acc.ReferralCount, nil
}

func (r *memoryAccountRepository) ListByReferrer(_ context.Context, referrerID int64) ([]*models.Account, error) {
	return r.filter(func(acc *models.Account) bool {
		return acc.ReferredBy != nil && *acc.ReferredBy == referrerID
	}), nil
}

func (r *memoryAccountRepository) ListPro(_ context.Context) ([]*models.Account, error) {
	return r.filter(func(acc *models.Account) bool { return acc.IsPro }), nil
}

func (r *memoryAccountRepository) filter(keep func(*models.Account) bool) []*models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Account
	for _, acc := range r.accounts {
		if keep(acc) {
			out = append(out, copyAccount(acc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
