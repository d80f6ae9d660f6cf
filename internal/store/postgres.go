package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-assistant/internal/config"
	"ai-assistant/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store представляет интерфейс для работы с хранилищем аккаунтов
type Store interface {
	Account() AccountRepository
	Close() error
}

// AccountRepository интерфейс для работы с аккаунтами
type AccountRepository interface {
	// GetOrCreate атомарно находит или создает аккаунт. referrerID учитывается только при создании
	GetOrCreate(ctx context.Context, userID int64, displayName string, referrerID *int64) (*models.Account, bool, error)
	GetByUserID(ctx context.Context, userID int64) (*models.Account, error)
	SetProStatus(ctx context.Context, userID int64, isPro bool, expiry string) error
	// IncrementReferralCount возвращает значение счетчика после увеличения
	IncrementReferralCount(ctx context.Context, userID int64) (int, error)
	ListByReferrer(ctx context.Context, referrerID int64) ([]*models.Account, error)
	ListPro(ctx context.Context) ([]*models.Account, error)
}

// Open создает хранилище в зависимости от STORE_DRIVER
func Open(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("используется хранилище в памяти, данные не сохраняются между перезапусками")
		return NewMemoryStore(logger), nil
	case "postgres":
		return NewStore(cfg, logger)
	default:
		return nil, fmt.Errorf("неизвестный драйвер хранилища: %s", cfg.Database.Driver)
	}
}

// store реализует интерфейс Store поверх PostgreSQL
type store struct {
	db      *pgxpool.Pool
	logger  *zap.Logger
	account AccountRepository
}

// NewStore создает новое подключение к базе данных
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка подключения к базе данных: %w", ErrUnavailable, err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ошибка проверки подключения к базе данных: %w", ErrUnavailable, err)
	}

	logger.Info("успешное подключение к базе данных PostgreSQL")

	return &store{
		db:      db,
		logger:  logger,
		account: NewAccountRepository(db, logger),
	}, nil
}

// Account возвращает репозиторий аккаунтов
func (s *store) Account() AccountRepository {
	return s.account
}

// Close закрывает подключение к базе данных
func (s *store) Close() error {
	s.logger.Info("закрытие подключения к базе данных")
	s.db.Close()
	return nil
}

const accountColumns = `user_id, display_name, referred_by, referral_count, is_pro, expiry, joined_channel, created_at, updated_at`

// accountRepository реализует AccountRepository
type accountRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewAccountRepository создает новый репозиторий аккаунтов
func NewAccountRepository(db *pgxpool.Pool, logger *zap.Logger) AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	acc := &models.Account{}
	err := row.Scan(
		&acc.UserID, &acc.DisplayName, &acc.ReferredBy, &acc.ReferralCount,
		&acc.IsPro, &acc.Expiry, &acc.JoinedChannel, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// GetOrCreate находит или создает аккаунт
func (r *accountRepository) GetOrCreate(ctx context.Context, userID int64, displayName string, referrerID *int64) (*models.Account, bool, error) {
	if referrerID != nil && *referrerID == userID {
		referrerID = nil
	}

	query := `
		INSERT INTO accounts (user_id, display_name, referred_by, referral_count, is_pro, expiry, joined_channel, created_at, updated_at)
		VALUES ($1, $2, $3, 0, false, $4, false, $5, $5)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRow(ctx, query, userID, displayName, referrerID, models.ExpiryNone, time.Now()))
	if err == nil {
		r.logger.Info("аккаунт создан",
			zap.Int64("user_id", userID),
			zap.String("display_name", displayName),
			zap.Bool("has_referrer", acc.HasReferrer()))
		return acc, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("%w: ошибка создания аккаунта: %w", ErrUnavailable, err)
	}

	// Аккаунт уже существует, referrerID игнорируется
	acc, err = r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return acc, false, nil
}

// GetByUserID получает аккаунт по Telegram ID
func (r *accountRepository) GetByUserID(ctx context.Context, userID int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`

	acc, err := scanAccount(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user_id %d", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("%w: ошибка получения аккаунта: %w", ErrUnavailable, err)
	}

	return acc, nil
}

// SetProStatus перезаписывает is_pro и expiry
func (r *accountRepository) SetProStatus(ctx context.Context, userID int64, isPro bool, expiry string) error {
	query := `UPDATE accounts SET is_pro = $2, expiry = $3, updated_at = $4 WHERE user_id = $1`

	result, err := r.db.Exec(ctx, query, userID, isPro, expiry, time.Now())
	if err != nil {
		return fmt.Errorf("%w: ошибка обновления статуса PRO: %w", ErrUnavailable, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: user_id %d", ErrNotFound, userID)
	}

	r.logger.Info("статус PRO обновлен",
		zap.Int64("user_id", userID),
		zap.Bool("is_pro", isPro),
		zap.String("expiry", expiry))
	return nil
}

// IncrementReferralCount увеличивает счетчик рефералов одним запросом
func (r *accountRepository) IncrementReferralCount(ctx context.Context, userID int64) (int, error) {
	query := `
		UPDATE accounts SET referral_count = referral_count + 1, updated_at = $2
		WHERE user_id = $1
		RETURNING referral_count`

	var count int
	err := r.db.QueryRow(ctx, query, userID, time.Now()).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: user_id %d", ErrNotFound, userID)
		}
		return 0, fmt.Errorf("%w: ошибка увеличения счетчика рефералов: %w", ErrUnavailable, err)
	}

	r.logger.Debug("счетчик рефералов увеличен",
		zap.Int64("user_id", userID),
		zap.Int("referral_count", count))
	return count, nil
}

// ListByReferrer возвращает аккаунты, приглашенные пользователем
func (r *accountRepository) ListByReferrer(ctx context.Context, referrerID int64) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE referred_by = $1 ORDER BY created_at`
	return r.list(ctx, query, referrerID)
}

// ListPro возвращает аккаунты с флагом is_pro
func (r *accountRepository) ListPro(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE is_pro = true ORDER BY user_id`
	return r.list(ctx, query)
}

func (r *accountRepository) list(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка получения списка аккаунтов: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: ошибка сканирования аккаунта: %w", ErrUnavailable, err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: ошибка итерации по аккаунтам: %w", ErrUnavailable, err)
	}

	return accounts, nil
}
