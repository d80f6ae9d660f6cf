package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const keyPrefix = "ai-assistant:session:"

// RedisStore хранит сессии в Redis с TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}

	logger.Info("успешное подключение к Redis", zap.String("addr", addr))

	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func key(userID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (State, error) {
	raw, err := r.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Idle(), nil
		}
		return Idle(), fmt.Errorf("ошибка чтения сессии: %w", err)
	}

	return decode(raw, r.logger, userID), nil
}

func (r *RedisStore) Set(ctx context.Context, userID int64, state State) error {
	if err := state.Validate(); err != nil {
		return err
	}

	if state.Kind == KindIdle {
		if err := r.client.Del(ctx, key(userID)).Err(); err != nil {
			return fmt.Errorf("ошибка удаления сессии: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	if err := r.client.Set(ctx, key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка записи сессии: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// decode сбрасывает поврежденную запись в Idle
func decode(raw []byte, logger *zap.Logger, userID int64) State {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		logger.Warn("поврежденная сессия, сброс", zap.Int64("user_id", userID), zap.Error(err))
		return Idle()
	}
	if err := s.Validate(); err != nil {
		logger.Warn("недопустимая сессия, сброс", zap.Int64("user_id", userID), zap.Error(err))
		return Idle()
	}
	return s
}
