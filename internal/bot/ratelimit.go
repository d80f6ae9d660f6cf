package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter ограничивает частоту запросов каждого пользователя
type RateLimiter struct {
	limiters map[int64]*rate.Limiter
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
}

// NewRateLimiter создает rate limiter на perMinute запросов в минуту.
// Неположительное значение отключает ограничение
func NewRateLimiter(perMinute int) *RateLimiter {
	limit := rate.Inf
	burst := 0
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute
	}

	return &RateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (rl *RateLimiter) getLimiter(userID int64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[userID]
	if !exists {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[userID] = limiter
	}

	return limiter
}

// IsAllowed проверяет, разрешен ли запрос для пользователя
func (rl *RateLimiter) IsAllowed(userID int64) bool {
	return rl.getLimiter(userID).Allow()
}

// Cleanup сбрасывает накопленные лимитеры, если их стало слишком много
func (rl *RateLimiter) Cleanup(maxEntries int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.limiters) > maxEntries {
		rl.limiters = make(map[int64]*rate.Limiter)
	}
}
