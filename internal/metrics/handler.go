package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Handler обрабатывает HTTP запросы для метрик и проверки живости
type Handler struct {
	metrics   *Metrics
	logger    *zap.Logger
	startedAt time.Time
}

// NewHandler создает новый обработчик метрик
func NewHandler(metrics *Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		metrics:   metrics,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Routes регистрирует /, /health и /metrics
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.metrics.Handler())
	mux.HandleFunc("/health", h.HealthHandler)
	mux.HandleFunc("/", h.RootHandler)
	return mux
}

// RootHandler отвечает хостингу, что процесс жив
func (h *Handler) RootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Bot is running"))
}

// HealthHandler возвращает статус здоровья сервиса
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := map[string]any{
		"status":         "ok",
		"service":        "ai-assistant",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("ошибка записи ответа health", zap.Error(err))
	}
}
