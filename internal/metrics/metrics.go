package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения.
// Все методы Record* безопасны для nil, поэтому сервисы можно собирать без метрик
type Metrics struct {
	logger   *zap.Logger
	registry *prometheus.Registry

	// Счетчики
	referralAttributions *prometheus.CounterVec
	referralRewards      prometheus.Counter
	proGrants            *prometheus.CounterVec
	proRevocations       prometheus.Counter
	proofSubmissions     *prometheus.CounterVec
	adminDecisions       *prometheus.CounterVec
	notifications        *prometheus.CounterVec
	aiRequests           *prometheus.CounterVec

	// Гистограммы
	aiResponseTime *prometheus.HistogramVec

	// Gauge метрики
	activeProAccounts prometheus.Gauge
}

// New создает новый экземпляр метрик со своим реестром
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),

		referralAttributions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_attributions_total",
				Help: "Количество обработанных реферальных привязок",
			},
			[]string{"result"}, // credited, self, unknown_referrer, failed
		),

		referralRewards: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "referral_rewards_total",
				Help: "Количество автоматических наград за рефералов",
			},
		),

		proGrants: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pro_grants_total",
				Help: "Количество выдач PRO",
			},
			[]string{"source"}, // referral, approval, operator
		),

		proRevocations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pro_revocations_total",
				Help: "Количество отмен PRO",
			},
		),

		proofSubmissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proof_submissions_total",
				Help: "Количество присланных подтверждений оплаты",
			},
			[]string{"kind", "forwarded"}, // kind: photo, text
		),

		adminDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_decisions_total",
				Help: "Количество решений администратора",
			},
			[]string{"action", "result"}, // result: applied, unauthorized, failed
		),

		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Количество исходящих уведомлений",
			},
			[]string{"outcome"}, // delivered, failed
		),

		aiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_requests_total",
				Help: "Общее количество запросов к AI",
			},
			[]string{"mode", "status"}, // status: success, failed
		),

		aiResponseTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ai_response_time_seconds",
				Help:    "Время ответа AI в секундах",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),

		activeProAccounts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_pro_accounts",
				Help: "Количество аккаунтов с действующим PRO",
			},
		),
	}

	m.registry.MustRegister(
		m.referralAttributions,
		m.referralRewards,
		m.proGrants,
		m.proRevocations,
		m.proofSubmissions,
		m.adminDecisions,
		m.notifications,
		m.aiRequests,
		m.aiResponseTime,
		m.activeProAccounts,
	)

	return m
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordReferralAttribution записывает результат привязки реферала
func (m *Metrics) RecordReferralAttribution(result string) {
	if m == nil {
		return
	}
	m.referralAttributions.WithLabelValues(result).Inc()
}

// RecordReferralReward записывает автоматическую награду
func (m *Metrics) RecordReferralReward() {
	if m == nil {
		return
	}
	m.referralRewards.Inc()
}

// RecordProGrant записывает выдачу PRO
func (m *Metrics) RecordProGrant(source string) {
	if m == nil {
		return
	}
	m.proGrants.WithLabelValues(source).Inc()
}

// RecordProRevocation записывает отмену PRO
func (m *Metrics) RecordProRevocation() {
	if m == nil {
		return
	}
	m.proRevocations.Inc()
}

// RecordProofSubmission записывает присланное подтверждение оплаты
func (m *Metrics) RecordProofSubmission(kind string, forwarded bool) {
	if m == nil {
		return
	}
	f := "true"
	if !forwarded {
		f = "false"
	}
	m.proofSubmissions.WithLabelValues(kind, f).Inc()
}

// RecordAdminDecision записывает решение администратора
func (m *Metrics) RecordAdminDecision(action, result string) {
	if m == nil {
		return
	}
	m.adminDecisions.WithLabelValues(action, result).Inc()
}

// RecordNotification записывает исход отправки уведомления
func (m *Metrics) RecordNotification(delivered bool) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// RecordAIRequest записывает запрос к AI
func (m *Metrics) RecordAIRequest(mode string, success bool, responseTime float64) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}

	m.aiRequests.WithLabelValues(mode, status).Inc()
	m.aiResponseTime.WithLabelValues(mode).Observe(responseTime)
}

// SetActiveProAccounts обновляет gauge активных PRO аккаунтов
func (m *Metrics) SetActiveProAccounts(n int) {
	if m == nil {
		return
	}
	m.activeProAccounts.Set(float64(n))
	m.logger.Debug("метрика установлена", zap.String("metric", "active_pro_accounts"), zap.Int("value", n))
}

// Handler возвращает HTTP handler для метрик
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
