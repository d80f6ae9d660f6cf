package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-assistant/internal/metrics"
	"ai-assistant/internal/notify"
	"ai-assistant/internal/session"
	"ai-assistant/internal/subscription"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized решение принято не администратором
	ErrUnauthorized = errors.New("действие не разрешено")
	// ErrNotAwaitingProof подтверждение пришло без запроса
	ErrNotAwaitingProof = errors.New("подтверждение оплаты не ожидается")
	// ErrInvalidAction не удалось декодировать действие администратора
	ErrInvalidAction = errors.New("некорректное действие администратора")
)

// Тексты, которые видит пользователь
const (
	textActivated = "🎉 *PRO Activated!* Your buttons are now updated."
	textRejected  = "❌ Rejected. Send valid proof."
	textCancelled = "⚠️ Subscription Cancelled."
)

// Policy часть subscription.Policy, нужная процессу одобрения
type Policy interface {
	Grant(ctx context.Context, userID int64, days int, now time.Time, source string) (string, error)
	Revoke(ctx context.Context, userID int64) error
}

// Proof подтверждение оплаты: фото или текст
type Proof struct {
	UserID      int64
	FirstName   string
	PhotoFileID string
	Text        string
}

// Kind возвращает вид подтверждения для метрик
func (p Proof) Kind() string {
	if p.PhotoFileID != "" {
		return "photo"
	}
	return "text"
}

// Submission принятое подтверждение
type Submission struct {
	ID        string
	UserID    int64
	Forwarded bool
}

// Outcome результат решения администратора
type Outcome struct {
	Action         Action
	AdminText      string
	FollowUp       *Action
	Expiry         string
	TargetNotified bool
}

// Buttons кнопка, которую нужно показать администратору после решения
func (o *Outcome) Buttons() []notify.Button {
	if o.FollowUp == nil {
		return nil
	}
	label := "Re-Approve ✅"
	if o.FollowUp.Kind == KindCancel {
		label = "Cancel Sub 🚫"
	}
	return []notify.Button{{Text: label, Data: o.FollowUp.Encode()}}
}

// Workflow процесс ручного подтверждения оплаты администратором
type Workflow struct {
	sessions session.Store
	policy   Policy
	notifier notify.Notifier
	adminID  int64
	paidDays int
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewWorkflow создает процесс одобрения
func NewWorkflow(sessions session.Store, policy Policy, notifier notify.Notifier, adminID int64, paidDays int, m *metrics.Metrics, logger *zap.Logger) *Workflow {
	return &Workflow{
		sessions: sessions,
		policy:   policy,
		notifier: notifier,
		adminID:  adminID,
		paidDays: paidDays,
		now:      time.Now,
		metrics:  m,
		logger:   logger,
	}
}

// WithClock подменяет источник времени
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.now = now
	return w
}

// IsAdmin проверяет, является ли пользователь администратором
func (w *Workflow) IsAdmin(userID int64) bool {
	return userID == w.adminID
}

// RequestProof переводит сессию пользователя в ожидание подтверждения
func (w *Workflow) RequestProof(ctx context.Context, userID int64) error {
	if err := w.sessions.Set(ctx, userID, session.AwaitingProof()); err != nil {
		return fmt.Errorf("ошибка перевода в ожидание подтверждения: %w", err)
	}
	w.logger.Info("ожидается подтверждение оплаты", zap.Int64("user_id", userID))
	return nil
}

// SubmitProof пересылает подтверждение администратору.
// Ожидание сбрасывается сразу, не дожидаясь решения
func (w *Workflow) SubmitProof(ctx context.Context, proof Proof) (*Submission, error) {
	state, err := w.sessions.Get(ctx, proof.UserID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	if !state.IsAwaitingProof() {
		return nil, ErrNotAwaitingProof
	}

	sub := &Submission{ID: uuid.NewString(), UserID: proof.UserID}

	notifyErr := w.notifier.Notify(ctx, notify.Notice{
		UserID:      w.adminID,
		Text:        composeProofNotice(proof, sub.ID),
		PhotoFileID: proof.PhotoFileID,
		Buttons: []notify.Button{
			{Text: "Approve ✅", Data: Approve(proof.UserID).Encode()},
			{Text: "Reject ❌", Data: Reject(proof.UserID).Encode()},
		},
	})

	if err := w.sessions.Set(ctx, proof.UserID, session.Idle()); err != nil {
		return nil, fmt.Errorf("ошибка сброса сессии: %w", err)
	}

	switch {
	case notifyErr == nil:
		sub.Forwarded = true
	case notify.IsDeliveryFailure(notifyErr):
		w.logger.Error("подтверждение не доставлено администратору",
			zap.Int64("user_id", proof.UserID),
			zap.String("submission_id", sub.ID),
			zap.Error(notifyErr))
	default:
		return nil, fmt.Errorf("ошибка пересылки подтверждения: %w", notifyErr)
	}

	w.metrics.RecordProofSubmission(proof.Kind(), sub.Forwarded)
	w.logger.Info("подтверждение оплаты принято",
		zap.Int64("user_id", proof.UserID),
		zap.String("submission_id", sub.ID),
		zap.String("kind", proof.Kind()),
		zap.Bool("forwarded", sub.Forwarded))

	return sub, nil
}

func composeProofNotice(proof Proof, submissionID string) string {
	name := proof.FirstName
	if name == "" {
		name = "Unknown"
	}
	text := fmt.Sprintf("📩 *New Payment Proof*\nUser: %s\nID: `%d`\nSubmission: `%s`", name, proof.UserID, submissionID)
	if proof.PhotoFileID == "" {
		text += "\n\nProof: " + proof.Text
	}
	return text
}

// Decide выполняет решение администратора. Вызов не от администратора
// возвращает ErrUnauthorized и ничего не меняет
func (w *Workflow) Decide(ctx context.Context, actorID int64, action Action) (*Outcome, error) {
	if !w.IsAdmin(actorID) {
		w.metrics.RecordAdminDecision(action.String(), "unauthorized")
		w.logger.Warn("попытка решения не администратором",
			zap.Int64("actor_id", actorID),
			zap.String("action", action.String()))
		return nil, ErrUnauthorized
	}

	outcome := &Outcome{Action: action}
	var text string

	switch action.Kind {
	case KindApprove:
		expiry, err := w.policy.Grant(ctx, action.Target, w.paidDays, w.now(), subscription.SourceApproval)
		if err != nil {
			w.metrics.RecordAdminDecision(action.String(), "failed")
			return nil, err
		}
		outcome.Expiry = expiry
		outcome.AdminText = fmt.Sprintf("✅ Approved: `%d`", action.Target)
		follow := Cancel(action.Target)
		outcome.FollowUp = &follow
		text = textActivated
	case KindCancel:
		if err := w.policy.Revoke(ctx, action.Target); err != nil {
			w.metrics.RecordAdminDecision(action.String(), "failed")
			return nil, err
		}
		outcome.AdminText = fmt.Sprintf("🚫 Cancelled: `%d`", action.Target)
		follow := Approve(action.Target)
		outcome.FollowUp = &follow
		text = textCancelled
	case KindReject:
		outcome.AdminText = fmt.Sprintf("❌ Rejected: `%d`", action.Target)
		text = textRejected
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action.Kind)
	}

	w.metrics.RecordAdminDecision(action.String(), "applied")
	w.logger.Info("решение администратора применено",
		zap.Int64("target_id", action.Target),
		zap.String("action", action.String()),
		zap.String("expiry", outcome.Expiry))

	err := w.notifier.Notify(ctx, notify.Notice{UserID: action.Target, Text: text})
	switch {
	case err == nil:
		outcome.TargetNotified = true
	case notify.IsDeliveryFailure(err):
		w.logger.Warn("пользователь не получил уведомление о решении",
			zap.Int64("target_id", action.Target),
			zap.Error(err))
	default:
		return outcome, fmt.Errorf("ошибка уведомления о решении: %w", err)
	}

	return outcome, nil
}
