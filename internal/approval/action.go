package approval

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind вид решения администратора. Значение используется как префикс callback data
type Kind string

const (
	KindApprove Kind = "adm_app"
	KindReject  Kind = "adm_rej"
	KindCancel  Kind = "adm_can"
)

// Action решение администратора по конкретному пользователю
type Action struct {
	Kind   Kind
	Target int64
}

// Approve создает действие одобрения
func Approve(target int64) Action { return Action{Kind: KindApprove, Target: target} }

// Reject создает действие отклонения
func Reject(target int64) Action { return Action{Kind: KindReject, Target: target} }

// Cancel создает действие отмены подписки
func Cancel(target int64) Action { return Action{Kind: KindCancel, Target: target} }

// Encode кодирует действие в callback data
func (a Action) Encode() string {
	return fmt.Sprintf("%s:%d", a.Kind, a.Target)
}

// String возвращает короткое имя действия для логов и метрик
func (a Action) String() string {
	switch a.Kind {
	case KindApprove:
		return "approve"
	case KindReject:
		return "reject"
	case KindCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// IsAction проверяет, относится ли callback data к решениям администратора
func IsAction(data string) bool {
	return strings.HasPrefix(data, "adm_")
}

// ParseAction декодирует callback data вида adm_app:123
func ParseAction(data string) (Action, error) {
	prefix, rawTarget, ok := strings.Cut(data, ":")
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrInvalidAction, data)
	}

	kind := Kind(prefix)
	switch kind {
	case KindApprove, KindReject, KindCancel:
	default:
		return Action{}, fmt.Errorf("%w: неизвестное действие %q", ErrInvalidAction, prefix)
	}

	target, err := strconv.ParseInt(rawTarget, 10, 64)
	if err != nil || target <= 0 {
		return Action{}, fmt.Errorf("%w: некорректный пользователь %q", ErrInvalidAction, rawTarget)
	}

	return Action{Kind: kind, Target: target}, nil
}
