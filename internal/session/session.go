package session

import (
	"context"
	"fmt"
)

// Kind вид состояния сессии
type Kind string

const (
	KindIdle          Kind = "idle"
	KindMode          Kind = "mode"
	KindAwaitingProof Kind = "awaiting_proof"
)

// Mode режим работы AI
type Mode string

const (
	ModeResearch Mode = "research"
	ModeWeb      Mode = "web"
	ModeImage    Mode = "image"
)

// State состояние сессии пользователя. Mode задан только при Kind == KindMode
type State struct {
	Kind Kind `json:"kind"`
	Mode Mode `json:"mode,omitempty"`
}

// Idle обычный чат
func Idle() State {
	return State{Kind: KindIdle}
}

// InMode выбранный режим
func InMode(m Mode) State {
	return State{Kind: KindMode, Mode: m}
}

// AwaitingProof ожидание подтверждения оплаты
func AwaitingProof() State {
	return State{Kind: KindAwaitingProof}
}

// IsAwaitingProof проверяет, ждет ли бот подтверждение оплаты
func (s State) IsAwaitingProof() bool {
	return s.Kind == KindAwaitingProof
}

// CurrentMode возвращает режим, если он выбран
func (s State) CurrentMode() (Mode, bool) {
	if s.Kind != KindMode {
		return "", false
	}
	return s.Mode, true
}

// Validate отбрасывает недопустимые сочетания полей
func (s State) Validate() error {
	switch s.Kind {
	case KindIdle, KindAwaitingProof:
		if s.Mode != "" {
			return fmt.Errorf("состояние %s не может иметь режим %s", s.Kind, s.Mode)
		}
		return nil
	case KindMode:
		switch s.Mode {
		case ModeResearch, ModeWeb, ModeImage:
			return nil
		}
		return fmt.Errorf("неизвестный режим: %q", s.Mode)
	default:
		return fmt.Errorf("неизвестное состояние: %q", s.Kind)
	}
}

// Store хранит состояние сессий. Отсутствующая сессия равна Idle
type Store interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, state State) error
	Close() error
}
