package notify

import (
	"context"
	"errors"
)

// ErrDeliveryFailed означает, что получатель недоступен. Такую ошибку можно игнорировать,
// любая другая ошибка Notifier является внутренней и должна подниматься выше
var ErrDeliveryFailed = errors.New("уведомление не доставлено")

// Button кнопка под уведомлением: callback (Data) или ссылка (URL)
type Button struct {
	Text string
	Data string
	URL  string
}

// Notice исходящее уведомление пользователю
type Notice struct {
	UserID      int64
	Text        string
	PhotoFileID string // если задан, Text отправляется подписью к фото
	Buttons     []Button
}

// Notifier отправляет уведомления через транспорт
type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// IsDeliveryFailure проверяет, что ошибку можно проигнорировать
func IsDeliveryFailure(err error) bool {
	return errors.Is(err, ErrDeliveryFailed)
}
