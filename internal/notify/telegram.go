package notify

import (
	"context"
	"fmt"

	"ai-assistant/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender часть tgbotapi.BotAPI, нужная для отправки
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier доставляет уведомления через Telegram Bot API
type TelegramNotifier struct {
	bot     Sender
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewTelegramNotifier создает notifier поверх бота
func NewTelegramNotifier(bot Sender, m *metrics.Metrics, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:     bot,
		metrics: m,
		logger:  logger,
	}
}

// Notify отправляет уведомление с Markdown, при ошибке разметки повторяет обычным текстом.
// Все ошибки Telegram оборачиваются в ErrDeliveryFailed
func (n *TelegramNotifier) Notify(ctx context.Context, notice Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := n.bot.Send(n.build(notice, tgbotapi.ModeMarkdown))
	if err != nil {
		n.logger.Warn("ошибка отправки уведомления с разметкой, повтор без нее",
			zap.Int64("user_id", notice.UserID),
			zap.Error(err))
		_, err = n.bot.Send(n.build(notice, ""))
	}

	n.metrics.RecordNotification(err == nil)
	if err != nil {
		n.logger.Warn("уведомление не доставлено",
			zap.Int64("user_id", notice.UserID),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

func (n *TelegramNotifier) build(notice Notice, parseMode string) tgbotapi.Chattable {
	markup := InlineKeyboard(notice.Buttons)

	if notice.PhotoFileID != "" {
		photo := tgbotapi.NewPhoto(notice.UserID, tgbotapi.FileID(notice.PhotoFileID))
		photo.Caption = notice.Text
		photo.ParseMode = parseMode
		if markup != nil {
			photo.ReplyMarkup = *markup
		}
		return photo
	}

	msg := tgbotapi.NewMessage(notice.UserID, notice.Text)
	msg.ParseMode = parseMode
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	return msg
}

// InlineKeyboard строит inline клавиатуру, по одной кнопке в ряд
func InlineKeyboard(buttons []Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		if b.URL != "" {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL)))
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)))
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
