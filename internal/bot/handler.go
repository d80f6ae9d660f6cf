package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ai-assistant/internal/account"
	"ai-assistant/internal/ai"
	"ai-assistant/internal/approval"
	"ai-assistant/internal/imagegen"
	"ai-assistant/internal/metrics"
	"ai-assistant/internal/notify"
	"ai-assistant/internal/referral"
	"ai-assistant/internal/session"
	"ai-assistant/internal/subscription"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Кнопки главной клавиатуры
const (
	BtnResearch = "Deep Research 🔍"
	BtnWeb      = "Web Search 🌐"
	BtnImage    = "Generate Image 🎨"
	BtnAccount  = "My Account 👤"
)

// Callback data
const (
	CallbackVerifyJoin = "verify_join"
	CallbackSendProof  = "send_proof"
)

// Ответ при недоступности хранилища, без деталей ошибки
const textUnavailable = "⚠️ This feature is temporarily unavailable. Please try again later."

const (
	typingInterval = 4 * time.Second
	chunkDelay     = 500 * time.Millisecond
)

var errEmptyResponse = errors.New("empty response")

// BotAPI часть tgbotapi.BotAPI, которой пользуется обработчик
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Options параметры обработчика из конфигурации
type Options struct {
	BotUsername        string
	ChannelID          string
	ChannelLink        string
	CoinbaseLink       string
	RateLimitPerMinute int
	AIOptions          ai.GenerationOptions
}

// Handler представляет обработчик сообщений Telegram
type Handler struct {
	bot         BotAPI
	opts        Options
	accounts    *account.Service
	policy      *subscription.Policy
	approvals   *approval.Workflow
	sessions    session.Store
	aiClient    ai.AIClient
	images      imagegen.Generator
	rateLimiter *RateLimiter
	metrics     *metrics.Metrics
	logger      *zap.Logger

	now            func() time.Time
	typingInterval time.Duration
	chunkDelay     time.Duration
}

// NewHandler создает новый обработчик
func NewHandler(
	bot BotAPI,
	opts Options,
	accounts *account.Service,
	policy *subscription.Policy,
	approvals *approval.Workflow,
	sessions session.Store,
	aiClient ai.AIClient,
	images imagegen.Generator,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		bot:            bot,
		opts:           opts,
		accounts:       accounts,
		policy:         policy,
		approvals:      approvals,
		sessions:       sessions,
		aiClient:       aiClient,
		images:         images,
		rateLimiter:    NewRateLimiter(opts.RateLimitPerMinute),
		metrics:        m,
		logger:         logger,
		now:            time.Now,
		typingInterval: typingInterval,
		chunkDelay:     chunkDelay,
	}
}

// RateLimiter возвращает rate limiter обработчика
func (h *Handler) RateLimiter() *RateLimiter {
	return h.rateLimiter
}

// HandleUpdate обрабатывает входящее обновление
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil {
			return
		}
		if !h.rateLimiter.IsAllowed(cb.From.ID) {
			h.logger.Warn("превышен лимит запросов, callback отброшен", zap.Int64("user_id", cb.From.ID))
			return
		}
		h.handleCallbackQuery(ctx, cb)
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil {
			return
		}
		if !h.rateLimiter.IsAllowed(msg.From.ID) {
			h.logger.Warn("превышен лимит запросов", zap.Int64("user_id", msg.From.ID))
			h.reply(msg.Chat.ID, msg.MessageID, "⏳ Too many requests. Please wait a moment.")
			return
		}
		h.handleMessage(ctx, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		if msg.Command() == "start" {
			h.handleStart(ctx, msg)
		}
		return
	}

	switch msg.Text {
	case BtnAccount:
		h.handleAccount(ctx, msg)
	case BtnImage:
		h.handleImageButton(ctx, msg)
	case BtnResearch:
		h.switchMode(ctx, msg, session.ModeResearch)
	case BtnWeb:
		h.switchMode(ctx, msg, session.ModeWeb)
	default:
		h.handleInput(ctx, msg)
	}
}

// handleStart регистрирует пользователя, начисляет реферала и проверяет подписку на канал
func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	user := msg.From
	contact := account.Contact{
		UserID:     user.ID,
		Username:   user.UserName,
		FirstName:  user.FirstName,
		ReferrerID: account.ParseStartArgument(msg.CommandArguments(), user.ID),
	}

	// Ошибка хранилища не мешает приветствию и клавиатуре
	if _, err := h.accounts.OnFirstContact(ctx, contact); err != nil {
		h.logger.Error("ошибка обработки /start", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	if !h.isSubscribed(user.ID) {
		h.sendJoinPrompt(msg.Chat.ID, fmt.Sprintf("👋 Welcome %s!\nPlease join our channel to use the AI.", user.FirstName))
		return
	}

	h.sendWithMainKeyboard(msg.Chat.ID, fmt.Sprintf("Welcome back %s!", user.FirstName))
}

func (h *Handler) handleAccount(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	status, err := h.policy.Status(ctx, userID, h.now())
	if err != nil {
		h.logger.Error("ошибка получения статуса аккаунта", zap.Int64("user_id", userID), zap.Error(err))
		h.featureUnavailable(msg.Chat.ID, msg.MessageID)
		return
	}

	statusText := "Free ❌"
	if status.ProActive {
		statusText = "PRO ✅"
	}
	text := fmt.Sprintf("👤 *Account Details*\nStatus: %s\nExpiry: %s\nRefs: %d\n\nRef Link: `%s`",
		statusText, status.Expiry, status.ReferralCount, referral.Link(h.opts.BotUsername, userID))

	var buttons []notify.Button
	if !status.ProActive {
		if h.opts.CoinbaseLink != "" {
			buttons = append(buttons, notify.Button{Text: "💳 Buy PRO ($5)", URL: h.opts.CoinbaseLink})
		}
		buttons = append(buttons, notify.Button{Text: "📤 Send Payment Proof", Data: CallbackSendProof})
	}

	if err := h.sendSafeMessage(msg.Chat.ID, msg.MessageID, text, notify.InlineKeyboard(buttons)); err != nil {
		h.logger.Error("ошибка отправки данных аккаунта", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (h *Handler) handleImageButton(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	pro, err := h.policy.IsProValid(ctx, userID, h.now())
	if err != nil {
		h.logger.Error("ошибка проверки PRO", zap.Int64("user_id", userID), zap.Error(err))
		h.featureUnavailable(msg.Chat.ID, msg.MessageID)
		return
	}
	if !pro {
		h.reply(msg.Chat.ID, msg.MessageID, "❌ PRO membership required.")
		return
	}

	if err := h.sessions.Set(ctx, userID, session.InMode(session.ModeImage)); err != nil {
		h.logger.Error("ошибка сохранения режима", zap.Int64("user_id", userID), zap.Error(err))
		h.featureUnavailable(msg.Chat.ID, msg.MessageID)
		return
	}
	h.reply(msg.Chat.ID, msg.MessageID, "🎨 Send an image prompt. I will generate it.")
}

func (h *Handler) switchMode(ctx context.Context, msg *tgbotapi.Message, mode session.Mode) {
	if err := h.sessions.Set(ctx, msg.From.ID, session.InMode(mode)); err != nil {
		h.logger.Error("ошибка сохранения режима", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.featureUnavailable(msg.Chat.ID, msg.MessageID)
		return
	}

	h.logger.Debug("режим изменен", zap.Int64("user_id", msg.From.ID), zap.String("mode", string(mode)))
	h.reply(msg.Chat.ID, msg.MessageID, fmt.Sprintf("✅ %s enabled. Send your prompt.", msg.Text))
}

// handleInput обрабатывает текст или фото: подтверждение оплаты либо запрос к AI
func (h *Handler) handleInput(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	if !h.isSubscribed(userID) {
		h.reply(msg.Chat.ID, msg.MessageID, "❌ Join channel first.")
		return
	}

	state, err := h.sessions.Get(ctx, userID)
	if err != nil {
		h.logger.Error("ошибка чтения сессии, продолжаем как обычный чат", zap.Int64("user_id", userID), zap.Error(err))
		state = session.Idle()
	}

	if state.IsAwaitingProof() {
		h.handleProof(ctx, msg)
		return
	}

	prompt := strings.TrimSpace(msg.Text)
	if prompt == "" {
		prompt = strings.TrimSpace(msg.Caption)
	}
	if prompt == "" {
		return
	}

	mode, _ := state.CurrentMode()
	if mode == session.ModeImage {
		h.generateImage(ctx, msg, prompt)
		return
	}
	h.generateText(ctx, msg, prompt, mode)
}

func (h *Handler) handleProof(ctx context.Context, msg *tgbotapi.Message) {
	proof := approval.Proof{
		UserID:    msg.From.ID,
		FirstName: msg.From.FirstName,
		Text:      msg.Text,
	}
	if len(msg.Photo) > 0 {
		proof.PhotoFileID = msg.Photo[len(msg.Photo)-1].FileID
		proof.Text = msg.Caption
	}

	if proof.PhotoFileID == "" && strings.TrimSpace(proof.Text) == "" {
		h.reply(msg.Chat.ID, msg.MessageID, "📤 Send your Screenshot or Transaction ID now.")
		return
	}

	if _, err := h.approvals.SubmitProof(ctx, proof); err != nil {
		h.logger.Error("ошибка отправки подтверждения", zap.Int64("user_id", proof.UserID), zap.Error(err))
		h.featureUnavailable(msg.Chat.ID, msg.MessageID)
		return
	}

	h.reply(msg.Chat.ID, msg.MessageID, "✅ Proof sent! Admin will verify soon.")
}

func (h *Handler) generateImage(ctx context.Context, msg *tgbotapi.Message, prompt string) {
	userID := msg.From.ID

	pro, err := h.policy.IsProValid(ctx, userID, h.now())
	if err != nil {
		h.logger.Error("ошибка проверки PRO", zap.Int64("user_id", userID), zap.Error(err))
		h.featureUnavailable(msg.Chat.ID, msg.MessageID)
		return
	}
	if !pro {
		if err := h.sessions.Set(ctx, userID, session.Idle()); err != nil {
			h.logger.Error("ошибка сброса режима", zap.Int64("user_id", userID), zap.Error(err))
		}
		h.reply(msg.Chat.ID, msg.MessageID, "❌ PRO membership required.")
		return
	}

	stop := h.keepTyping(ctx, msg.Chat.ID)
	start := time.Now()
	image, err := h.images.Generate(ctx, prompt)
	stop()
	h.metrics.RecordAIRequest(string(session.ModeImage), err == nil, time.Since(start).Seconds())

	if err != nil {
		h.logger.Error("ошибка генерации изображения", zap.Int64("user_id", userID), zap.Error(err))
		h.sendError(msg.Chat.ID, msg.MessageID, err)
		return
	}

	photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileBytes{Name: "image.png", Bytes: image})
	photo.ReplyToMessageID = msg.MessageID
	if _, err := h.bot.Send(photo); err != nil {
		h.logger.Error("ошибка отправки изображения", zap.Int64("user_id", userID), zap.Error(err))
		h.sendError(msg.Chat.ID, msg.MessageID, err)
		return
	}

	if err := h.sessions.Set(ctx, userID, session.Idle()); err != nil {
		h.logger.Error("ошибка сброса режима", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (h *Handler) generateText(ctx context.Context, msg *tgbotapi.Message, prompt string, mode session.Mode) {
	modeName := string(mode)
	if modeName == "" {
		modeName = "chat"
	}

	stop := h.keepTyping(ctx, msg.Chat.ID)
	start := time.Now()
	resp, err := h.aiClient.GenerateResponse(ctx, ai.BuildMessages(prompt, mode == session.ModeResearch), h.opts.AIOptions)
	stop()
	h.metrics.RecordAIRequest(modeName, err == nil, time.Since(start).Seconds())

	if err != nil {
		h.logger.Error("ошибка генерации ответа", zap.Int64("user_id", msg.From.ID), zap.String("mode", modeName), zap.Error(err))
		h.sendError(msg.Chat.ID, msg.MessageID, err)
		return
	}

	if strings.TrimSpace(resp.Content) == "" {
		h.logger.Warn("пустой ответ AI", zap.Int64("user_id", msg.From.ID), zap.String("mode", modeName))
		h.sendError(msg.Chat.ID, msg.MessageID, errEmptyResponse)
		return
	}

	for i, chunk := range splitMessage(resp.Content, MaxMessageLength) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(h.chunkDelay):
			}
		}
		if err := h.sendSafeMessage(msg.Chat.ID, msg.MessageID, chunk, nil); err != nil {
			h.logger.Error("ошибка отправки ответа", zap.Int64("user_id", msg.From.ID), zap.Error(err))
			return
		}
	}
}

func (h *Handler) handleCallbackQuery(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	switch {
	case cb.Data == CallbackVerifyJoin:
		h.handleVerifyJoin(cb)
	case cb.Data == CallbackSendProof:
		h.handleSendProof(ctx, cb)
	case approval.IsAction(cb.Data):
		h.handleAdminAction(ctx, cb)
	default:
		h.answerCallback(cb.ID, "")
	}
}

func (h *Handler) handleVerifyJoin(cb *tgbotapi.CallbackQuery) {
	if !h.isSubscribed(cb.From.ID) {
		h.alert(cb.ID, "Join channel first!")
		return
	}

	h.answerCallback(cb.ID, "")
	if cb.Message != nil {
		if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(cb.Message.Chat.ID, cb.Message.MessageID)); err != nil {
			h.logger.Warn("не удалось удалить сообщение", zap.Int64("user_id", cb.From.ID), zap.Error(err))
		}
	}
	h.sendWithMainKeyboard(cb.From.ID, "✅ Verified!")
}

func (h *Handler) handleSendProof(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	h.answerCallback(cb.ID, "")

	if err := h.approvals.RequestProof(ctx, cb.From.ID); err != nil {
		h.logger.Error("ошибка запроса подтверждения", zap.Int64("user_id", cb.From.ID), zap.Error(err))
		h.featureUnavailable(cb.From.ID, 0)
		return
	}
	h.reply(cb.From.ID, 0, "📤 Send your Screenshot or Transaction ID now.")
}

// handleAdminAction применяет решение администратора и обновляет его сообщение
func (h *Handler) handleAdminAction(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	action, err := approval.ParseAction(cb.Data)
	if err != nil {
		if !h.approvals.IsAdmin(cb.From.ID) {
			h.alert(cb.ID, "⛔ Not permitted.")
			return
		}
		h.logger.Warn("некорректное действие администратора", zap.String("data", cb.Data), zap.Error(err))
		h.alert(cb.ID, "⚠️ Invalid action.")
		return
	}

	outcome, err := h.approvals.Decide(ctx, cb.From.ID, action)
	if errors.Is(err, approval.ErrUnauthorized) {
		h.alert(cb.ID, "⛔ Not permitted.")
		return
	}
	if outcome == nil {
		h.logger.Error("ошибка применения решения", zap.String("action", action.String()), zap.Int64("target_id", action.Target), zap.Error(err))
		h.alert(cb.ID, textUnavailable)
		return
	}
	if err != nil {
		h.logger.Error("решение применено с ошибкой уведомления", zap.Int64("target_id", action.Target), zap.Error(err))
	}

	h.answerCallback(cb.ID, "")
	h.editDecision(cb.Message, outcome)
}

func (h *Handler) editDecision(message *tgbotapi.Message, outcome *approval.Outcome) {
	if message == nil {
		return
	}

	markup := notify.InlineKeyboard(outcome.Buttons())

	var edit tgbotapi.Chattable
	if len(message.Photo) > 0 {
		e := tgbotapi.NewEditMessageCaption(message.Chat.ID, message.MessageID, outcome.AdminText)
		e.ParseMode = tgbotapi.ModeMarkdown
		e.ReplyMarkup = markup
		edit = e
	} else {
		e := tgbotapi.NewEditMessageText(message.Chat.ID, message.MessageID, outcome.AdminText)
		e.ParseMode = tgbotapi.ModeMarkdown
		e.ReplyMarkup = markup
		edit = e
	}

	if _, err := h.bot.Request(edit); err != nil {
		h.logger.Warn("не удалось обновить сообщение администратора",
			zap.Int64("target_id", outcome.Action.Target),
			zap.Error(err))
	}
}

// isSubscribed проверяет подписку пользователя на обязательный канал.
// Любая ошибка Telegram считается отсутствием подписки
func (h *Handler) isSubscribed(userID int64) bool {
	if h.opts.ChannelID == "" {
		return true
	}

	chat := tgbotapi.ChatConfigWithUser{UserID: userID}
	if id, err := strconv.ParseInt(h.opts.ChannelID, 10, 64); err == nil {
		chat.ChatID = id
	} else {
		chat.SuperGroupUsername = h.opts.ChannelID
	}

	member, err := h.bot.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chat})
	if err != nil {
		h.logger.Debug("ошибка проверки подписки на канал", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}

	return member.Status == "member" || member.IsAdministrator() || member.IsCreator()
}

// keepTyping показывает индикатор набора, пока не вызвана функция остановки
func (h *Handler) keepTyping(ctx context.Context, chatID int64) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.typingInterval)
		defer ticker.Stop()

		for {
			if _, err := h.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
				h.logger.Debug("ошибка отправки индикатора набора", zap.Int64("chat_id", chatID), zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (h *Handler) mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnResearch), tgbotapi.NewKeyboardButton(BtnWeb)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnImage), tgbotapi.NewKeyboardButton(BtnAccount)),
	)
}

func (h *Handler) sendWithMainKeyboard(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = h.mainKeyboard()
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Error("ошибка отправки клавиатуры", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) sendJoinPrompt(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = *notify.InlineKeyboard([]notify.Button{
		{Text: "Join Channel", URL: h.opts.ChannelLink},
		{Text: "✅ Verify Join", Data: CallbackVerifyJoin},
	})
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Error("ошибка отправки приглашения в канал", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// sendSafeMessage отправляет сообщение с Markdown, при ошибке разметки повторяет обычным текстом
func (h *Handler) sendSafeMessage(chatID int64, replyTo int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	build := func(parseMode string) tgbotapi.MessageConfig {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = parseMode
		msg.ReplyToMessageID = replyTo
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		return msg
	}

	_, err := h.bot.Send(build(tgbotapi.ModeMarkdown))
	if err == nil {
		return nil
	}

	h.logger.Debug("ошибка разметки, отправка обычным текстом", zap.Int64("chat_id", chatID), zap.Error(err))
	_, err = h.bot.Send(build(""))
	return err
}

func (h *Handler) reply(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Error("ошибка отправки сообщения", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// sendError сообщает об ошибке внешнего AI сервиса
func (h *Handler) sendError(chatID int64, replyTo int, err error) {
	h.reply(chatID, replyTo, fmt.Sprintf("⚠️ Error: %v", err))
}

// featureUnavailable сообщает о недоступности функции при ошибке хранилища
func (h *Handler) featureUnavailable(chatID int64, replyTo int) {
	h.reply(chatID, replyTo, textUnavailable)
}

func (h *Handler) answerCallback(id, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		h.logger.Debug("ошибка ответа на callback", zap.Error(err))
	}
}

func (h *Handler) alert(id, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallbackWithAlert(id, text)); err != nil {
		h.logger.Debug("ошибка ответа на callback", zap.Error(err))
	}
}
