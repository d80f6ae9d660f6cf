package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ai-assistant/internal/account"
	"ai-assistant/internal/ai"
	"ai-assistant/internal/approval"
	"ai-assistant/internal/bot"
	"ai-assistant/internal/config"
	"ai-assistant/internal/imagegen"
	"ai-assistant/internal/metrics"
	"ai-assistant/internal/migrations"
	"ai-assistant/internal/notify"
	"ai-assistant/internal/referral"
	"ai-assistant/internal/scheduler"
	"ai-assistant/internal/session"
	"ai-assistant/internal/store"
	"ai-assistant/internal/subscription"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск AI ассистента",
		zap.String("env", cfg.App.Env),
		zap.String("store", cfg.Database.Driver),
		zap.String("sessions", cfg.Session.Backend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Применение миграций
	if err := migrations.RunMigrations(cfg, logger); err != nil {
		logger.Fatal("ошибка применения миграций", zap.Error(err))
	}

	// Инициализация хранилища
	st, err := store.Open(cfg, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации хранилища", zap.Error(err))
	}
	defer st.Close()

	// Инициализация хранилища сессий
	sessions, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации хранилища сессий", zap.Error(err))
	}
	defer sessions.Close()

	// Инициализация метрик
	metricsSystem := metrics.New(logger)
	metricsHandler := metrics.NewHandler(metricsSystem, logger)

	// Инициализация Telegram бота
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Fatal("ошибка инициализации Telegram бота", zap.Error(err))
	}

	logger.Info("Telegram бот инициализирован",
		zap.String("username", botAPI.Self.UserName),
		zap.Int64("id", botAPI.Self.ID))

	// Инициализация сервисов
	notifier := notify.NewTelegramNotifier(botAPI, metricsSystem, logger)
	policy := subscription.NewPolicy(st.Account(), metricsSystem, logger)
	referralService := referral.NewService(st.Account(), policy, notifier, referral.Config{
		Threshold:  cfg.Policy.ReferralThreshold,
		RewardDays: cfg.Policy.ReferralRewardDays,
	}, metricsSystem, logger)
	accountService := account.NewService(st.Account(), referralService, logger)
	workflow := approval.NewWorkflow(sessions, policy, notifier, cfg.Admin.ID, cfg.Policy.PaidDurationDays, metricsSystem, logger)

	// Внешние AI сервисы
	logger.Info("конфигурация AI",
		zap.String("model", cfg.AI.Model),
		zap.String("base_url", cfg.AI.BaseURL))
	aiClient := ai.NewOpenRouterClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, logger)
	imageClient := imagegen.NewClient(cfg.ImageGen.ModelURL, cfg.ImageGen.Token, logger)

	// Инициализация обработчика
	handler := bot.NewHandler(botAPI, bot.Options{
		BotUsername:        botAPI.Self.UserName,
		ChannelID:          cfg.Channel.ID,
		ChannelLink:        cfg.Channel.Link,
		CoinbaseLink:       cfg.Payment.CoinbaseLink,
		RateLimitPerMinute: cfg.App.RateLimitPerMinute,
		AIOptions: ai.GenerationOptions{
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		},
	}, accountService, policy, workflow, sessions, aiClient, imageClient, metricsSystem, logger)

	// Инициализация планировщика задач
	taskScheduler := scheduler.NewScheduler(logger)
	proJob := scheduler.NewProAccountsJob(st.Account(), metricsSystem, logger)
	if err := taskScheduler.AddJob(ctx, cfg.App.ProStatsSchedule, time.Minute, proJob); err != nil {
		logger.Fatal("ошибка регистрации задачи", zap.String("job", proJob.Name()), zap.Error(err))
	}
	taskScheduler.Start(ctx)

	// Обработка сигналов для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Запуск HTTP сервера
	server := startHTTPServer(cfg.App.Port, metricsHandler, logger)

	// Запуск обработки обновлений
	var inflight sync.WaitGroup
	done := make(chan struct{})
	go func() {
		defer close(done)
		handleUpdates(ctx, botAPI, handler, &inflight, logger)
	}()

	// Периодическая очистка rate limiter
	go cleanupRateLimiter(ctx, handler.RateLimiter())

	logger.Info("приложение запущено и готово к работе",
		zap.String("address", fmt.Sprintf("http://localhost:%d", cfg.App.Port)))

	// Ожидание сигнала завершения
	<-sigChan
	logger.Info("получен сигнал завершения, начинаем graceful shutdown")

	botAPI.StopReceivingUpdates()
	cancel()
	<-done
	inflight.Wait()

	<-taskScheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера", zap.Error(err))
	}

	logger.Info("приложение завершено")
}

// initLogger инициализирует логгер
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	zapConfig := zap.NewDevelopmentConfig()
	if cfg.App.IsProduction() {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = cfg.App.GetLogLevel()
	zapConfig.OutputPaths = []string{"stdout", "logs/app.log"}
	zapConfig.ErrorOutputPaths = []string{"stderr", "logs/error.log"}

	// Создаем директорию для логов если её нет
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
	}

	return zapConfig.Build()
}

// newSessionStore выбирает хранилище сессий по конфигурации
func newSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, error) {
	if cfg.Session.Backend == "redis" {
		rs, err := session.NewRedisStore(ctx, cfg.Session.RedisAddr, cfg.Session.RedisPassword, cfg.Session.RedisDB, cfg.Session.TTL, logger)
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
	logger.Info("сессии хранятся в памяти процесса")
	return session.NewMemoryStore(), nil
}

// handleUpdates обрабатывает обновления от Telegram, каждое в своей горутине
func handleUpdates(ctx context.Context, botAPI *tgbotapi.BotAPI, handler *bot.Handler, inflight *sync.WaitGroup, logger *zap.Logger) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := botAPI.GetUpdatesChan(updateConfig)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			// Пропускаем пустые обновления
			if update.Message == nil && update.CallbackQuery == nil {
				continue
			}

			inflight.Add(1)
			go func(update tgbotapi.Update) {
				defer inflight.Done()
				defer func() {
					if r := recover(); r != nil {
						logger.Error("паника при обработке обновления",
							zap.Int("update_id", update.UpdateID),
							zap.Any("panic", r))
					}
				}()
				handler.HandleUpdate(ctx, update)
			}(update)

		case <-ctx.Done():
			logger.Info("остановка обработки обновлений")
			return
		}
	}
}

// startHTTPServer запускает HTTP сервер для health check и метрик
func startHTTPServer(port int, handler *metrics.Handler, logger *zap.Logger) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("HTTP сервер запущен", zap.String("address", server.Addr))

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ошибка HTTP сервера", zap.Error(err))
		}
	}()

	return server
}

func cleanupRateLimiter(ctx context.Context, rl *bot.RateLimiter) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup(10000)
		}
	}
}
