package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config содержит все конфигурационные параметры приложения
type Config struct {
	Telegram TelegramConfig
	Admin    AdminConfig
	Channel  ChannelConfig
	Payment  PaymentConfig
	AI       AIConfig
	ImageGen ImageGenConfig
	Database DatabaseConfig
	Session  SessionConfig
	Policy   PolicyConfig
	App      AppConfig
}

// TelegramConfig содержит настройки Telegram бота
type TelegramConfig struct {
	BotToken string
}

// AdminConfig содержит идентификатор единственного администратора
type AdminConfig struct {
	ID int64
}

// ChannelConfig содержит канал, подписка на который обязательна
type ChannelConfig struct {
	ID   string
	Link string
}

// PaymentConfig содержит ссылку на оплату PRO
type PaymentConfig struct {
	CoinbaseLink string
}

// AIConfig содержит настройки OpenRouter
type AIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// ImageGenConfig содержит настройки генерации изображений
type ImageGenConfig struct {
	Token    string
	ModelURL string
}

type DatabaseConfig struct {
	Driver        string // postgres, memory
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MigrationPath string
}

// SessionConfig содержит настройки хранилища сессий
type SessionConfig struct {
	Backend       string // memory, redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// PolicyConfig содержит фиксированные константы подписки
type PolicyConfig struct {
	ReferralThreshold  int
	ReferralRewardDays int
	PaidDurationDays   int
}

type AppConfig struct {
	Env                string
	LogLevel           string
	Port               int
	RateLimitPerMinute int
	ProStatsSchedule   string
}

// Load загружает конфигурацию из переменных окружения и .env
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Telegram
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	// Admin
	cfg.Admin.ID = getEnvInt64Default("ADMIN_ID", 0)

	// Channel
	cfg.Channel.ID = getEnvDefault("CHANNEL_ID", "@AssassinCodar")
	cfg.Channel.Link = getEnvDefault("CHANNEL_LINK", "https://t.me/AssassinCodar")

	// Payment
	cfg.Payment.CoinbaseLink = os.Getenv("COINBASE_LINK")

	// AI
	cfg.AI.APIKey = os.Getenv("OPENROUTER_TOKEN")
	cfg.AI.BaseURL = getEnvDefault("AI_BASE_URL", "https://openrouter.ai/api/v1")
	cfg.AI.Model = getEnvDefault("AI_MODEL", "openai/gpt-4o-mini")
	cfg.AI.MaxTokens = getEnvIntDefault("AI_MAX_TOKENS", 0)
	cfg.AI.Temperature = getEnvFloatDefault("AI_TEMPERATURE", 0)

	// Image generation
	cfg.ImageGen.Token = os.Getenv("HF_TOKEN")
	cfg.ImageGen.ModelURL = getEnvDefault("IMAGE_MODEL_URL", "https://api-inference.huggingface.co/models/runwayml/stable-diffusion-v1-5")

	// Database
	cfg.Database.Driver = getEnvDefault("STORE_DRIVER", "postgres")
	cfg.Database.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.Database.Port = getEnvIntDefault("DB_PORT", 5432)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = os.Getenv("DB_NAME")
	cfg.Database.SSLMode = getEnvDefault("DB_SSL_MODE", "disable")
	cfg.Database.MigrationPath = getEnvDefault("MIGRATION_PATH", "scripts/migrations")

	// Session
	cfg.Session.Backend = getEnvDefault("SESSION_BACKEND", "memory")
	cfg.Session.RedisAddr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Session.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.Session.RedisDB = getEnvIntDefault("REDIS_DB", 0)
	cfg.Session.TTL = getEnvDurationDefault("SESSION_TTL", 24*time.Hour)

	// Policy
	cfg.Policy.ReferralThreshold = getEnvIntDefault("REFERRAL_THRESHOLD", 5)
	cfg.Policy.ReferralRewardDays = getEnvIntDefault("REFERRAL_REWARD_DAYS", 12)
	cfg.Policy.PaidDurationDays = getEnvIntDefault("PAID_DURATION_DAYS", 30)

	// App
	cfg.App.Env = getEnvDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.App.Port = getEnvIntDefault("PORT", 8080)
	cfg.App.RateLimitPerMinute = getEnvIntDefault("RATE_LIMIT_PER_MINUTE", 30)
	cfg.App.ProStatsSchedule = getEnvDefault("PRO_STATS_SCHEDULE", "@every 10m")

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvInt64Default(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	if config.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN не установлен")
	}
	if config.Admin.ID == 0 {
		return fmt.Errorf("ADMIN_ID не установлен")
	}
	if config.AI.APIKey == "" {
		return fmt.Errorf("OPENROUTER_TOKEN не установлен")
	}
	if config.Database.Driver != "postgres" && config.Database.Driver != "memory" {
		return fmt.Errorf("поддерживаются только STORE_DRIVER: postgres, memory")
	}
	if config.Database.Driver == "postgres" {
		if config.Database.Host == "" {
			return fmt.Errorf("DB_HOST не установлен")
		}
		if config.Database.User == "" {
			return fmt.Errorf("DB_USER не установлен")
		}
		if config.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD не установлен")
		}
		if config.Database.Name == "" {
			return fmt.Errorf("DB_NAME не установлен")
		}
	}
	if config.Session.Backend != "memory" && config.Session.Backend != "redis" {
		return fmt.Errorf("поддерживаются только SESSION_BACKEND: memory, redis")
	}
	if config.Policy.ReferralThreshold <= 0 {
		return fmt.Errorf("REFERRAL_THRESHOLD должен быть положительным")
	}
	if config.Policy.ReferralRewardDays <= 0 || config.Policy.PaidDurationDays <= 0 {
		return fmt.Errorf("длительность подписки должна быть положительной")
	}

	return nil
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetMigrationDSN возвращает DSN в формате URL для lib/pq
func (c *DatabaseConfig) GetMigrationDSN() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшн режиме
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// GetLogLevel возвращает уровень логирования в формате zap
func (c *AppConfig) GetLogLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
