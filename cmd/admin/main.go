package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"ai-assistant/internal/account"
	"ai-assistant/internal/config"
	"ai-assistant/internal/migrations"
	"ai-assistant/internal/store"
	"ai-assistant/internal/subscription"

	"go.uber.org/zap"
)

// tools набор зависимостей, с которыми работают действия
type tools struct {
	accounts        store.AccountRepository
	service         *account.Service
	policy          *subscription.Policy
	migrationStatus func() error
}

func main() {
	var (
		userID = flag.Int64("user", 0, "ID пользователя")
		action = flag.String("action", "show", "Действие: show, grant, revoke, migrations")
		days   = flag.Int("days", 0, "Срок PRO в днях для grant (0 = PAID_DURATION_DAYS)")
	)
	flag.Parse()

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}
	if *days == 0 {
		*days = cfg.Policy.PaidDurationDays
	}

	t := &tools{
		migrationStatus: func() error { return migrations.GetMigrationStatus(cfg, logger) },
	}

	if *action != "migrations" {
		if *userID <= 0 {
			logger.Fatal("Не указан пользователь", zap.Int64("user", *userID))
		}

		// Подключение к хранилищу
		st, err := store.Open(cfg, logger)
		if err != nil {
			logger.Fatal("Ошибка подключения к хранилищу", zap.Error(err))
		}
		defer st.Close()

		t.accounts = st.Account()
		t.service = account.NewService(st.Account(), nil, logger)
		t.policy = subscription.NewPolicy(st.Account(), nil, logger)
	}

	if err := run(context.Background(), os.Stdout, t, *action, *userID, *days, time.Now()); err != nil {
		logger.Fatal("Ошибка выполнения действия", zap.String("action", *action), zap.Error(err))
	}
}

func run(ctx context.Context, out io.Writer, t *tools, action string, userID int64, days int, now time.Time) error {
	switch action {
	case "show":
		return show(ctx, out, t, userID, now)
	case "grant":
		expiry, err := t.policy.Grant(ctx, userID, days, now, subscription.SourceOperator)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "PRO выдан пользователю %d до %s\n", userID, expiry)
		return nil
	case "revoke":
		if err := t.policy.Revoke(ctx, userID); err != nil {
			return err
		}
		fmt.Fprintf(out, "PRO пользователя %d отменен\n", userID)
		return nil
	case "migrations":
		return t.migrationStatus()
	default:
		return fmt.Errorf("неизвестное действие: %s", action)
	}
}

func show(ctx context.Context, out io.Writer, t *tools, userID int64, now time.Time) error {
	acc, err := t.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ошибка получения аккаунта %d: %w", userID, err)
	}

	status, err := t.policy.Status(ctx, userID, now)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Пользователь: %d (%s)\n", acc.UserID, acc.DisplayName)
	if acc.ReferredBy != nil {
		fmt.Fprintf(out, "Пригласил: %d\n", *acc.ReferredBy)
	}
	fmt.Fprintf(out, "PRO: %t (is_pro=%t)\n", status.ProActive, acc.IsPro)
	fmt.Fprintf(out, "Expiry: %s\n", status.Expiry)
	fmt.Fprintf(out, "Рефералы: %d\n", status.ReferralCount)

	referred, err := t.service.Referred(ctx, userID)
	if err != nil {
		return err
	}
	for _, r := range referred {
		fmt.Fprintf(out, "  - %d %s (%s)\n", r.UserID, r.DisplayName, r.CreatedAt.Format(time.DateOnly))
	}

	return nil
}
