package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"ai-assistant/internal/account"
	"ai-assistant/internal/store"
	"ai-assistant/internal/subscription"
	"ai-assistant/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTools(repo store.AccountRepository) *tools {
	return &tools{
		accounts:        repo,
		service:         account.NewService(repo, nil, zap.NewNop()),
		policy:          subscription.NewPolicy(repo, nil, zap.NewNop()),
		migrationStatus: func() error { return nil },
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)

	repo := store.NewMemoryStore(zap.NewNop()).Account()
	tl := newTools(repo)

	referrer := int64(1)
	_, _, err := repo.GetOrCreate(ctx, 1, "owner", nil)
	require.NoError(t, err)
	_, _, err = repo.GetOrCreate(ctx, 2, "friend", &referrer)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(ctx, &out, tl, "grant", 1, 30, now))
	assert.Contains(t, out.String(), "2026-02-14")

	out.Reset()
	require.NoError(t, run(ctx, &out, tl, "show", 1, 0, now))
	assert.Contains(t, out.String(), "PRO: true")
	assert.Contains(t, out.String(), "2 friend")

	out.Reset()
	require.NoError(t, run(ctx, &out, tl, "revoke", 1, 0, now))
	acc, err := repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, acc.IsPro)
	assert.Equal(t, "Cancelled", acc.Expiry)

	assert.Error(t, run(ctx, &out, tl, "delete", 1, 0, now))
	assert.ErrorIs(t, run(ctx, &out, tl, "show", 42, 0, now), store.ErrNotFound)
}

// listFailRepo отдает аккаунт, но не может получить список приглашенных
type listFailRepo struct {
	store.AccountRepository
}

func (listFailRepo) ListByReferrer(context.Context, int64) ([]*models.Account, error) {
	return nil, store.ErrUnavailable
}

func TestRun_ShowReferredError(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryStore(zap.NewNop()).Account()
	_, _, err := repo.GetOrCreate(ctx, 1, "owner", nil)
	require.NoError(t, err)

	var out bytes.Buffer
	err = run(ctx, &out, newTools(listFailRepo{repo}), "show", 1, 0, time.Now())
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Contains(t, err.Error(), "приглашенных")
}

func TestRun_Migrations(t *testing.T) {
	ctx := context.Background()
	tl := newTools(nil)

	called := false
	tl.migrationStatus = func() error {
		called = true
		return nil
	}
	require.NoError(t, run(ctx, &bytes.Buffer{}, tl, "migrations", 0, 0, time.Now()))
	assert.True(t, called)

	boom := errors.New("connection refused")
	tl.migrationStatus = func() error { return boom }
	assert.ErrorIs(t, run(ctx, &bytes.Buffer{}, tl, "migrations", 0, 0, time.Now()), boom)
}
