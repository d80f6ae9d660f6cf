package store

import (
	"context"
	"sync"
	"testing"

	"ai-assistant/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func int64Ptr(v int64) *int64 { return &v }

func TestMemoryGetOrCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore(zap.NewNop()).Account()

	acc, created, err := repo.GetOrCreate(ctx, 100, "alice", int64Ptr(1))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(100), acc.UserID)
	assert.Equal(t, 0, acc.ReferralCount)
	assert.False(t, acc.IsPro)
	assert.Equal(t, models.ExpiryNone, acc.Expiry)
	require.NotNil(t, acc.ReferredBy)
	assert.Equal(t, int64(1), *acc.ReferredBy)

	// Повторный вызов не создает запись и не меняет referred_by
	again, created, err := repo.GetOrCreate(ctx, 100, "alice_renamed", int64Ptr(2))
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, again.ReferredBy)
	assert.Equal(t, int64(1), *again.ReferredBy)
	assert.Equal(t, "alice", again.DisplayName)
}

func TestMemoryGetOrCreate_SelfReferral(t *testing.T) {
	repo := NewMemoryStore(zap.NewNop()).Account()

	acc, created, err := repo.GetOrCreate(context.Background(), 7, "bob", int64Ptr(7))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, acc.ReferredBy)
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore(zap.NewNop()).Account()

	_, err := repo.GetByUserID(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.SetProStatus(ctx, 404, true, "2030-01-01"), ErrNotFound)

	_, err = repo.IncrementReferralCount(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore(zap.NewNop()).Account()

	acc, _, err := repo.GetOrCreate(ctx, 1, "a", nil)
	require.NoError(t, err)
	acc.IsPro = true

	stored, err := repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, stored.IsPro)
}

func TestMemorySetProStatusAndListPro(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore(zap.NewNop()).Account()

	for _, id := range []int64{3, 1, 2} {
		_, _, err := repo.GetOrCreate(ctx, id, "", nil)
		require.NoError(t, err)
	}

	require.NoError(t, repo.SetProStatus(ctx, 3, true, "2030-01-01"))
	require.NoError(t, repo.SetProStatus(ctx, 1, true, "2030-02-01"))
	require.NoError(t, repo.SetProStatus(ctx, 1, false, models.ExpiryCancelled))

	pro, err := repo.ListPro(ctx)
	require.NoError(t, err)
	require.Len(t, pro, 1)
	assert.Equal(t, int64(3), pro[0].UserID)
	assert.Equal(t, "2030-01-01", pro[0].Expiry)

	cancelled, err := repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ExpiryCancelled, cancelled.Expiry)
}

func TestMemoryListByReferrer(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore(zap.NewNop()).Account()

	_, _, _ = repo.GetOrCreate(ctx, 1, "referrer", nil)
	_, _, _ = repo.GetOrCreate(ctx, 12, "b", int64Ptr(1))
	_, _, _ = repo.GetOrCreate(ctx, 11, "a", int64Ptr(1))
	_, _, _ = repo.GetOrCreate(ctx, 13, "c", int64Ptr(2))

	referred, err := repo.ListByReferrer(ctx, 1)
	require.NoError(t, err)
	require.Len(t, referred, 2)
	assert.Equal(t, int64(11), referred[0].UserID)
	assert.Equal(t, int64(12), referred[1].UserID)
}

func TestMemoryIncrementReferralCount_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore(zap.NewNop()).Account()
	_, _, err := repo.GetOrCreate(ctx, 1, "referrer", nil)
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	seen := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.IncrementReferralCount(ctx, 1)
			assert.NoError(t, err)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	// Каждое значение счетчика выдано ровно один раз
	values := make(map[int]bool)
	for n := range seen {
		assert.False(t, values[n], "значение %d выдано дважды", n)
		values[n] = true
	}
	assert.Len(t, values, workers)

	acc, err := repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, workers, acc.ReferralCount)
}
