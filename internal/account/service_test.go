package account

import (
	"context"
	"testing"
	"time"

	"ai-assistant/internal/notify"
	"ai-assistant/internal/referral"
	"ai-assistant/internal/store"
	"ai-assistant/internal/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	notices []notify.Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notice) error {
	r.notices = append(r.notices, n)
	return nil
}

func newService(t *testing.T) (*Service, store.AccountRepository, *recordingNotifier) {
	t.Helper()
	repo := store.NewMemoryStore(zap.NewNop()).Account()
	notifier := &recordingNotifier{}
	policy := subscription.NewPolicy(repo, nil, zap.NewNop())
	referrals := referral.NewService(repo, policy, notifier, referral.Config{Threshold: 5, RewardDays: 12}, nil, zap.NewNop()).
		WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	return NewService(repo, referrals, zap.NewNop()), repo, notifier
}

func ptr(v int64) *int64 { return &v }

func TestOnFirstContact_CreatesOnce(t *testing.T) {
	ctx := context.Background()
	svc, repo, notifier := newService(t)

	_, err := svc.OnFirstContact(ctx, Contact{UserID: 1, Username: "alice"})
	require.NoError(t, err)

	first, err := svc.OnFirstContact(ctx, Contact{UserID: 2, Username: "bob", ReferrerID: ptr(1)})
	require.NoError(t, err)
	assert.True(t, first.Created)
	require.NotNil(t, first.Referral)
	assert.True(t, first.Referral.Credited)

	// Повторный /start с другим реферером ничего не меняет
	again, err := svc.OnFirstContact(ctx, Contact{UserID: 2, Username: "bob", ReferrerID: ptr(3)})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Nil(t, again.Referral)
	require.NotNil(t, again.Account.ReferredBy)
	assert.Equal(t, int64(1), *again.Account.ReferredBy)

	a, err := repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ReferralCount)

	require.Len(t, notifier.notices, 1)
	assert.Contains(t, notifier.notices[0].Text, "@bob joined.")
}

func TestOnFirstContact_SelfReferralDropped(t *testing.T) {
	ctx := context.Background()
	svc, repo, notifier := newService(t)

	res, err := svc.OnFirstContact(ctx, Contact{UserID: 5, ReferrerID: ptr(5)})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Nil(t, res.Account.ReferredBy)

	acc, err := repo.GetByUserID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, acc.ReferralCount)
	assert.Empty(t, notifier.notices)
}

func TestReferred(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, _ = svc.OnFirstContact(ctx, Contact{UserID: 1})
	_, _ = svc.OnFirstContact(ctx, Contact{UserID: 2, ReferrerID: ptr(1)})
	_, _ = svc.OnFirstContact(ctx, Contact{UserID: 3, ReferrerID: ptr(1)})

	referred, err := svc.Referred(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, referred, 2)
}

func TestParseStartArgument(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		want *int64
	}{
		{name: "пустой", arg: "", want: nil},
		{name: "числовой", arg: "12345", want: ptr(12345)},
		{name: "с пробелами", arg: " 12345 ", want: ptr(12345)},
		{name: "сам себя", arg: "777", want: nil},
		{name: "буквы", arg: "ref_123", want: nil},
		{name: "отрицательный", arg: "-5", want: nil},
		{name: "переполнение", arg: "99999999999999999999", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStartArgument(tt.arg, 777))
		})
	}
}
