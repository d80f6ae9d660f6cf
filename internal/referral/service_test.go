package referral

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-assistant/internal/notify"
	"ai-assistant/internal/store"
	"ai-assistant/internal/subscription"
	"ai-assistant/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var signupTime = time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	notices []notify.Notice
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notice) error {
	r.notices = append(r.notices, n)
	return r.err
}

type fixture struct {
	repo     store.AccountRepository
	notifier *recordingNotifier
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := store.NewMemoryStore(zap.NewNop()).Account()
	policy := subscription.NewPolicy(repo, nil, zap.NewNop())
	notifier := &recordingNotifier{}
	svc := NewService(repo, policy, notifier, Config{Threshold: 5, RewardDays: 12}, nil, zap.NewNop()).
		WithClock(func() time.Time { return signupTime })
	return &fixture{repo: repo, notifier: notifier, service: svc}
}

func (f *fixture) signup(t *testing.T, userID int64, referrerID *int64) *Result {
	t.Helper()
	ctx := context.Background()
	acc, created, err := f.repo.GetOrCreate(ctx, userID, "", referrerID)
	require.NoError(t, err)
	require.True(t, created)
	res, err := f.service.Attribute(ctx, Joiner{UserID: userID, FirstName: "User"}, acc.ReferredBy)
	require.NoError(t, err)
	return res
}

func ptr(v int64) *int64 { return &v }

func TestAttribute_FifthReferralRewards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Пользователь A без пригласившего
	res := f.signup(t, 1, nil)
	assert.False(t, res.Credited)

	a, err := f.repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, a.ReferralCount)
	assert.False(t, a.IsPro)

	for i := int64(2); i <= 5; i++ {
		res = f.signup(t, i, ptr(1))
		assert.True(t, res.Credited)
		assert.False(t, res.Rewarded)
	}

	// После четырех рефералов A не получает PRO
	a, err = f.repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, a.ReferralCount)
	assert.False(t, a.IsPro)
	assert.Equal(t, models.ExpiryNone, a.Expiry)

	res = f.signup(t, 6, ptr(1))
	assert.True(t, res.Rewarded)
	assert.Equal(t, 5, res.ReferralCount)
	assert.Equal(t, "2026-05-13", res.Expiry)

	a, err = f.repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, a.IsPro)
	assert.Equal(t, "2026-05-13", a.Expiry)
	assert.True(t, subscription.IsValid(a, signupTime))

	require.Len(t, f.notifier.notices, 5)
	last := f.notifier.notices[4]
	assert.Equal(t, int64(1), last.UserID)
	assert.Contains(t, last.Text, "Total Referrals: `5`")
	assert.Contains(t, last.Text, "12 Days PRO added automatically!")
	assert.NotContains(t, f.notifier.notices[3].Text, "PRO added")
}

func TestAttribute_RewardFiresOncePerMultiple(t *testing.T) {
	f := newFixture(t)
	f.signup(t, 1, nil)

	var rewards int
	for i := int64(2); i <= 11; i++ {
		if f.signup(t, i, ptr(1)).Rewarded {
			rewards++
		}
	}
	assert.Equal(t, 2, rewards)
}

func TestAttribute_SelfReferralNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.repo.GetOrCreate(ctx, 7, "", nil)
	require.NoError(t, err)

	res, err := f.service.Attribute(ctx, Joiner{UserID: 7}, ptr(7))
	require.NoError(t, err)
	assert.False(t, res.Credited)

	acc, err := f.repo.GetByUserID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, acc.ReferralCount)
	assert.Empty(t, f.notifier.notices)
}

func TestAttribute_UnknownReferrerNoop(t *testing.T) {
	f := newFixture(t)

	res := f.signup(t, 2, ptr(999))
	assert.False(t, res.Credited)
	assert.Empty(t, f.notifier.notices)
}

func TestAttribute_DeliveryFailureKeepsCredit(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = notify.ErrDeliveryFailed
	f.signup(t, 1, nil)

	for i := int64(2); i <= 6; i++ {
		res := f.signup(t, i, ptr(1))
		assert.True(t, res.Credited)
		assert.False(t, res.Notified)
	}

	a, err := f.repo.GetByUserID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, a.ReferralCount)
	assert.True(t, a.IsPro)
}

func TestAttribute_InternalNotifierFaultPropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, 1, nil)
	f.notifier.err = errors.New("notifier misconfigured")

	_, _, err := f.repo.GetOrCreate(ctx, 2, "", ptr(1))
	require.NoError(t, err)
	res, err := f.service.Attribute(ctx, Joiner{UserID: 2}, ptr(1))
	assert.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Credited)

	// Начисление уже зафиксировано
	a, err := f.repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ReferralCount)
}

type unavailableRepo struct{}

func (unavailableRepo) IncrementReferralCount(context.Context, int64) (int, error) {
	return 0, store.ErrUnavailable
}

func TestAttribute_StorageUnavailable(t *testing.T) {
	svc := NewService(unavailableRepo{}, nil, &recordingNotifier{}, Config{Threshold: 5, RewardDays: 12}, nil, zap.NewNop())
	_, err := svc.Attribute(context.Background(), Joiner{UserID: 2}, ptr(1))
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestJoinerLabel(t *testing.T) {
	assert.Equal(t, "@alice", Joiner{Username: "alice", FirstName: "Alice"}.Label())
	assert.Equal(t, "Alice", Joiner{FirstName: "Alice"}.Label())
	assert.Equal(t, "Someone", Joiner{}.Label())
}

func TestComposeNotice(t *testing.T) {
	assert.Equal(t, "🔔 *New Referral!*\n@bob joined.\nTotal Referrals: `3`", ComposeNotice("@bob", 3, false, 12))
	assert.Equal(t, "🔔 *New Referral!*\nBob joined.\nTotal Referrals: `10`\n🎉 12 Days PRO added automatically!", ComposeNotice("Bob", 10, true, 12))
}

func TestLink(t *testing.T) {
	assert.Equal(t, "https://t.me/my_bot?start=42", Link("my_bot", 42))
}
