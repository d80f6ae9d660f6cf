package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-assistant/internal/notify"
	"ai-assistant/internal/session"
	"ai-assistant/internal/store"
	"ai-assistant/internal/subscription"
	"ai-assistant/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminID int64 = 1000

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
	sessions *session.MemoryStore
	notifier *recordingNotifier
	workflow *Workflow
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     store.NewMemoryStore(zap.NewNop()).Account(),
		sessions: session.NewMemoryStore(),
		notifier: &recordingNotifier{},
		now:      time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC),
	}
	policy := subscription.NewPolicy(f.repo, nil, zap.NewNop())
	f.workflow = NewWorkflow(f.sessions, policy, f.notifier, adminID, 30, nil, zap.NewNop()).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) account(t *testing.T, userID int64) *models.Account {
	t.Helper()
	acc, err := f.repo.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return acc
}

func TestSubmitProof_RequiresRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflow.SubmitProof(context.Background(), Proof{UserID: 1, Text: "paid"})
	assert.ErrorIs(t, err, ErrNotAwaitingProof)
	assert.Empty(t, f.notifier.notices)
}

func TestSubmitProof_ForwardsToAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.workflow.RequestProof(ctx, 42))
	st, _ := f.sessions.Get(ctx, 42)
	assert.True(t, st.IsAwaitingProof())

	sub, err := f.workflow.SubmitProof(ctx, Proof{UserID: 42, FirstName: "Ann", PhotoFileID: "photo-1"})
	require.NoError(t, err)
	assert.True(t, sub.Forwarded)
	assert.NotEmpty(t, sub.ID)

	require.Len(t, f.notifier.notices, 1)
	n := f.notifier.notices[0]
	assert.Equal(t, adminID, n.UserID)
	assert.Equal(t, "photo-1", n.PhotoFileID)
	assert.Contains(t, n.Text, "User: Ann")
	assert.Contains(t, n.Text, "ID: `42`")
	assert.Contains(t, n.Text, sub.ID)
	require.Len(t, n.Buttons, 2)
	assert.Equal(t, "adm_app:42", n.Buttons[0].Data)
	assert.Equal(t, "adm_rej:42", n.Buttons[1].Data)

	// Ожидание сброшено сразу после пересылки
	st, _ = f.sessions.Get(ctx, 42)
	assert.Equal(t, session.Idle(), st)

	_, err = f.workflow.SubmitProof(ctx, Proof{UserID: 42, Text: "again"})
	assert.ErrorIs(t, err, ErrNotAwaitingProof)
}

func TestSubmitProof_TextProof(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.workflow.RequestProof(ctx, 42))

	_, err := f.workflow.SubmitProof(ctx, Proof{UserID: 42, FirstName: "Ann", Text: "tx 0xabc"})
	require.NoError(t, err)
	assert.Contains(t, f.notifier.notices[0].Text, "Proof: tx 0xabc")
	assert.Empty(t, f.notifier.notices[0].PhotoFileID)
}

func TestSubmitProof_DeliveryFailureClearsFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.err = notify.ErrDeliveryFailed
	require.NoError(t, f.workflow.RequestProof(ctx, 42))

	sub, err := f.workflow.SubmitProof(ctx, Proof{UserID: 42, Text: "paid"})
	require.NoError(t, err)
	assert.False(t, sub.Forwarded)

	st, _ := f.sessions.Get(ctx, 42)
	assert.Equal(t, session.Idle(), st)
}

func TestDecide_ApproveCancelReapprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, err := f.repo.GetOrCreate(ctx, 7, "x", nil)
	require.NoError(t, err)

	out, err := f.workflow.Decide(ctx, adminID, Approve(7))
	require.NoError(t, err)
	assert.Equal(t, "2026-07-01", out.Expiry)
	assert.Equal(t, "✅ Approved: `7`", out.AdminText)
	require.NotNil(t, out.FollowUp)
	assert.Equal(t, Cancel(7), *out.FollowUp)
	assert.Equal(t, []notify.Button{{Text: "Cancel Sub 🚫", Data: "adm_can:7"}}, out.Buttons())
	assert.True(t, out.TargetNotified)
	assert.True(t, f.account(t, 7).IsPro)

	f.now = f.now.AddDate(0, 0, 10)
	out, err = f.workflow.Decide(ctx, adminID, Cancel(7))
	require.NoError(t, err)
	assert.Equal(t, "🚫 Cancelled: `7`", out.AdminText)
	assert.Equal(t, []notify.Button{{Text: "Re-Approve ✅", Data: "adm_app:7"}}, out.Buttons())
	acc := f.account(t, 7)
	assert.False(t, acc.IsPro)
	assert.Equal(t, models.ExpiryCancelled, acc.Expiry)

	// Повторное одобрение считает срок от текущего момента
	f.now = f.now.AddDate(0, 0, 5)
	out, err = f.workflow.Decide(ctx, adminID, Approve(7))
	require.NoError(t, err)
	assert.Equal(t, "2026-07-16", out.Expiry)
	acc = f.account(t, 7)
	assert.True(t, acc.IsPro)
	assert.Equal(t, "2026-07-16", acc.Expiry)

	texts := make([]string, 0, len(f.notifier.notices))
	for _, n := range f.notifier.notices {
		assert.Equal(t, int64(7), n.UserID)
		texts = append(texts, n.Text)
	}
	assert.Equal(t, []string{textActivated, textCancelled, textActivated}, texts)
}

func TestDecide_Reject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.repo.GetOrCreate(ctx, 7, "x", nil)

	out, err := f.workflow.Decide(ctx, adminID, Reject(7))
	require.NoError(t, err)
	assert.Equal(t, "❌ Rejected: `7`", out.AdminText)
	assert.Nil(t, out.Buttons())
	assert.False(t, f.account(t, 7).IsPro)
	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, textRejected, f.notifier.notices[0].Text)
}

func TestDecide_NonAdminChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _ = f.repo.GetOrCreate(ctx, 7, "x", nil)
	before := f.account(t, 7)

	for _, action := range []Action{Approve(7), Cancel(7), Reject(7)} {
		out, err := f.workflow.Decide(ctx, 7, action)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Nil(t, out)
	}

	after := f.account(t, 7)
	assert.Equal(t, before.IsPro, after.IsPro)
	assert.Equal(t, before.Expiry, after.Expiry)
	assert.Empty(t, f.notifier.notices)
}

func TestDecide_DeliveryFailureKeepsGrant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.err = notify.ErrDeliveryFailed
	_, _, _ = f.repo.GetOrCreate(ctx, 7, "x", nil)

	out, err := f.workflow.Decide(ctx, adminID, Approve(7))
	require.NoError(t, err)
	assert.False(t, out.TargetNotified)
	assert.True(t, f.account(t, 7).IsPro)
}

func TestDecide_UnknownTarget(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflow.Decide(context.Background(), adminID, Approve(404))
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
