package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethnolens/ethnolens/internal/pending"
	"github.com/ethnolens/ethnolens/internal/quota"
)

// fakeQuotaRepo is an in-memory quota.Repository.
type fakeQuotaRepo struct {
	rows map[string]*quota.UserQuota
	err  error
}

func newFakeQuotaRepo() *fakeQuotaRepo {
	return &fakeQuotaRepo{rows: make(map[string]*quota.UserQuota)}
}

func (f *fakeQuotaRepo) Get(_ context.Context, userIDHash string) (*quota.UserQuota, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.rows[userIDHash]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeQuotaRepo) StartPeriod(_ context.Context, userIDHash string, resetDate time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.rows[userIDHash] = &quota.UserQuota{UserIDHash: userIDHash, CheckCount: 1, ResetDate: resetDate}
	return nil
}

func (f *fakeQuotaRepo) Increment(_ context.Context, userIDHash string, limit int) error {
	if f.err != nil {
		return f.err
	}
	if u, ok := f.rows[userIDHash]; ok && u.CheckCount < limit {
		u.CheckCount++
	}
	return nil
}

// fakePendingRepo is an in-memory pending.Repository.
type fakePendingRepo struct {
	ops       map[uuid.UUID]pending.Op
	createErr error
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{ops: make(map[uuid.UUID]pending.Op)}
}

func (f *fakePendingRepo) Create(_ context.Context, op pending.Op) (uuid.UUID, error) {
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	op.ID = uuid.New()
	op.CreatedAt = time.Now()
	f.ops[op.ID] = op
	return op.ID, nil
}

func (f *fakePendingRepo) Consume(_ context.Context, userIDHash string, opID uuid.UUID) (*pending.Op, error) {
	op, ok := f.ops[opID]
	if !ok || op.UserIDHash != userIDHash {
		return nil, pending.ErrNotFound
	}
	delete(f.ops, opID)
	return &op, nil
}

func (f *fakePendingRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, op := range f.ops {
		if op.CreatedAt.Before(cutoff) {
			delete(f.ops, id)
			n++
		}
	}
	return n, nil
}

// stubGenerator returns canned answers and counts model calls.
type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (g *stubGenerator) GenerateText(_ context.Context, _ string) (string, error) {
	g.calls++
	return g.text, g.err
}

func (g *stubGenerator) GenerateWithImage(_ context.Context, _, _ string, _ []byte) (string, error) {
	g.calls++
	return g.text, g.err
}

type testEnv struct {
	quotaRepo   *fakeQuotaRepo
	pendingRepo *fakePendingRepo
	gen         *stubGenerator
	svc         *Service
}

func newTestEnv(text string) *testEnv {
	quotaRepo := newFakeQuotaRepo()
	pendingRepo := newFakePendingRepo()
	gen := &stubGenerator{text: text}
	quotaSvc := quota.NewService(quotaRepo, quota.Policy{MaxOperations: 3, Period: 24 * time.Hour})
	return &testEnv{
		quotaRepo:   quotaRepo,
		pendingRepo: pendingRepo,
		gen:         gen,
		svc:         NewService(quotaSvc, pendingRepo, gen),
	}
}

func TestAnalyzeText_NewUser(t *testing.T) {
	env := newTestEnv("Looks inclusive.\nSCORE: 92")
	ctx := context.Background()

	result, err := env.svc.AnalyzeText(ctx, "alice", "review my poster")
	require.NoError(t, err)
	assert.Equal(t, "Looks inclusive.", result.Text)
	require.NotNil(t, result.Score)
	assert.Equal(t, 92, *result.Score)
	assert.NotEmpty(t, result.OpID)
	assert.Equal(t, 1, env.gen.calls)

	// Tentative call has not yet charged usage
	usage, err := env.svc.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)
}

func TestAnalyzeText_DeniedMakesNoModelCall(t *testing.T) {
	env := newTestEnv("ignored")
	env.quotaRepo.rows["alice"] = &quota.UserQuota{
		UserIDHash: "alice", CheckCount: 3, ResetDate: time.Now().Add(time.Hour),
	}

	_, err := env.svc.AnalyzeText(context.Background(), "alice", "review")
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Contains(t, exceeded.Message, "3")
	assert.Equal(t, 0, env.gen.calls)
}

func TestAnalyzeText_GeneratorErrorLeavesNoPending(t *testing.T) {
	env := newTestEnv("")
	env.gen.err = errors.New("model down")

	_, err := env.svc.AnalyzeText(context.Background(), "alice", "review")
	require.Error(t, err)
	assert.Empty(t, env.pendingRepo.ops)
}

func TestAnalyzeText_PendingFailureReturnsUnconfirmableResult(t *testing.T) {
	env := newTestEnv("The verdict. SCORE: 40")
	env.pendingRepo.createErr = errors.New("insert failed")
	ctx := context.Background()

	result, err := env.svc.AnalyzeText(ctx, "alice", "review")
	require.NoError(t, err)
	assert.Equal(t, "The verdict.", result.Text)
	assert.Empty(t, result.OpID)

	// That usage is never charged
	usage, err := env.svc.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)
}

func TestAnalyzeImage(t *testing.T) {
	env := newTestEnv("Avoid this symbol in Japan.")

	result, err := env.svc.AnalyzeImage(context.Background(), "bob", "Japan", "restaurant", "image/png", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "Avoid this symbol in Japan.", result.Text)
	assert.Nil(t, result.Score)
	assert.NotEmpty(t, result.OpID)
}

func TestConfirm_ChargesUsageExactlyOnce(t *testing.T) {
	env := newTestEnv("answer SCORE: 80")
	ctx := context.Background()

	result, err := env.svc.AnalyzeText(ctx, "alice", "review")
	require.NoError(t, err)

	require.NoError(t, env.svc.Confirm(ctx, "alice", result.OpID))

	usage, err := env.svc.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)

	// Second confirm for the same op fails and charges nothing more
	err = env.svc.Confirm(ctx, "alice", result.OpID)
	assert.ErrorIs(t, err, pending.ErrNotFound)

	usage, err = env.svc.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)
}

func TestConfirm_OwnershipEnforced(t *testing.T) {
	env := newTestEnv("answer")
	ctx := context.Background()

	result, err := env.svc.AnalyzeText(ctx, "alice", "review")
	require.NoError(t, err)

	err = env.svc.Confirm(ctx, "mallory", result.OpID)
	assert.ErrorIs(t, err, pending.ErrNotFound)

	// Alice can still confirm her own op
	require.NoError(t, env.svc.Confirm(ctx, "alice", result.OpID))
}

func TestConfirm_UnknownOpID(t *testing.T) {
	env := newTestEnv("answer")

	err := env.svc.Confirm(context.Background(), "alice", uuid.NewString())
	assert.ErrorIs(t, err, pending.ErrNotFound)
}

func TestConfirm_MalformedOpID(t *testing.T) {
	env := newTestEnv("answer")

	err := env.svc.Confirm(context.Background(), "alice", "not-a-uuid")
	assert.ErrorIs(t, err, pending.ErrNotFound)
}

func TestConfirm_NeedsResetSnapshot(t *testing.T) {
	env := newTestEnv("answer")
	ctx := context.Background()

	// Exhausted user whose period ended: check must allow via rollover,
	// and the confirm must reset the count to 1 with a fresh deadline.
	env.quotaRepo.rows["alice"] = &quota.UserQuota{
		UserIDHash: "alice", CheckCount: 3, ResetDate: time.Now().Add(-time.Hour),
	}

	result, err := env.svc.AnalyzeText(ctx, "alice", "review")
	require.NoError(t, err)
	require.NoError(t, env.svc.Confirm(ctx, "alice", result.OpID))

	u := env.quotaRepo.rows["alice"]
	assert.Equal(t, 1, u.CheckCount)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), u.ResetDate, 2*time.Second)
}

// Full two-phase cycle for a fresh user: three analyze+confirm rounds use up
// the quota, the fourth analyze is denied.
func TestTwoPhaseFlow_ExhaustsQuota(t *testing.T) {
	env := newTestEnv("fine SCORE: 99")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		result, err := env.svc.AnalyzeText(ctx, "alice", "review")
		require.NoError(t, err, "round %d", i)
		require.NoError(t, env.svc.Confirm(ctx, "alice", result.OpID))

		usage, err := env.svc.Usage(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, i, usage.Used)
		assert.Equal(t, 3, usage.Limit)
	}

	_, err := env.svc.AnalyzeText(ctx, "alice", "review")
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Contains(t, exceeded.Message, "3")
}

// Abandoned ops never charge usage.
func TestAbandonedPendingNeverCharges(t *testing.T) {
	env := newTestEnv("fine")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.svc.AnalyzeText(ctx, "bob", "review")
		require.NoError(t, err)
	}

	usage, err := env.svc.Usage(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)
	assert.Len(t, env.pendingRepo.ops, 5)
}
