package challenge_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/apperr"
	"campusattend/internal/challenge"
	"campusattend/internal/clock"
)

func newLedger() (*challenge.Ledger, *clock.Fixed) {
	clk := clock.NewFixed(time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC))
	return challenge.NewLedger(challenge.NewMemoryStore(), clk, 2*time.Minute), clk
}

func TestIssueAndConsumeOnce(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()

	issued, err := l.Issue(ctx, "stu-1", challenge.PurposeAuthentication)
	require.NoError(t, err)
	assert.Len(t, issued.Value, challenge.Size)
	assert.Equal(t, issued.IssuedAt.Add(2*time.Minute), issued.ExpiresAt)

	got, err := l.Consume(ctx, "stu-1", challenge.PurposeAuthentication)
	require.NoError(t, err)
	assert.Equal(t, issued.Value, got.Value)

	_, err = l.Consume(ctx, "stu-1", challenge.PurposeAuthentication)
	assert.ErrorIs(t, err, apperr.ErrNoActiveChallenge)
}

func TestIssueOverwritesPrevious(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()

	first, err := l.Issue(ctx, "stu-1", challenge.PurposeAuthentication)
	require.NoError(t, err)
	second, err := l.Issue(ctx, "stu-1", challenge.PurposeAuthentication)
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, second.Value)

	got, err := l.Consume(ctx, "stu-1", challenge.PurposeAuthentication)
	require.NoError(t, err)
	assert.Equal(t, second.Value, got.Value)
}

func TestPurposesAreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()

	_, err := l.Issue(ctx, "stu-1", challenge.PurposeRegistration)
	require.NoError(t, err)

	_, err = l.Consume(ctx, "stu-1", challenge.PurposeAuthentication)
	assert.ErrorIs(t, err, apperr.ErrNoActiveChallenge)
	_, err = l.Consume(ctx, "stu-2", challenge.PurposeRegistration)
	assert.ErrorIs(t, err, apperr.ErrNoActiveChallenge)

	_, err = l.Consume(ctx, "stu-1", challenge.PurposeRegistration)
	assert.NoError(t, err)
}

func TestConsumeExpired(t *testing.T) {
	ctx := context.Background()
	l, clk := newLedger()

	_, err := l.Issue(ctx, "stu-1", challenge.PurposeAuthentication)
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	_, err = l.Consume(ctx, "stu-1", challenge.PurposeAuthentication)
	assert.ErrorIs(t, err, apperr.ErrExpired)

	// The expired challenge was removed by the failed consume.
	_, err = l.Consume(ctx, "stu-1", challenge.PurposeAuthentication)
	assert.ErrorIs(t, err, apperr.ErrNoActiveChallenge)
}

func TestRejectsBadKey(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()

	_, err := l.Issue(ctx, "", challenge.PurposeAuthentication)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = l.Issue(ctx, "stu-1", challenge.Purpose("login"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = l.Consume(ctx, "stu-1", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	_, err := l.Issue(ctx, "stu-1", challenge.PurposeAuthentication)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Consume(ctx, "stu-1", challenge.PurposeAuthentication); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	store := challenge.NewMemoryStore()
	now := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, challenge.Challenge{Principal: "a", Purpose: challenge.PurposeAuthentication, ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Put(ctx, challenge.Challenge{Principal: "b", Purpose: challenge.PurposeAuthentication, ExpiresAt: now.Add(time.Minute)}))

	n, err := store.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, found, err := store.Take(ctx, "b", challenge.PurposeAuthentication)
	require.NoError(t, err)
	assert.True(t, found)
}
