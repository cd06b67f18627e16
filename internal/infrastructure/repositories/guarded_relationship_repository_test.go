package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink/internal/core/domain"
	"carelink/internal/infrastructure/repositories/memory"
	"carelink/pkg/circuitbreaker"
)

type failingRelationships struct {
	err   error
	calls int
}

func (f *failingRelationships) Exists(ctx context.Context, a, b domain.UserID) (bool, error) {
	f.calls++
	return false, f.err
}

func (f *failingRelationships) RelatedIDs(ctx context.Context, userID domain.UserID) ([]domain.UserID, error) {
	f.calls++
	return nil, f.err
}

func (f *failingRelationships) Assign(ctx context.Context, a, b domain.UserID) error {
	f.calls++
	return f.err
}

func (f *failingRelationships) Unassign(ctx context.Context, a, b domain.UserID) error {
	f.calls++
	return f.err
}

func TestGuardedRepositoryPassesThrough(t *testing.T) {
	inner := memory.NewMemoryRelationshipRepository()
	guarded := NewGuardedRelationshipRepository(inner, circuitbreaker.New(circuitbreaker.DefaultConfig()))
	ctx := context.Background()

	require.NoError(t, guarded.Assign(ctx, 1, 2))

	exists, err := guarded.Exists(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, exists)

	ids, err := guarded.RelatedIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{2}, ids)

	require.NoError(t, guarded.Unassign(ctx, 1, 2))

	exists, err = guarded.Exists(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGuardedRepositoryOpensOnRepeatedFailures(t *testing.T) {
	inner := &failingRelationships{err: errors.New("connection refused")}
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})
	guarded := NewGuardedRelationshipRepository(inner, breaker)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := guarded.Exists(ctx, 1, 2)
		require.Error(t, err)
	}
	assert.Equal(t, 3, inner.calls)

	// Circuit is open now, backend must not be touched.
	_, err := guarded.Exists(ctx, 1, 2)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 3, inner.calls)
}
