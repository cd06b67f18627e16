package repositories

import (
	"context"

	"carelink/internal/core/domain"
	"carelink/internal/core/ports"
	"carelink/pkg/circuitbreaker"
)

// GuardedRelationshipRepository wraps a relationship repository with a
// circuit breaker. Every relayed message and call checks the care
// assignment, so a dead Redis must fail these lookups fast instead of
// stalling the whole hub behind connection timeouts.
type GuardedRelationshipRepository struct {
	inner   ports.RelationshipRepository
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedRelationshipRepository wraps inner with the given breaker.
func NewGuardedRelationshipRepository(inner ports.RelationshipRepository, breaker *circuitbreaker.CircuitBreaker) *GuardedRelationshipRepository {
	return &GuardedRelationshipRepository{
		inner:   inner,
		breaker: breaker,
	}
}

func (r *GuardedRelationshipRepository) Exists(ctx context.Context, a, b domain.UserID) (bool, error) {
	var exists bool
	err := r.breaker.Execute(func() error {
		var innerErr error
		exists, innerErr = r.inner.Exists(ctx, a, b)
		return innerErr
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *GuardedRelationshipRepository) RelatedIDs(ctx context.Context, userID domain.UserID) ([]domain.UserID, error) {
	var ids []domain.UserID
	err := r.breaker.Execute(func() error {
		var innerErr error
		ids, innerErr = r.inner.RelatedIDs(ctx, userID)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GuardedRelationshipRepository) Assign(ctx context.Context, a, b domain.UserID) error {
	return r.breaker.Execute(func() error {
		return r.inner.Assign(ctx, a, b)
	})
}

func (r *GuardedRelationshipRepository) Unassign(ctx context.Context, a, b domain.UserID) error {
	return r.breaker.Execute(func() error {
		return r.inner.Unassign(ctx, a, b)
	})
}
