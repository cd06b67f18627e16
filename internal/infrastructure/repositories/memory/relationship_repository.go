package memory

import (
	"context"
	"sync"

	"carelink/internal/core/domain"
	"carelink/internal/core/ports"
)

type pairKey struct {
	low, high domain.UserID
}

func newPairKey(a, b domain.UserID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{low: a, high: b}
}

// MemoryRelationshipRepository stores care assignments as an undirected
// edge set.
type MemoryRelationshipRepository struct {
	edges map[pairKey]struct{}
	mu    sync.RWMutex
}

func NewMemoryRelationshipRepository() ports.RelationshipRepository {
	return &MemoryRelationshipRepository{
		edges: make(map[pairKey]struct{}),
	}
}

func (r *MemoryRelationshipRepository) Exists(ctx context.Context, a, b domain.UserID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.edges[newPairKey(a, b)]
	return exists, nil
}

func (r *MemoryRelationshipRepository) RelatedIDs(ctx context.Context, userID domain.UserID) ([]domain.UserID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var related []domain.UserID
	for edge := range r.edges {
		switch userID {
		case edge.low:
			related = append(related, edge.high)
		case edge.high:
			related = append(related, edge.low)
		}
	}
	return related, nil
}

func (r *MemoryRelationshipRepository) Assign(ctx context.Context, a, b domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.edges[newPairKey(a, b)] = struct{}{}
	return nil
}

func (r *MemoryRelationshipRepository) Unassign(ctx context.Context, a, b domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.edges, newPairKey(a, b))
	return nil
}
