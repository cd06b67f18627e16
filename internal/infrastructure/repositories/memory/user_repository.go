package memory

import (
	"context"
	"sync"

	"carelink/internal/core/domain"
	"carelink/internal/core/ports"
)

type MemoryUserRepository struct {
	users      map[domain.UserID]*domain.User
	byUsername map[string]domain.UserID
	mu         sync.RWMutex
}

func NewMemoryUserRepository() ports.UserRepository {
	return &MemoryUserRepository{
		users:      make(map[domain.UserID]*domain.User),
		byUsername: make(map[string]domain.UserID),
	}
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, domain.ErrUserNotFound
	}

	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byUsername[username]
	if !exists {
		return nil, domain.ErrUserNotFound
	}

	return r.users[id], nil
}

func (r *MemoryUserRepository) Save(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.users[user.ID]; exists && prev.Username != user.Username {
		delete(r.byUsername, prev.Username)
	}

	r.users[user.ID] = user
	r.byUsername[user.Username] = user.ID
	return nil
}
