package registry

import (
	"context"
	"sync"
	"time"

	"carelink/internal/core/domain"
	"carelink/internal/core/ports"

	"go.uber.org/zap"
)

// PresenceRegistry maps each user id to its single live connection. A new
// connect supersedes any prior handle; the caller closes the returned one so
// no transport is left orphaned.
type PresenceRegistry struct {
	conns map[domain.UserID]ports.Connection
	mu    sync.RWMutex

	relationships ports.RelationshipRepository
	logger        *zap.SugaredLogger
}

func NewPresenceRegistry(relationships ports.RelationshipRepository, logger *zap.SugaredLogger) *PresenceRegistry {
	return &PresenceRegistry{
		conns:         make(map[domain.UserID]ports.Connection),
		relationships: relationships,
		logger:        logger,
	}
}

// Connect registers conn for the user and returns the superseded handle, if
// any.
func (r *PresenceRegistry) Connect(userID domain.UserID, conn ports.Connection) ports.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[userID]
	r.conns[userID] = conn
	return prev
}

// Disconnect removes the mapping only if it still points at conn. A
// superseded connection disconnecting late must not evict its replacement.
func (r *PresenceRegistry) Disconnect(userID domain.UserID, conn ports.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[userID]; ok && current == conn {
		delete(r.conns, userID)
		return true
	}
	return false
}

func (r *PresenceRegistry) Lookup(userID domain.UserID) (ports.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

func (r *PresenceRegistry) IsOnline(userID domain.UserID) bool {
	_, ok := r.Lookup(userID)
	return ok
}

func (r *PresenceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// BroadcastPresence pushes a status change to every related user that is
// currently online. Push failures are logged and skipped; presence is
// best-effort.
func (r *PresenceRegistry) BroadcastPresence(ctx context.Context, userID domain.UserID, isOnline bool) {
	relatedIDs, err := r.relationships.RelatedIDs(ctx, userID)
	if err != nil {
		r.logger.Errorw("failed to resolve related users for presence broadcast", "user_id", userID, "error", err)
		return
	}

	event := domain.StatusEvent{
		UserID:    userID,
		IsOnline:  isOnline,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	for _, relatedID := range relatedIDs {
		conn, ok := r.Lookup(relatedID)
		if !ok {
			continue
		}
		if err := conn.Send(domain.EventUserStatusChanged, event); err != nil {
			r.logger.Warnw("failed to push presence event", "user_id", userID, "related_id", relatedID, "error", err)
		}
	}
}
