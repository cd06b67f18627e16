package ports

import (
	"context"
	"time"

	"carelink/internal/core/domain"
)

// Connection is one live transport handle to a connected user. Pushes are
// safe for concurrent use; Close tears down the underlying transport.
type Connection interface {
	Send(event string, payload interface{}) error
	Close() error
}

// PresenceRegistry maps user ids to their single active connection.
type PresenceRegistry interface {
	// Connect registers the handle for the user and returns the superseded
	// handle, if any. The caller is responsible for closing it.
	Connect(userID domain.UserID, conn Connection) (prev Connection)
	// Disconnect removes the mapping only if it still points at conn, so a
	// superseded connection cannot evict its replacement.
	Disconnect(userID domain.UserID, conn Connection) bool
	Lookup(userID domain.UserID) (Connection, bool)
	IsOnline(userID domain.UserID) bool
	Count() int
	BroadcastPresence(ctx context.Context, userID domain.UserID, isOnline bool)
}

// CallSessionStore holds in-progress call sessions, addressable by call id
// or by derived channel name.
type CallSessionStore interface {
	Create(session *domain.CallSession) error
	Find(callIDOrChannel string) (*domain.CallSession, bool)
	Accept(callIDOrChannel string) (*domain.CallSession, bool)
	Remove(callIDOrChannel string) (*domain.CallSession, bool)
	RemoveSession(session *domain.CallSession)
	FindAllInvolving(userID domain.UserID) []*domain.CallSession
	// TakeExpired removes and returns every session still ringing whose
	// StartTime is before the cutoff.
	TakeExpired(cutoff time.Time) []*domain.CallSession
	Len() int
}

// RelationshipRepository answers whether two users are an authorized care
// pairing and which users are related to a given user. Queried per
// operation; never cached by the hub.
type RelationshipRepository interface {
	Exists(ctx context.Context, a, b domain.UserID) (bool, error)
	RelatedIDs(ctx context.Context, userID domain.UserID) ([]domain.UserID, error)
	Assign(ctx context.Context, a, b domain.UserID) error
	Unassign(ctx context.Context, a, b domain.UserID) error
}

// UserRepository is the user directory backing display names, roles and
// login credentials.
type UserRepository interface {
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Save(ctx context.Context, user *domain.User) error
}

// TokenCache stores minted media-relay tokens for their remaining lifetime
// so repeated requests for the same channel reuse one token. Get reports the
// entry's real expiry; the token's embedded lifetime was fixed at mint time
// and does not restart on a cache hit.
type TokenCache interface {
	Get(ctx context.Context, key string) (token string, expiresAt time.Time, ok bool, err error)
	Set(ctx context.Context, key, token string, ttlSeconds int) error
}
