package registry

import (
	"sync"
	"time"

	"carelink/internal/core/domain"
)

// CallSessionStore holds in-progress call sessions. One authoritative map is
// keyed by call id; a secondary index maps channel names to call ids and is
// kept in lockstep under the same lock, so a session is never observable
// under one key but not the other.
type CallSessionStore struct {
	sessions  map[domain.CallID]*domain.CallSession
	byChannel map[string]domain.CallID
	mu        sync.RWMutex
}

func NewCallSessionStore() *CallSessionStore {
	return &CallSessionStore{
		sessions:  make(map[domain.CallID]*domain.CallSession),
		byChannel: make(map[string]domain.CallID),
	}
}

// Create inserts the session under both its call id and channel name.
// A live session for the same channel rejects the insert; exactly one call
// per participant pair may be in flight.
func (s *CallSessionStore) Create(session *domain.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ChannelName != "" {
		if _, exists := s.byChannel[session.ChannelName]; exists {
			return domain.ErrCallExists
		}
	}
	if _, exists := s.sessions[session.CallID]; exists {
		return domain.ErrCallExists
	}

	s.sessions[session.CallID] = session
	if session.ChannelName != "" {
		s.byChannel[session.ChannelName] = session.CallID
	}
	return nil
}

// Find resolves a session by call id, falling back to the channel index for
// callers that only know the channel name.
func (s *CallSessionStore) Find(callIDOrChannel string) (*domain.CallSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findLocked(callIDOrChannel)
}

func (s *CallSessionStore) findLocked(callIDOrChannel string) (*domain.CallSession, bool) {
	if session, ok := s.sessions[domain.CallID(callIDOrChannel)]; ok {
		return session, true
	}
	if callID, ok := s.byChannel[callIDOrChannel]; ok {
		session, ok := s.sessions[callID]
		return session, ok
	}
	return nil, false
}

// Accept marks the session accepted and returns it. Terminal sessions are
// not resurrected.
func (s *CallSessionStore) Accept(callIDOrChannel string) (*domain.CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.findLocked(callIDOrChannel)
	if !ok || session.Status.Terminal() {
		return nil, false
	}
	session.Status = domain.CallStatusAccepted
	return session, true
}

// Remove deletes the session addressed by either key, removing both entries.
func (s *CallSessionStore) Remove(callIDOrChannel string) (*domain.CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.findLocked(callIDOrChannel)
	if !ok {
		return nil, false
	}
	s.removeLocked(session)
	return session, true
}

// RemoveSession deletes a known session under both keys.
func (s *CallSessionStore) RemoveSession(session *domain.CallSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(session)
}

func (s *CallSessionStore) removeLocked(session *domain.CallSession) {
	delete(s.sessions, session.CallID)
	if session.ChannelName != "" {
		delete(s.byChannel, session.ChannelName)
	}
}

// FindAllInvolving returns every session the user participates in. Used for
// disconnect cleanup.
func (s *CallSessionStore) FindAllInvolving(userID domain.UserID) []*domain.CallSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var involved []*domain.CallSession
	for _, session := range s.sessions {
		if session.Involves(userID) {
			involved = append(involved, session)
		}
	}
	return involved
}

// TakeExpired removes and returns every session still ringing whose
// StartTime is before the cutoff.
func (s *CallSessionStore) TakeExpired(cutoff time.Time) []*domain.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*domain.CallSession
	for _, session := range s.sessions {
		if session.Status == domain.CallStatusRinging && session.StartTime.Before(cutoff) {
			expired = append(expired, session)
		}
	}
	for _, session := range expired {
		s.removeLocked(session)
	}
	return expired
}

func (s *CallSessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
