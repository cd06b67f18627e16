package domain

import (
	"fmt"
	"time"
)

type CallID string

type CallStatus string

const (
	CallStatusRinging  CallStatus = "ringing"
	CallStatusAccepted CallStatus = "accepted"
	CallStatusRejected CallStatus = "rejected"
	CallStatusEnded    CallStatus = "ended"
)

// Terminal reports whether the status admits no further transitions.
func (s CallStatus) Terminal() bool {
	return s == CallStatusRejected || s == CallStatusEnded
}

// CallSession is one in-progress call negotiation between two users.
type CallSession struct {
	CallID      CallID
	ChannelName string
	CallerID    UserID
	TargetID    UserID
	CallType    string
	Status      CallStatus
	StartTime   time.Time
}

// Involves reports whether the user is a participant of the session.
func (s *CallSession) Involves(userID UserID) bool {
	return s.CallerID == userID || s.TargetID == userID
}

// Other returns the opposite participant of the session.
func (s *CallSession) Other(userID UserID) UserID {
	if s.CallerID == userID {
		return s.TargetID
	}
	return s.CallerID
}

// ChannelName derives the media channel name for a pair of users. It is
// symmetric in its arguments so both sides and the token endpoint agree on
// the same channel without a lookup.
func ChannelName(a, b UserID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("call_%d_%d", a, b)
}
