package domain

import "encoding/json"

// Server-to-client event names. These are part of the public wire contract
// with the mobile clients; keep values stable.
const (
	EventUserStatusChanged = "user-status-changed"
	EventNewMessage        = "new-message"
	EventMessageSent       = "message-sent"
	EventIncomingCall      = "incoming-call"
	EventCallInitiated     = "call-initiated"
	EventCallFailed        = "call-failed"
	EventCallAccepted      = "call-accepted"
	EventCallRejected      = "call-rejected"
	EventCallEnded         = "call-ended"
	EventWebRTCOffer       = "webrtc-offer"
	EventWebRTCAnswer      = "webrtc-answer"
	EventICECandidate      = "webrtc-ice-candidate"
	EventError             = "error"
)

// StatusEvent notifies related users about a presence change.
type StatusEvent struct {
	UserID    UserID `json:"userId"`
	IsOnline  bool   `json:"isOnline"`
	Timestamp string `json:"timestamp"`
}

// MessageEvent carries one relayed chat message. The same payload is pushed
// to the target as "new-message" and echoed to the sender as "message-sent".
type MessageEvent struct {
	ID           string `json:"id"`
	SenderID     UserID `json:"senderId"`
	TargetUserID UserID `json:"targetUserId"`
	Message      string `json:"message"`
	SenderName   string `json:"senderName"`
	Timestamp    string `json:"timestamp"`
}

// CallEvent announces a new call to both parties. CallID deliberately carries
// the channel name rather than the internal session id so clients can use one
// value both to answer and to join the media channel.
type CallEvent struct {
	CallID      string   `json:"callId"`
	CallerID    UserID   `json:"callerId"`
	CallerName  string   `json:"callerName"`
	CallerRole  UserRole `json:"callerRole"`
	CallType    string   `json:"callType"`
	Timestamp   string   `json:"timestamp"`
	ChannelName string   `json:"channelName"`
}

// CallStateEvent reports an accept/reject/end transition.
type CallStateEvent struct {
	CallID      string `json:"callId"`
	ChannelName string `json:"channelName,omitempty"`
}

// CallFailedEvent tells the caller why a call could not be placed. Distinct
// from ErrorEvent: an unreachable or busy target is routine, not a fault.
type CallFailedEvent struct {
	Reason string `json:"reason"`
}

// RelayEvent forwards a WebRTC signaling payload verbatim.
type RelayEvent struct {
	SenderID UserID          `json:"senderId"`
	Payload  json.RawMessage `json:"payload"`
}

// ErrorEvent is pushed to the offending caller only.
type ErrorEvent struct {
	Message string `json:"message"`
}
