package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"carelink/internal/core/domain"
	"carelink/internal/core/ports"
	"carelink/internal/core/services"
	"carelink/internal/infrastructure/monitoring"
	"carelink/pkg/config"
	"carelink/pkg/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub is the signaling orchestrator: it authenticates each connection,
// tracks presence, relays chat between authorized pairs and drives the call
// state machine over the session store.
type Hub struct {
	presence      ports.PresenceRegistry
	calls         ports.CallSessionStore
	relationships ports.RelationshipRepository
	users         ports.UserRepository
	auth          services.AuthService
	metrics       *monitoring.PrometheusCollector // may be nil

	pingInterval    time.Duration
	pongTimeout     time.Duration
	writeTimeout    time.Duration
	ringTimeout     time.Duration
	janitorInterval time.Duration

	rateLimitEnabled bool
	messagesPerSec   rate.Limit
	messageBurst     int
	maxMessageSize   int64

	logger *zap.SugaredLogger
}

// ClientMessage is the envelope for every client-to-server operation.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type sendMessagePayload struct {
	TargetUserID domain.UserID `json:"targetUserId"`
	Message      string        `json:"message"`
}

type initiateCallPayload struct {
	TargetUserID domain.UserID `json:"targetUserId"`
	CallType     string        `json:"callType"`
}

type callRefPayload struct {
	CallID string `json:"callId"`
}

type relayPayload struct {
	TargetUserID domain.UserID   `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload"`
}

func NewHub(
	cfg *config.Config,
	presence ports.PresenceRegistry,
	calls ports.CallSessionStore,
	relationships ports.RelationshipRepository,
	users ports.UserRepository,
	auth services.AuthService,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *Hub {
	return &Hub{
		presence:         presence,
		calls:            calls,
		relationships:    relationships,
		users:            users,
		auth:             auth,
		metrics:          metrics,
		pingInterval:     cfg.Signal.PingInterval,
		pongTimeout:      cfg.Signal.PongTimeout,
		writeTimeout:     10 * time.Second,
		ringTimeout:      cfg.Signal.RingTimeout,
		janitorInterval:  cfg.Signal.JanitorInterval,
		rateLimitEnabled: cfg.RateLimiting.Enabled,
		messagesPerSec:   rate.Limit(cfg.RateLimiting.WebSocket.MessagesPerSecond),
		messageBurst:     cfg.RateLimiting.WebSocket.Burst,
		maxMessageSize:   cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		logger:           logger,
	}
}

// ConnectionCount reports the number of currently connected users.
func (h *Hub) ConnectionCount() int {
	return h.presence.Count()
}

// authenticate resolves the caller identity from the upgrade request. The
// mobile clients pass the JWT either as a `token` query parameter or as a
// bearer Authorization header.
func (h *Hub) authenticate(r *http.Request) (domain.UserID, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return 0, domain.ErrUnauthorized
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		return 0, err
	}
	if claims.UserID == 0 {
		return 0, domain.ErrUnauthorized
	}
	return claims.UserID, nil
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		h.logger.Warnw("websocket authentication failed", "error", err, "remote_addr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if h.maxMessageSize > 0 {
		conn.SetReadLimit(h.maxMessageSize)
	}

	wsc := newWSConnection(conn, h.writeTimeout)

	// Last connection wins: the superseded handle is closed so no orphaned
	// transport lingers behind a stale registry entry.
	if prev := h.presence.Connect(userID, wsc); prev != nil {
		prev.Close()
		h.logger.Infow("closing old connection for reconnecting user", "user_id", userID)
	}

	if h.metrics != nil {
		h.metrics.RecordUserConnected()
	}

	h.logger.Infow("user connected", "user_id", userID, "remote_addr", r.RemoteAddr)
	h.presence.BroadcastPresence(context.Background(), userID, true)

	conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
		return nil
	})

	var limiter *rate.Limiter
	if h.rateLimitEnabled {
		limiter = rate.NewLimiter(h.messagesPerSec, h.messageBurst)
	}

	pingTicker := time.NewTicker(h.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan ClientMessage, 10)
	errorChan := make(chan error, 1)

	// Closed when the select loop below returns, so the reader never parks
	// forever on a full messageChan nobody drains anymore.
	done := make(chan struct{})
	defer close(done)

	go h.readMessages(conn, messageChan, errorChan, done)

	for {
		select {
		case msg := <-messageChan:
			if limiter != nil && !limiter.Allow() {
				h.sendError(wsc, "rate limit exceeded")
				continue
			}
			if err := h.handleMessage(context.Background(), userID, wsc, msg); err != nil {
				h.logger.Infow("error handling message from user", "user_id", userID, "type", msg.Type, "error", err)
				h.sendError(wsc, err.Error())
			}

		case <-pingTicker.C:
			if err := wsc.ping(); err != nil {
				h.logger.Infow("error sending ping", "user_id", userID, "error", err)
				h.cleanupConnection(userID, wsc)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Infow("error reading message from user", "user_id", userID, "error", err)
			}
			h.cleanupConnection(userID, wsc)
			return
		}
	}
}

// readMessages pumps inbound frames into messageChan until the connection
// errors or done closes.
func (h *Hub) readMessages(conn *websocket.Conn, messageChan chan<- ClientMessage, errorChan chan<- error, done <-chan struct{}) {
	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case errorChan <- err:
			case <-done:
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
		select {
		case messageChan <- msg:
		case <-done:
			return
		}
	}
}

// cleanupConnection tears down state tied to a closing connection. A
// superseded handle finds itself no longer registered and must leave the
// replacement's sessions and presence alone.
func (h *Hub) cleanupConnection(userID domain.UserID, wsc *wsConnection) {
	if !h.presence.Disconnect(userID, wsc) {
		h.logger.Debugw("superseded connection closed", "user_id", userID)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordUserDisconnected()
	}

	for _, session := range h.calls.FindAllInvolving(userID) {
		h.calls.RemoveSession(session)
		h.pushCallEvent(session.Other(userID), domain.EventCallEnded, domain.CallStateEvent{
			CallID:      session.ChannelName,
			ChannelName: session.ChannelName,
		})
		if h.metrics != nil {
			h.metrics.RecordCallEnded("disconnected", session.StartTime)
		}
		h.logger.Infow("call ended by disconnect",
			"call_id", session.CallID,
			"channel", session.ChannelName,
			"user_id", userID,
		)
	}

	h.presence.BroadcastPresence(context.Background(), userID, false)
	h.logger.Infow("user disconnected", "user_id", userID)
}

func (h *Hub) handleMessage(ctx context.Context, userID domain.UserID, wsc *wsConnection, msg ClientMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}

	ctx, span := tracing.TraceHubOperation(ctx, msg.Type, int64(userID))
	defer span.End()

	switch msg.Type {
	case "send_message":
		return h.handleSendMessage(ctx, userID, wsc, msg)
	case "initiate_call":
		return h.handleInitiateCall(ctx, userID, wsc, msg)
	case "accept_call":
		return h.handleAcceptCall(ctx, userID, wsc, msg)
	case "reject_call":
		return h.handleRejectCall(ctx, userID, msg)
	case "end_call":
		return h.handleEndCall(ctx, userID, msg)
	case "webrtc_offer":
		return h.handleRelay(ctx, userID, domain.EventWebRTCOffer, msg)
	case "webrtc_answer":
		return h.handleRelay(ctx, userID, domain.EventWebRTCAnswer, msg)
	case "ice_candidate":
		return h.handleRelay(ctx, userID, domain.EventICECandidate, msg)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, senderID domain.UserID, wsc *wsConnection, msg ClientMessage) error {
	var payload sendMessagePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid send_message payload: %w", err)
	}
	if payload.TargetUserID == 0 {
		return fmt.Errorf("targetUserId is required")
	}

	if err := h.requireRelationship(ctx, senderID, payload.TargetUserID); err != nil {
		return err
	}

	event := domain.MessageEvent{
		ID:           uuid.NewString(),
		SenderID:     senderID,
		TargetUserID: payload.TargetUserID,
		Message:      payload.Message,
		SenderName:   h.displayName(ctx, senderID),
		Timestamp:    nowISO(),
	}

	// Delivery is best-effort: an offline target drops the message, the
	// sender still gets its confirmation.
	if target, online := h.presence.Lookup(payload.TargetUserID); online {
		if err := target.Send(domain.EventNewMessage, event); err != nil {
			h.logger.Warnw("failed to deliver message", "sender_id", senderID, "target_id", payload.TargetUserID, "error", err)
		} else if h.metrics != nil {
			h.metrics.RecordMessageRelayed(domain.EventNewMessage)
		}
	}

	return wsc.Send(domain.EventMessageSent, event)
}

func (h *Hub) handleInitiateCall(ctx context.Context, callerID domain.UserID, wsc *wsConnection, msg ClientMessage) error {
	var payload initiateCallPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid initiate_call payload: %w", err)
	}
	if payload.TargetUserID == 0 {
		return fmt.Errorf("targetUserId is required")
	}

	if err := h.requireRelationship(ctx, callerID, payload.TargetUserID); err != nil {
		return err
	}

	// An offline target is routine, not a fault: the caller gets the softer
	// call-failed so its UI can react.
	if !h.presence.IsOnline(payload.TargetUserID) {
		return wsc.Send(domain.EventCallFailed, domain.CallFailedEvent{Reason: "user is not online"})
	}

	session := &domain.CallSession{
		CallID:      domain.CallID(uuid.NewString()),
		ChannelName: domain.ChannelName(callerID, payload.TargetUserID),
		CallerID:    callerID,
		TargetID:    payload.TargetUserID,
		CallType:    payload.CallType,
		Status:      domain.CallStatusRinging,
		StartTime:   time.Now(),
	}

	if err := h.calls.Create(session); err != nil {
		// Glare or a duplicate dial while a session is live for this pair.
		return wsc.Send(domain.EventCallFailed, domain.CallFailedEvent{Reason: "call already in progress"})
	}

	caller, err := h.users.GetByID(ctx, callerID)
	if err != nil {
		h.logger.Warnw("failed to resolve caller identity", "caller_id", callerID, "error", err)
		caller = &domain.User{ID: callerID}
	}

	// Clients get the channel name as the call id so one value answers the
	// call and joins the media channel.
	event := domain.CallEvent{
		CallID:      session.ChannelName,
		CallerID:    callerID,
		CallerName:  caller.DisplayName(),
		CallerRole:  caller.Role,
		CallType:    payload.CallType,
		Timestamp:   nowISO(),
		ChannelName: session.ChannelName,
	}

	h.pushCallEvent(payload.TargetUserID, domain.EventIncomingCall, event)

	if h.metrics != nil {
		h.metrics.RecordCallInitiated()
	}

	h.logger.Infow("call initiated",
		"call_id", session.CallID,
		"channel", session.ChannelName,
		"caller_id", callerID,
		"target_id", payload.TargetUserID,
		"call_type", payload.CallType,
	)

	return wsc.Send(domain.EventCallInitiated, event)
}

func (h *Hub) handleAcceptCall(ctx context.Context, userID domain.UserID, wsc *wsConnection, msg ClientMessage) error {
	var payload callRefPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid accept_call payload: %w", err)
	}

	session, ok := h.calls.Accept(payload.CallID)
	if !ok {
		return domain.ErrCallNotFound
	}

	event := domain.CallStateEvent{
		CallID:      session.ChannelName,
		ChannelName: session.ChannelName,
	}

	// Both sides observe acceptance symmetrically.
	h.pushCallEvent(session.CallerID, domain.EventCallAccepted, event)
	if err := wsc.Send(domain.EventCallAccepted, event); err != nil {
		h.logger.Warnw("failed to confirm acceptance", "call_id", session.CallID, "user_id", userID, "error", err)
	}

	if h.metrics != nil {
		h.metrics.RecordRingDuration(session.StartTime)
	}

	h.logger.Infow("call accepted", "call_id", session.CallID, "channel", session.ChannelName, "user_id", userID)
	return nil
}

func (h *Hub) handleRejectCall(ctx context.Context, userID domain.UserID, msg ClientMessage) error {
	var payload callRefPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid reject_call payload: %w", err)
	}

	session, ok := h.calls.Remove(payload.CallID)
	if !ok {
		return domain.ErrCallNotFound
	}

	h.pushCallEvent(session.CallerID, domain.EventCallRejected, domain.CallStateEvent{
		CallID:      session.ChannelName,
		ChannelName: session.ChannelName,
	})

	if h.metrics != nil {
		h.metrics.RecordCallEnded("rejected", session.StartTime)
	}

	h.logger.Infow("call rejected", "call_id", session.CallID, "channel", session.ChannelName, "user_id", userID)
	return nil
}

func (h *Hub) handleEndCall(ctx context.Context, userID domain.UserID, msg ClientMessage) error {
	var payload callRefPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid end_call payload: %w", err)
	}

	// A hang-up racing an already-cleaned-up session is expected; swallow it.
	session, ok := h.calls.Remove(payload.CallID)
	if !ok {
		h.logger.Debugw("end_call for unknown session", "call_id", payload.CallID, "user_id", userID)
		return nil
	}

	event := domain.CallStateEvent{
		CallID:      session.ChannelName,
		ChannelName: session.ChannelName,
	}
	h.pushCallEvent(session.CallerID, domain.EventCallEnded, event)
	h.pushCallEvent(session.TargetID, domain.EventCallEnded, event)

	if h.metrics != nil {
		h.metrics.RecordCallEnded("ended", session.StartTime)
	}

	h.logger.Infow("call ended", "call_id", session.CallID, "channel", session.ChannelName, "user_id", userID)
	return nil
}

func (h *Hub) handleRelay(ctx context.Context, senderID domain.UserID, event string, msg ClientMessage) error {
	var payload relayPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}
	if payload.TargetUserID == 0 {
		return fmt.Errorf("targetUserId is required")
	}

	// Relays enforce the same pairing precondition as messaging and calls.
	if err := h.requireRelationship(ctx, senderID, payload.TargetUserID); err != nil {
		return err
	}

	target, online := h.presence.Lookup(payload.TargetUserID)
	if !online {
		// Signaling toward an offline peer is dropped silently.
		return nil
	}

	if err := target.Send(event, domain.RelayEvent{
		SenderID: senderID,
		Payload:  payload.Payload,
	}); err != nil {
		return err
	}

	if h.metrics != nil {
		h.metrics.RecordMessageRelayed(event)
	}
	return nil
}

// StartJanitor sweeps ringing sessions that nobody answered within the ring
// timeout, ending them toward both parties. Run it once per hub.
func (h *Hub) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.janitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.sweepExpired()
			}
		}
	}()
}

func (h *Hub) sweepExpired() {
	expired := h.calls.TakeExpired(time.Now().Add(-h.ringTimeout))
	for _, session := range expired {
		event := domain.CallStateEvent{
			CallID:      session.ChannelName,
			ChannelName: session.ChannelName,
		}
		h.pushCallEvent(session.CallerID, domain.EventCallEnded, event)
		h.pushCallEvent(session.TargetID, domain.EventCallEnded, event)

		if h.metrics != nil {
			h.metrics.RecordCallEnded("timeout", session.StartTime)
		}

		h.logger.Infow("ringing call timed out",
			"call_id", session.CallID,
			"channel", session.ChannelName,
			"caller_id", session.CallerID,
			"target_id", session.TargetID,
		)
	}
}

func (h *Hub) requireRelationship(ctx context.Context, a, b domain.UserID) error {
	exists, err := h.relationships.Exists(ctx, a, b)
	if err != nil {
		return fmt.Errorf("failed to check relationship: %w", err)
	}
	if !exists {
		return domain.ErrNoRelationship
	}
	return nil
}

// pushCallEvent delivers a call event to the user if online. Offline
// parties simply miss it.
func (h *Hub) pushCallEvent(userID domain.UserID, event string, payload interface{}) {
	conn, online := h.presence.Lookup(userID)
	if !online {
		return
	}
	if err := conn.Send(event, payload); err != nil {
		h.logger.Warnw("failed to push call event", "user_id", userID, "event", event, "error", err)
	}
}

func (h *Hub) displayName(ctx context.Context, userID domain.UserID) string {
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		h.logger.Warnw("failed to resolve user for display name", "user_id", userID, "error", err)
		return ""
	}
	return user.DisplayName()
}

func (h *Hub) sendError(wsc *wsConnection, message string) {
	if err := wsc.Send(domain.EventError, domain.ErrorEvent{Message: message}); err != nil {
		h.logger.Debugw("failed to push error event", "error", err)
	}
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
