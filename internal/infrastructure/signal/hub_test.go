package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carelink/internal/core/domain"
	"carelink/internal/core/ports"
	"carelink/internal/core/services"
	"carelink/internal/infrastructure/monitoring"
	"carelink/internal/infrastructure/registry"
	"carelink/internal/infrastructure/repositories/memory"
	"carelink/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	hub           *Hub
	server        *httptest.Server
	users         ports.UserRepository
	relationships ports.RelationshipRepository
	calls         *registry.CallSessionStore
	auth          services.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	logger := zap.NewNop().Sugar()

	users := memory.NewMemoryUserRepository()
	relationships := memory.NewMemoryRelationshipRepository()
	presence := registry.NewPresenceRegistry(relationships, logger)
	calls := registry.NewCallSessionStore()
	auth := services.NewAuthService("test-secret", time.Hour, time.Hour)

	hub := NewHub(cfg, presence, calls, relationships, users, auth, nil, logger)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)

	return &testEnv{
		hub:           hub,
		server:        server,
		users:         users,
		relationships: relationships,
		calls:         calls,
		auth:          auth,
	}
}

func (e *testEnv) addUser(t *testing.T, id domain.UserID, username, first, last string, role domain.UserRole) {
	t.Helper()
	err := e.users.Save(context.Background(), &domain.User{
		ID:        id,
		Username:  username,
		FirstName: first,
		LastName:  last,
		Role:      role,
	})
	require.NoError(t, err)
}

func (e *testEnv) relate(t *testing.T, a, b domain.UserID) {
	t.Helper()
	require.NoError(t, e.relationships.Assign(context.Background(), a, b))
}

func (e *testEnv) dial(t *testing.T, userID domain.UserID) *websocket.Conn {
	t.Helper()

	token, err := e.auth.GenerateToken(userID, "", "")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: msgType, Payload: raw}))
}

// readEvent reads server pushes until one with the wanted event name arrives,
// skipping unrelated traffic such as presence broadcasts.
func readEvent(t *testing.T, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if env.Event == want {
			return env.Payload
		}
	}
}

func decodePayload(t *testing.T, raw json.RawMessage, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, into))
}

func TestHub_RejectsUnauthenticatedUpgrade(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_MessageDeliveryAndEcho(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)
	env.relate(t, 1, 2)

	doctor := env.dial(t, 1)
	patient := env.dial(t, 2)

	send(t, doctor, "send_message", sendMessagePayload{TargetUserID: 2, Message: "how are you feeling today?"})

	var received domain.MessageEvent
	decodePayload(t, readEvent(t, patient, domain.EventNewMessage), &received)
	assert.Equal(t, domain.UserID(1), received.SenderID)
	assert.Equal(t, domain.UserID(2), received.TargetUserID)
	assert.Equal(t, "how are you feeling today?", received.Message)
	assert.Equal(t, "Gregory House", received.SenderName)
	assert.NotEmpty(t, received.ID)

	var echoed domain.MessageEvent
	decodePayload(t, readEvent(t, doctor, domain.EventMessageSent), &echoed)
	assert.Equal(t, received.ID, echoed.ID)
}

func TestHub_MessageWithoutRelationshipErrors(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)

	doctor := env.dial(t, 1)
	env.dial(t, 2)

	send(t, doctor, "send_message", sendMessagePayload{TargetUserID: 2, Message: "hello"})

	var errEvent domain.ErrorEvent
	decodePayload(t, readEvent(t, doctor, domain.EventError), &errEvent)
	assert.Contains(t, errEvent.Message, "no relationship")
}

func TestHub_CallLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 2, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 1, "j.doe", "Jane", "Doe", domain.RolePatient)
	env.relate(t, 1, 2)

	doctor := env.dial(t, 2)
	patient := env.dial(t, 1)

	send(t, doctor, "initiate_call", initiateCallPayload{TargetUserID: 1, CallType: "video"})

	var incoming domain.CallEvent
	decodePayload(t, readEvent(t, patient, domain.EventIncomingCall), &incoming)
	assert.Equal(t, "call_1_2", incoming.CallID, "clients are handed the channel name as the call id")
	assert.Equal(t, "call_1_2", incoming.ChannelName)
	assert.Equal(t, domain.UserID(2), incoming.CallerID)
	assert.Equal(t, "Gregory House", incoming.CallerName)
	assert.Equal(t, domain.RoleDoctor, incoming.CallerRole)
	assert.Equal(t, "video", incoming.CallType)

	var initiated domain.CallEvent
	decodePayload(t, readEvent(t, doctor, domain.EventCallInitiated), &initiated)
	assert.Equal(t, incoming.ChannelName, initiated.ChannelName)

	// Accept by channel name; both sides observe acceptance.
	send(t, patient, "accept_call", callRefPayload{CallID: "call_1_2"})

	var acceptedCaller, acceptedCallee domain.CallStateEvent
	decodePayload(t, readEvent(t, doctor, domain.EventCallAccepted), &acceptedCaller)
	decodePayload(t, readEvent(t, patient, domain.EventCallAccepted), &acceptedCallee)
	assert.Equal(t, "call_1_2", acceptedCaller.ChannelName)
	assert.Equal(t, "call_1_2", acceptedCallee.ChannelName)

	// Either side may hang up; both get call-ended and the session is gone.
	send(t, patient, "end_call", callRefPayload{CallID: "call_1_2"})

	readEvent(t, doctor, domain.EventCallEnded)
	readEvent(t, patient, domain.EventCallEnded)

	_, found := env.calls.Find("call_1_2")
	assert.False(t, found)
	assert.Zero(t, env.calls.Len())
}

func TestHub_InitiateCallOfflineTarget(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)
	env.relate(t, 1, 2)

	doctor := env.dial(t, 1)

	send(t, doctor, "initiate_call", initiateCallPayload{TargetUserID: 2, CallType: "audio"})

	var failed domain.CallFailedEvent
	decodePayload(t, readEvent(t, doctor, domain.EventCallFailed), &failed)
	assert.Equal(t, "user is not online", failed.Reason)
	assert.Zero(t, env.calls.Len(), "no session is created for an unreachable target")
}

func TestHub_DuplicateInitiateFails(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)
	env.relate(t, 1, 2)

	doctor := env.dial(t, 1)
	patient := env.dial(t, 2)

	send(t, doctor, "initiate_call", initiateCallPayload{TargetUserID: 2, CallType: "video"})
	readEvent(t, doctor, domain.EventCallInitiated)

	// The callee dials back while the first call is still ringing.
	send(t, patient, "initiate_call", initiateCallPayload{TargetUserID: 1, CallType: "video"})

	var failed domain.CallFailedEvent
	decodePayload(t, readEvent(t, patient, domain.EventCallFailed), &failed)
	assert.Equal(t, "call already in progress", failed.Reason)
	assert.Equal(t, 1, env.calls.Len())
}

func TestHub_RejectCall(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)
	env.relate(t, 1, 2)

	doctor := env.dial(t, 1)
	patient := env.dial(t, 2)

	send(t, doctor, "initiate_call", initiateCallPayload{TargetUserID: 2, CallType: "video"})
	readEvent(t, patient, domain.EventIncomingCall)

	send(t, patient, "reject_call", callRefPayload{CallID: "call_1_2"})

	var rejected domain.CallStateEvent
	decodePayload(t, readEvent(t, doctor, domain.EventCallRejected), &rejected)
	assert.Equal(t, "call_1_2", rejected.ChannelName)
	assert.Zero(t, env.calls.Len())
}

func TestHub_EndUnknownCallIsSilent(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)
	env.relate(t, 1, 2)

	doctor := env.dial(t, 1)

	send(t, doctor, "end_call", callRefPayload{CallID: "call_1_2"})
	// A follow-up operation must come back clean, with no error event queued
	// in between.
	send(t, doctor, "send_message", sendMessagePayload{TargetUserID: 2, Message: "still here"})

	require.NoError(t, doctor.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env2 struct {
		Event string `json:"event"`
	}
	require.NoError(t, doctor.ReadJSON(&env2))
	assert.Equal(t, domain.EventMessageSent, env2.Event)
}

func TestHub_DisconnectEndsCallsAndNotifiesPeer(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)
	env.relate(t, 1, 2)

	doctor := env.dial(t, 1)
	patient := env.dial(t, 2)

	send(t, doctor, "initiate_call", initiateCallPayload{TargetUserID: 2, CallType: "video"})
	readEvent(t, patient, domain.EventIncomingCall)
	readEvent(t, doctor, domain.EventCallInitiated)

	require.NoError(t, doctor.Close())

	var ended domain.CallStateEvent
	decodePayload(t, readEvent(t, patient, domain.EventCallEnded), &ended)
	assert.Equal(t, "call_1_2", ended.ChannelName)
	assert.Zero(t, env.calls.Len())

	// The survivor also sees the presence change.
	var status domain.StatusEvent
	decodePayload(t, readEvent(t, patient, domain.EventUserStatusChanged), &status)
	assert.Equal(t, domain.UserID(1), status.UserID)
	assert.False(t, status.IsOnline)
}

func TestHub_ReconnectSupersedesOldConnection(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)

	first := env.dial(t, 1)
	second := env.dial(t, 1)

	// The superseded socket is closed by the hub.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	assert.Equal(t, 1, env.hub.ConnectionCount())

	// The replacement still works.
	send(t, second, "end_call", callRefPayload{CallID: "call_1_2"})
	assert.Equal(t, 1, env.hub.ConnectionCount())
}

func TestHub_RelayRequiresRelationship(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)

	doctor := env.dial(t, 1)
	env.dial(t, 2)

	send(t, doctor, "webrtc_offer", relayPayload{TargetUserID: 2, Payload: json.RawMessage(`{"sdp":"v=0"}`)})

	var errEvent domain.ErrorEvent
	decodePayload(t, readEvent(t, doctor, domain.EventError), &errEvent)
	assert.Contains(t, errEvent.Message, "no relationship")
}

func TestHub_RelayForwardsPayloadVerbatim(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)
	env.relate(t, 1, 2)

	doctor := env.dial(t, 1)
	patient := env.dial(t, 2)

	offer := json.RawMessage(`{"sdp":"v=0","type":"offer"}`)
	send(t, doctor, "webrtc_offer", relayPayload{TargetUserID: 2, Payload: offer})

	var relayed domain.RelayEvent
	decodePayload(t, readEvent(t, patient, domain.EventWebRTCOffer), &relayed)
	assert.Equal(t, domain.UserID(1), relayed.SenderID)
	assert.JSONEq(t, string(offer), string(relayed.Payload))

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 UDP 1 0.0.0.0 9 typ host"}`)
	send(t, patient, "ice_candidate", relayPayload{TargetUserID: 1, Payload: candidate})

	decodePayload(t, readEvent(t, doctor, domain.EventICECandidate), &relayed)
	assert.Equal(t, domain.UserID(2), relayed.SenderID)
	assert.JSONEq(t, string(candidate), string(relayed.Payload))
}

func TestHub_JanitorEndsTimedOutRingingCall(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)
	env.relate(t, 1, 2)

	doctor := env.dial(t, 1)
	patient := env.dial(t, 2)

	send(t, doctor, "initiate_call", initiateCallPayload{TargetUserID: 2, CallType: "video"})
	readEvent(t, patient, domain.EventIncomingCall)
	readEvent(t, doctor, domain.EventCallInitiated)

	// Nobody ever answers.
	env.hub.ringTimeout = time.Nanosecond
	time.Sleep(10 * time.Millisecond)
	env.hub.sweepExpired()

	readEvent(t, doctor, domain.EventCallEnded)
	readEvent(t, patient, domain.EventCallEnded)
	assert.Zero(t, env.calls.Len())
}

func TestHub_UnknownMessageTypeErrors(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)

	doctor := env.dial(t, 1)

	require.NoError(t, doctor.WriteJSON(ClientMessage{Type: "make_coffee"}))

	var errEvent domain.ErrorEvent
	decodePayload(t, readEvent(t, doctor, domain.EventError), &errEvent)
	assert.Contains(t, errEvent.Message, "unknown message type")
}

// relayedCount reads the relayed-messages counter for one event label from a
// private registry.
func relayedCount(t *testing.T, reg *prometheus.Registry, event string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "carelink_messages_relayed_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "event" && lp.GetValue() == event {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestHub_RelayedCounterCountsDeliveredOnly(t *testing.T) {
	env := newTestEnv(t)
	reg := prometheus.NewRegistry()
	env.hub.metrics = monitoring.NewPrometheusCollectorWith(reg)

	env.addUser(t, 1, "dr.house", "Gregory", "House", domain.RoleDoctor)
	env.addUser(t, 2, "j.doe", "Jane", "Doe", domain.RolePatient)
	env.relate(t, 1, 2)

	doctor := env.dial(t, 1)

	// Target offline: the sender still gets its echo, but nothing was relayed.
	send(t, doctor, "send_message", map[string]interface{}{"targetUserId": 2, "message": "hello?"})
	readEvent(t, doctor, domain.EventMessageSent)
	assert.Zero(t, relayedCount(t, reg, domain.EventNewMessage))

	patient := env.dial(t, 2)
	readEvent(t, doctor, domain.EventUserStatusChanged)

	send(t, doctor, "send_message", map[string]interface{}{"targetUserId": 2, "message": "hello again"})
	readEvent(t, patient, domain.EventNewMessage)
	readEvent(t, doctor, domain.EventMessageSent)
	assert.Equal(t, 1.0, relayedCount(t, reg, domain.EventNewMessage))
}

func TestHub_ReaderStopsWhenConnectionLoopExits(t *testing.T) {
	env := newTestEnv(t)

	done := make(chan struct{})
	finished := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Capacity 1 and no consumer: the reader parks on its second send.
		messageChan := make(chan ClientMessage, 1)
		errorChan := make(chan error, 1)
		go func() {
			env.hub.readMessages(conn, messageChan, errorChan, done)
			close(finished)
		}()
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer client.Close()

	for i := 0; i < 3; i++ {
		raw, err := json.Marshal(map[string]interface{}{"n": i})
		require.NoError(t, err)
		require.NoError(t, client.WriteJSON(ClientMessage{Type: "send_message", Payload: raw}))
	}

	// Give the reader time to fill the channel and park.
	time.Sleep(50 * time.Millisecond)
	close(done)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine did not exit after the connection loop stopped")
	}
}
