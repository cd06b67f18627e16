package signal

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ServerEvent is the envelope for every server-to-client push.
type ServerEvent struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// wsConnection wraps one gorilla connection behind a write mutex so that
// handler goroutines, the ping ticker and presence broadcasts from other
// users' handlers can push concurrently.
type wsConnection struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func newWSConnection(conn *websocket.Conn, writeTimeout time.Duration) *wsConnection {
	return &wsConnection{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConnection) Send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(ServerEvent{Event: event, Payload: payload})
}

func (c *wsConnection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConnection) Close() error {
	return c.conn.Close()
}
