package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Frame is the wire shape of every realtime message, both directions.
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type Client struct {
	UserID string
	Conn   *websocket.Conn

	mu    sync.Mutex
	hook  func(Frame)
	rooms map[string]struct{}
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{UserID: userID, Conn: conn, rooms: make(map[string]struct{})}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(Frame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *Client) Send(frame Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(frame)
		return
	}
	if c.Conn == nil {
		return
	}
	_ = c.Conn.WriteJSON(frame)
}
