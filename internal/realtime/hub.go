package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Notifier is how the rest of the service pushes events to connected players.
type Notifier interface {
	PublishToUser(userID, event string, data interface{})
	PublishToMatch(matchID, event string, data interface{})
}

// Hub tracks connected clients per user and per match room. A user may hold
// several connections (tabs); a match room holds the participants who asked
// to follow that match.
type Hub struct {
	mu     sync.RWMutex
	users  map[string]map[*Client]struct{}
	rooms  map[string]map[*Client]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		users:  make(map[string]map[*Client]struct{}),
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

func (h *Hub) Connect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[c.UserID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.users[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
	}
	for matchID := range c.rooms {
		h.leaveLocked(c, matchID)
	}
}

func (h *Hub) JoinMatch(c *Client, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[matchID]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[matchID] = set
	}
	set[c] = struct{}{}
	c.rooms[matchID] = struct{}{}
}

func (h *Hub) LeaveMatch(c *Client, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, matchID)
}

func (h *Hub) leaveLocked(c *Client, matchID string) {
	if set, ok := h.rooms[matchID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, matchID)
		}
	}
	delete(c.rooms, matchID)
}

func (h *Hub) PublishToUser(userID, event string, data interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		c.Send(Frame{Event: event, Data: data})
	}
}

func (h *Hub) PublishToMatch(matchID, event string, data interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[matchID] {
		c.Send(Frame{Event: event, Data: data})
	}
}
