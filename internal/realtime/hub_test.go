package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type frameSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *frameSink) hook(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

func (s *frameSink) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.frames {
		out = append(out, f.Event)
	}
	return out
}

func newTestClient(hub *Hub, userID string) (*Client, *frameSink) {
	sink := &frameSink{}
	c := NewClient(userID, nil)
	c.SetSendHook(sink.hook)
	hub.Connect(c)
	return c, sink
}

func TestPublishToUserReachesAllConnections(t *testing.T) {
	hub := NewHub(zap.NewNop())
	_, tab1 := newTestClient(hub, "u1")
	_, tab2 := newTestClient(hub, "u1")
	_, other := newTestClient(hub, "u2")

	hub.PublishToUser("u1", "queueUpdate", map[string]int{"position": 1})

	assert.Equal(t, []string{"queueUpdate"}, tab1.events())
	assert.Equal(t, []string{"queueUpdate"}, tab2.events())
	assert.Empty(t, other.events())
}

func TestMatchRoomDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c1, sink1 := newTestClient(hub, "u1")
	c2, sink2 := newTestClient(hub, "u2")
	_, outside := newTestClient(hub, "u3")

	hub.JoinMatch(c1, "m1")
	hub.JoinMatch(c2, "m1")

	hub.PublishToMatch("m1", "newRankedMessage", nil)

	assert.Equal(t, []string{"newRankedMessage"}, sink1.events())
	assert.Equal(t, []string{"newRankedMessage"}, sink2.events())
	assert.Empty(t, outside.events())
}

func TestLeaveMatchStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c1, sink1 := newTestClient(hub, "u1")

	hub.JoinMatch(c1, "m1")
	hub.LeaveMatch(c1, "m1")
	hub.PublishToMatch("m1", "rankedMatchUpdate", nil)

	assert.Empty(t, sink1.events())
}

func TestDisconnectCleansUpRooms(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c1, sink1 := newTestClient(hub, "u1")
	hub.JoinMatch(c1, "m1")

	hub.Disconnect(c1)

	hub.PublishToUser("u1", "queueUpdate", nil)
	hub.PublishToMatch("m1", "rankedMatchUpdate", nil)
	assert.Empty(t, sink1.events())

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.users)
	assert.Empty(t, hub.rooms)
}
