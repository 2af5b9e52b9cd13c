package realtime

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundFrame struct {
	Event string `json:"event"`
	Data  struct {
		MatchID string `json:"matchId"`
	} `json:"data"`
}

// ServeWS upgrades the connection, registers the client under its user id,
// and runs the read loop. Clients subscribe to match rooms with joinMatch
// frames; everything else they receive is server-pushed. onPing, if set, is
// called for each client ping so queue leases ride on the socket heartbeat.
// canJoin, if set, gates joinMatch: room frames carry the game code and
// chat, so only participants and staff may subscribe.
func ServeWS(hub *Hub, jwtSecret string, logger *zap.Logger, onPing func(userID string), canJoin func(matchID, userID string, staff bool) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := utils.VerifyToken(r, jwtSecret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		userID, err := utils.GetUserIDFromClaims(claims)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		staff := utils.IsStaff(claims)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(userID, conn)
		hub.Connect(client)
		defer func() {
			hub.Disconnect(client)
			conn.Close()
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame inboundFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			switch frame.Event {
			case "joinMatch":
				if frame.Data.MatchID == "" {
					continue
				}
				if canJoin != nil && !canJoin(frame.Data.MatchID, userID, staff) {
					client.Send(Frame{Event: "error", Data: map[string]string{"message": "not a participant of this match"}})
					continue
				}
				hub.JoinMatch(client, frame.Data.MatchID)
				client.Send(Frame{Event: "joinedMatch", Data: map[string]string{"matchId": frame.Data.MatchID}})
			case "leaveMatch":
				if frame.Data.MatchID != "" {
					hub.LeaveMatch(client, frame.Data.MatchID)
				}
			case "ping":
				if onPing != nil {
					onPing(userID)
				}
				client.Send(Frame{Event: "pong"})
			}
		}
	}
}
