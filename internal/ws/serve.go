package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the HTTP request to a websocket connection, registers the
// client with the hub, and runs its read loop until the connection closes.
// onMessage is invoked synchronously for each decoded frame — business
// logic (event routing) lives entirely in the caller, keeping this package
// a pure transport.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, onMessage func(*Client, Frame), onDisconnect func(*Client)) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := newClient(uuid.NewString(), conn, h.logger)
	h.Register(client)
	go client.writePump()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	defer func() {
		h.Unregister(client)
		close(client.send)
		if onDisconnect != nil {
			onDisconnect(client)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("ws: connection closed unexpectedly", zap.String("handle", client.handle), zap.Error(err))
			}
			return nil
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.Warn("ws: malformed frame dropped", zap.String("handle", client.handle), zap.Error(err))
			continue
		}
		onMessage(client, frame)
	}
}
