// Package ws implements the transport layer: a gorilla/websocket hub that
// generalizes the teacher's WebSocketHub/Client/Message shape into
// per-room broadcast groups with a buffered per-connection outbound
// channel and a single writer goroutine, so a room's mailbox goroutine
// never blocks on a slow client.
package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Frame is the wire envelope every inbound and outbound message uses.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Hub tracks every live connection and the room each currently belongs to.
// It is read from many room mailbox goroutines concurrently and written
// from client lifecycle events, so every access goes through mu — the
// teacher's hub map has no such guard, which §5 calls out as a gap to close.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client // handle -> client
	roomMembers map[string]map[string]*Client

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		roomMembers: make(map[string]map[string]*Client),
		logger:      logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.handle] = c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c.handle)
	if room := c.RoomID(); room != "" {
		if members, ok := h.roomMembers[room]; ok {
			delete(members, c.handle)
			if len(members) == 0 {
				delete(h.roomMembers, room)
			}
		}
	}
}

// JoinRoom records that c now belongs to roomID's broadcast group.
func (h *Hub) JoinRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev := c.RoomID(); prev != "" {
		if members, ok := h.roomMembers[prev]; ok {
			delete(members, c.handle)
		}
	}
	c.setRoomID(roomID)
	members, ok := h.roomMembers[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.roomMembers[roomID] = members
	}
	members[c.handle] = c
}

func (h *Hub) LeaveRoom(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := c.RoomID()
	if room == "" {
		return
	}
	if members, ok := h.roomMembers[room]; ok {
		delete(members, c.handle)
		if len(members) == 0 {
			delete(h.roomMembers, room)
		}
	}
	c.setRoomID("")
}

func (h *Hub) ClientByHandle(handle string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[handle]
	return c, ok
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) encode(event string, payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("ws: marshal outbound payload failed", zap.String("event", event), zap.Error(err))
		return nil
	}
	frame, err := json.Marshal(Frame{Type: event, Data: data})
	if err != nil {
		h.logger.Error("ws: marshal outbound frame failed", zap.String("event", event), zap.Error(err))
		return nil
	}
	return frame
}

// ToRoom implements room.Broadcaster: send event to every current member of roomID.
func (h *Hub) ToRoom(roomID, event string, payload interface{}) {
	raw := h.encode(event, payload)
	if raw == nil {
		return
	}

	h.mu.RLock()
	members := h.roomMembers[roomID]
	targets := make([]*Client, 0, len(members))
	for _, c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(raw)
	}
}

// ToRoomExcept sends to every member of roomID except the one whose PeerID equals exceptPeerID.
func (h *Hub) ToRoomExcept(roomID string, exceptPeerID int, event string, payload interface{}) {
	raw := h.encode(event, payload)
	if raw == nil {
		return
	}

	h.mu.RLock()
	members := h.roomMembers[roomID]
	targets := make([]*Client, 0, len(members))
	for _, c := range members {
		if c.PeerID() == exceptPeerID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(raw)
	}
}

// ToHandle addresses a single connection directly, used for auth_token,
// user_data, friend_room_code, room_not_found, insufficient_coins, and
// friend_error_response — none of which are room-broadcast events.
func (h *Hub) ToHandle(handle, event string, payload interface{}) {
	raw := h.encode(event, payload)
	if raw == nil {
		return
	}

	h.mu.RLock()
	c, ok := h.clients[handle]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.enqueue(raw)
}
