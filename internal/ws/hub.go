package ws

import (
	"sync"

	"consult-chat/internal/observability"
)

// Hub is the connection registry: every live client indexed by user id for
// direct fan-out (multi-device) and by room id for broadcasts. It replaces
// any need to scan sockets to find a user's session.
type Hub struct {
	mu    sync.RWMutex
	users map[int64]map[*Client]struct{}
	rooms map[int64]map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		users: make(map[int64]map[*Client]struct{}),
		rooms: make(map[int64]map[*Client]struct{}),
	}
}

// Register adds a client to the user index.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[c.info.UserID]; !ok {
		h.users[c.info.UserID] = make(map[*Client]struct{})
	}
	h.users[c.info.UserID][c] = struct{}{}
}

// Unregister removes a client from the user index and every room it joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.users[c.info.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.info.UserID)
		}
	}
	for roomID := range c.joinedRooms() {
		if conns, ok := h.rooms[roomID]; ok {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

// Subscribe adds the client to a room's broadcast set.
func (h *Hub) Subscribe(roomID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
	c.rememberRoom(roomID)
}

// IsConnected reports whether the user has at least one live connection.
func (h *Hub) IsConnected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// SendToUser delivers an event to every connection of one user.
func (h *Hub) SendToUser(userID int64, event string, data any) {
	payload := marshalEvent(event, data)
	if payload == nil {
		return
	}
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(payload)
	}
}

// BroadcastToRoom delivers an event to every client subscribed to the room.
func (h *Hub) BroadcastToRoom(roomID int64, event string, data any) {
	payload := marshalEvent(event, data)
	if payload == nil {
		return
	}
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(payload)
	}
}

// BroadcastAll delivers an event to every connected client.
func (h *Hub) BroadcastAll(event string, data any) {
	payload := marshalEvent(event, data)
	if payload == nil {
		return
	}
	h.mu.RLock()
	conns := make([]*Client, 0)
	for _, set := range h.users {
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(payload)
	}
}

// PresenceChanged implements presence.Broadcaster.
func (h *Hub) PresenceChanged(userID int64, online bool) {
	event := EventUserOnline
	if !online {
		event = EventUserOffline
	}
	observability.IncWSEvent("chat", event)
	h.BroadcastAll(event, presenceData{UserID: userID})
}

// TypingChanged implements presence.Broadcaster.
func (h *Hub) TypingChanged(roomID, userID int64, typing bool) {
	event := EventUserTyping
	if !typing {
		event = EventUserStoppedTyping
	}
	observability.IncWSEvent("chat", event)
	h.BroadcastToRoom(roomID, event, typingData{RoomID: roomID, UserID: userID})
}
