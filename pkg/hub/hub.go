package hub

import (
	"sync"
)

// PersonalRoom names the per-user inbox room every connection owns.
func PersonalRoom(userID string) string {
	return "user:" + userID
}

// Hub indexes live connections by room. A room has no stored membership
// of its own; it exists exactly as long as a connection is joined to it.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]bool
	clients map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]bool),
		clients: make(map[*Client]bool),
	}
}

// Register admits a connection and auto-joins its personal room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = true
	h.joinLocked(c, PersonalRoom(c.UserID))
}

// Unregister removes the connection from every room it joined and drops
// its send queue. Safe to call after an eviction already closed the queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	c.evict()
}

// Join is idempotent: joining a room twice is a no-op.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	h.joinLocked(c, room)
}

// Leave is idempotent; leaving a never-joined room is a no-op.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) joinLocked(c *Client, room string) {
	if c.rooms[room] {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	c.rooms[room] = true
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if !c.rooms[room] {
		return
	}
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// InRoom reports whether the connection has joined the room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.rooms[room]
}

// Broadcast delivers a payload to every connection in the room.
func (h *Hub) Broadcast(room string, payload []byte) {
	h.BroadcastExcept(room, nil, payload)
}

// BroadcastExcept delivers to every connection in the room but the origin.
func (h *Hub) BroadcastExcept(room string, origin *Client, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		if c == origin {
			continue
		}
		c.enqueue(payload)
	}
}

// BroadcastAll delivers to every live connection on this gateway.
func (h *Hub) BroadcastAll(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		c.enqueue(payload)
	}
}

// RoomSize reports the number of live connections joined to a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
