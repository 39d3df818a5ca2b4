package ws

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/manpreetbhatti/codesync/backend/internal/protocol"
)

// Hub tracks live connections and the room groups they belong to. It is the
// session.Broadcaster for the websocket transport: frames are queued on each
// client's send channel synchronously, in call order.
type Hub struct {
	// Registered clients by connection id
	clients map[string]*Client

	// Room groups, room id -> connection id -> client
	rooms map[string]map[string]*Client

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	log.Debug().Str("conn", c.id).Int("clients", total).Msg("client connected")
}

// Removes the client from the hub and every room group and stops its writer
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.detach(c)
		h.closeSend(c)
	}
	total := len(h.clients)
	h.mu.Unlock()

	log.Debug().Str("conn", c.id).Int("clients", total).Msg("client disconnected")
}

// Closes every client's send queue, which makes their writers hang up
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.closeSend(c)
	}
}

func (h *Hub) AddToRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok || c.closed {
		return
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][connID] = c
}

func (h *Hub) RemoveFromRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) ToConnection(connID, event string, payload any) {
	frame, ok := encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	c, ok := h.clients[connID]
	var slow []*Client
	if ok && !h.deliver(c, frame) {
		slow = append(slow, c)
	}
	h.mu.RUnlock()

	h.evict(slow)
}

func (h *Hub) ToRoom(roomID, event string, payload any) {
	h.ToRoomExcept(roomID, "", event, payload)
}

func (h *Hub) ToRoomExcept(roomID, senderID, event string, payload any) {
	frame, ok := encode(event, payload)
	if !ok {
		return
	}

	var slow []*Client
	h.mu.RLock()
	for id, c := range h.rooms[roomID] {
		if id == senderID {
			continue
		}
		if !h.deliver(c, frame) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.evict(slow)
}

// Queues a frame without blocking. Reports false when the client's queue
// is full. Callers hold at least the read lock.
func (h *Hub) deliver(c *Client, frame []byte) bool {
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Drops clients that cannot keep up. Their writer exits and the resulting
// disconnect runs the normal leave handling.
func (h *Hub) evict(slow []*Client) {
	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range slow {
		log.Warn().Str("conn", c.id).Msg("send buffer full, dropping client")
		h.detach(c)
		h.closeSend(c)
	}
}

// Caller holds the write lock
func (h *Hub) detach(c *Client) {
	for roomID, members := range h.rooms {
		if _, ok := members[c.id]; ok {
			delete(members, c.id)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

// Caller holds the write lock
func (h *Hub) closeSend(c *Client) {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (h *Hub) IsConnected(connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[connID]
	return ok
}

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Returns the number of connections in each room group
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make(map[string]int, len(h.rooms))
	for roomID, members := range h.rooms {
		rooms[roomID] = len(members)
	}
	return rooms
}

func encode(event string, payload any) ([]byte, bool) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return nil, false
	}
	return frame, true
}
