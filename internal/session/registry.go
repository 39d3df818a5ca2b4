package session

import "sync"

// Registry maps a connection to the room it last joined. Disconnect events
// only carry the connection id, so leave handling starts here.
type Registry struct {
	rooms map[string]string
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]string),
	}
}

func (r *Registry) Set(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[connID] = roomID
}

// Returns the room recorded for connID, if any
func (r *Registry) Get(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.rooms[connID]
	return roomID, ok
}

func (r *Registry) Delete(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, connID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
