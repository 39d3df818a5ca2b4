package store

import (
	"context"
	"sort"
	"sync"

	"github.com/manpreetbhatti/codesync/backend/internal/room"
)

// MemoryStore is a process-local Store. Values are held encoded so callers
// never share a *room.Room with the store.
type MemoryStore struct {
	rooms map[string][]byte
	mu    sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string][]byte),
	}
}

func (s *MemoryStore) Get(ctx context.Context, roomID string) (*room.Room, error) {
	s.mu.RLock()
	data, ok := s.rooms[roomID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return decode(data)
}

func (s *MemoryStore) Set(ctx context.Context, roomID string, r *room.Room) error {
	data, err := encode(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = data
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
