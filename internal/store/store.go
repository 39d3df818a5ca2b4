package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manpreetbhatti/codesync/backend/internal/room"
)

// Returned (wrapped) whenever the backing store cannot complete a round trip
var ErrStoreUnavailable = errors.New("store unavailable")

// Store persists serialized room state by room id.
// Get returns (nil, nil) when the room does not exist.
type Store interface {
	Get(ctx context.Context, roomID string) (*room.Room, error)
	Set(ctx context.Context, roomID string, r *room.Room) error
	Delete(ctx context.Context, roomID string) error
}

// Lister is implemented by stores that can enumerate persisted rooms
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func encode(r *room.Room) ([]byte, error) {
	if r.Participants == nil {
		r = r.Clone()
	}
	return json.Marshal(r)
}

func decode(data []byte) (*room.Room, error) {
	var r room.Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	if r.Participants == nil {
		r.Participants = []room.Participant{}
	}
	return &r, nil
}
