package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/manpreetbhatti/codesync/backend/internal/protocol"
	"github.com/manpreetbhatti/codesync/backend/internal/room"
	"github.com/manpreetbhatti/codesync/backend/internal/store"
)

var ErrListUnsupported = errors.New("store cannot list rooms")

// Manager applies connection events to room state. Every event takes the
// room's lock for its whole load, mutate, persist and broadcast sequence,
// so edits to one room are applied in completion order.
type Manager struct {
	store       store.Store
	registry    *Registry
	broadcaster Broadcaster
	locks       *roomLocks
}

func NewManager(s store.Store, registry *Registry, broadcaster Broadcaster) *Manager {
	return &Manager{
		store:       s,
		registry:    registry,
		broadcaster: broadcaster,
		locks:       newRoomLocks(),
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Join adds connID to roomID, creating the room on first join. The joiner
// gets the full room state; everyone else gets the new participant list.
// A connection already in another room leaves it first.
func (m *Manager) Join(ctx context.Context, connID, roomID, username string) error {
	if prev, ok := m.registry.Get(connID); ok && prev != roomID {
		if err := m.Leave(ctx, connID); err != nil {
			log.Warn().Err(err).Str("conn", connID).Str("room", prev).Msg("leaving previous room failed")
		}
	}

	unlock := m.locks.lock(roomID)
	defer unlock()

	r, err := m.store.Get(ctx, roomID)
	if err != nil {
		return fmt.Errorf("join %s: %w", roomID, err)
	}
	created := r == nil
	if created {
		r = room.New(roomID, username)
	}

	r.AddParticipant(room.Participant{ID: connID, Name: username})

	if err := m.store.Set(ctx, roomID, r); err != nil {
		return fmt.Errorf("join %s: %w", roomID, err)
	}

	m.registry.Set(connID, roomID)
	m.broadcaster.AddToRoom(connID, roomID)
	m.broadcaster.ToConnection(connID, protocol.EventRoomState, r.Clone())
	m.broadcaster.ToRoomExcept(roomID, connID, protocol.EventParticipantsUpdate, r.ParticipantList())

	log.Info().
		Str("room", roomID).
		Str("conn", connID).
		Str("user", username).
		Bool("created", created).
		Int("participants", len(r.Participants)).
		Msg("joined room")
	return nil
}

// ChangeCode replaces the room's text. The sender already has it, so only
// the other members are told.
func (m *Manager) ChangeCode(ctx context.Context, connID, roomID, code string) error {
	unlock := m.locks.lock(roomID)
	defer unlock()

	r, err := m.store.Get(ctx, roomID)
	if err != nil {
		return fmt.Errorf("code change %s: %w", roomID, err)
	}
	if r == nil {
		log.Debug().Str("room", roomID).Str("conn", connID).Msg("code change for unknown room dropped")
		return nil
	}

	r.Code = code
	if err := m.store.Set(ctx, roomID, r); err != nil {
		return fmt.Errorf("code change %s: %w", roomID, err)
	}

	m.broadcaster.ToRoomExcept(roomID, connID, protocol.EventCodeUpdate, code)
	return nil
}

// ChangeLanguage sets the room's language and echoes it to every member,
// sender included, so all selectors agree.
func (m *Manager) ChangeLanguage(ctx context.Context, connID, roomID, language string) error {
	if !room.IsSupportedLanguage(language) {
		log.Warn().Str("room", roomID).Str("conn", connID).Str("language", language).Msg("unsupported language dropped")
		return nil
	}

	unlock := m.locks.lock(roomID)
	defer unlock()

	r, err := m.store.Get(ctx, roomID)
	if err != nil {
		return fmt.Errorf("language change %s: %w", roomID, err)
	}
	if r == nil {
		log.Debug().Str("room", roomID).Str("conn", connID).Msg("language change for unknown room dropped")
		return nil
	}

	r.Language = language
	if err := m.store.Set(ctx, roomID, r); err != nil {
		return fmt.Errorf("language change %s: %w", roomID, err)
	}

	m.broadcaster.ToRoom(roomID, protocol.EventLanguageUpdate, language)
	return nil
}

// MoveCursor relays a cursor position to the other members. Nothing is stored.
func (m *Manager) MoveCursor(ctx context.Context, connID, roomID string, pos room.Position) {
	unlock := m.locks.lock(roomID)
	defer unlock()

	m.broadcaster.ToRoomExcept(roomID, connID, protocol.EventCursorUpdate, protocol.CursorUpdate{
		UserID:   connID,
		Position: pos,
	})
}

// Leave removes connID from the room it joined. It handles both the
// explicit leave-room event and a dropped connection. The registry entry
// is always cleared, even when the store fails.
func (m *Manager) Leave(ctx context.Context, connID string) error {
	roomID, ok := m.registry.Get(connID)
	if !ok {
		return nil
	}

	unlock := m.locks.lock(roomID)
	defer unlock()
	defer m.registry.Delete(connID)

	m.broadcaster.RemoveFromRoom(connID, roomID)

	r, err := m.store.Get(ctx, roomID)
	if err != nil {
		return fmt.Errorf("leave %s: %w", roomID, err)
	}
	if r == nil {
		return nil
	}

	r.RemoveParticipant(connID)

	if r.IsEmpty() {
		if err := m.store.Delete(ctx, roomID); err != nil {
			return fmt.Errorf("leave %s: %w", roomID, err)
		}
		log.Info().Str("room", roomID).Msg("room empty, deleted")
		return nil
	}

	if err := m.store.Set(ctx, roomID, r); err != nil {
		return fmt.Errorf("leave %s: %w", roomID, err)
	}
	m.broadcaster.ToRoom(roomID, protocol.EventParticipantsUpdate, r.ParticipantList())

	log.Info().
		Str("room", roomID).
		Str("conn", connID).
		Int("remaining", len(r.Participants)).
		Msg("left room")
	return nil
}

// Sweep drops participants whose connection isLive no longer recognises,
// deleting rooms that end up empty. It returns the number of participants
// removed. Rooms that fail are logged and skipped.
func (m *Manager) Sweep(ctx context.Context, isLive func(connID string) bool) (int, error) {
	lister, ok := m.store.(store.Lister)
	if !ok {
		return 0, ErrListUnsupported
	}

	ids, err := lister.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}

	removed := 0
	for _, roomID := range ids {
		n, err := m.sweepRoom(ctx, roomID, isLive)
		if err != nil {
			log.Error().Err(err).Str("room", roomID).Msg("sweep failed")
			continue
		}
		removed += n
	}
	return removed, nil
}

func (m *Manager) sweepRoom(ctx context.Context, roomID string, isLive func(string) bool) (int, error) {
	unlock := m.locks.lock(roomID)
	defer unlock()

	r, err := m.store.Get(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if r == nil {
		return 0, nil
	}

	var stale []string
	for _, p := range r.Participants {
		if !isLive(p.ID) {
			stale = append(stale, p.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	for _, id := range stale {
		r.RemoveParticipant(id)
		if joined, ok := m.registry.Get(id); ok && joined == roomID {
			m.registry.Delete(id)
		}
		m.broadcaster.RemoveFromRoom(id, roomID)
	}

	if r.IsEmpty() {
		if err := m.store.Delete(ctx, roomID); err != nil {
			return 0, err
		}
		log.Info().Str("room", roomID).Int("removed", len(stale)).Msg("swept empty room")
		return len(stale), nil
	}

	if err := m.store.Set(ctx, roomID, r); err != nil {
		return 0, err
	}
	m.broadcaster.ToRoom(roomID, protocol.EventParticipantsUpdate, r.ParticipantList())
	log.Info().Str("room", roomID).Int("removed", len(stale)).Msg("swept stale participants")
	return len(stale), nil
}
