package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/manpreetbhatti/codesync/backend/internal/room"
)

// Client → server events
const (
	EventJoinRoom       = "join-room"
	EventCodeChange     = "code-change"
	EventLanguageChange = "language-change"
	EventCursorChange   = "cursor-change"
	EventLeaveRoom      = "leave-room"
)

// Server → client events
const (
	EventRoomState          = "room-state"
	EventParticipantsUpdate = "participants-update"
	EventCodeUpdate         = "code-update"
	EventLanguageUpdate     = "language-update"
	EventCursorUpdate       = "cursor-update"
)

// Every websocket frame is one envelope
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoom struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type CodeChange struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

type LanguageChange struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

type CursorChange struct {
	RoomID   string        `json:"roomId"`
	Position room.Position `json:"position"`
}

type CursorUpdate struct {
	UserID   string        `json:"userId"`
	Position room.Position `json:"position"`
}

// Builds a frame for the named event
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Parses a frame and checks that the event is one a client may send
func Decode(frame []byte) (*Envelope, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	switch env.Event {
	case EventJoinRoom, EventCodeChange, EventLanguageChange, EventCursorChange, EventLeaveRoom:
		return &env, nil
	case "":
		return nil, fmt.Errorf("missing event name")
	default:
		return nil, fmt.Errorf("unknown event: %q", env.Event)
	}
}

// Unmarshals the envelope payload into v and requires a room id where the
// event carries one
func (e *Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: missing payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: %w", e.Event, err)
	}

	var roomID string
	switch p := v.(type) {
	case *JoinRoom:
		roomID = p.RoomID
	case *CodeChange:
		roomID = p.RoomID
	case *LanguageChange:
		roomID = p.RoomID
	case *CursorChange:
		roomID = p.RoomID
	default:
		return nil
	}
	if roomID == "" {
		return fmt.Errorf("%s: roomId is required", e.Event)
	}
	return nil
}
