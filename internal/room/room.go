package room

import "fmt"

const DefaultLanguage = "javascript"

// Languages the editor can select
var supportedLanguages = map[string]bool{
	"javascript": true,
	"python":     true,
	"java":       true,
	"csharp":     true,
	"html":       true,
	"css":        true,
}

// An occupant of a room, identified by its connection
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Cursor location as reported by the editor (1-based)
type Position struct {
	LineNumber int `json:"lineNumber"`
	Column     int `json:"column"`
}

// A collaborative editing session. Participants are kept in join order.
type Room struct {
	Code         string        `json:"code"`
	Language     string        `json:"language"`
	Participants []Participant `json:"participants"`
}

// Creates the initial state for a room that has never been joined
func New(roomID, username string) *Room {
	return &Room{
		Code:         WelcomeMessage(roomID, username),
		Language:     DefaultLanguage,
		Participants: make([]Participant, 0, 1),
	}
}

// Returns the starter text placed in a freshly created room
func WelcomeMessage(roomID, username string) string {
	return fmt.Sprintf("// Welcome to CodeSync, %s!\n// Room: %s\n", username, roomID)
}

func IsSupportedLanguage(language string) bool {
	return supportedLanguages[language]
}

// Adds a participant at the end of the list, replacing any earlier entry
// with the same connection id
func (r *Room) AddParticipant(p Participant) {
	r.RemoveParticipant(p.ID)
	r.Participants = append(r.Participants, p)
}

// Removes the participant with the given id and reports whether one was found
func (r *Room) RemoveParticipant(id string) bool {
	kept := r.Participants[:0]
	found := false
	for _, p := range r.Participants {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	r.Participants = kept
	return found
}

func (r *Room) HasParticipant(id string) bool {
	for _, p := range r.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (r *Room) IsEmpty() bool {
	return len(r.Participants) == 0
}

// Returns a copy of the participant list safe to hand to other goroutines
func (r *Room) ParticipantList() []Participant {
	out := make([]Participant, len(r.Participants))
	copy(out, r.Participants)
	return out
}

// Returns a deep copy of the room
func (r *Room) Clone() *Room {
	return &Room{
		Code:         r.Code,
		Language:     r.Language,
		Participants: r.ParticipantList(),
	}
}
