package session

// Broadcaster delivers named events to connections grouped by room.
// Calls for a single room must reach each member in the order they are made.
type Broadcaster interface {
	ToConnection(connID, event string, payload any)
	ToRoom(roomID, event string, payload any)
	ToRoomExcept(roomID, senderID, event string, payload any)

	AddToRoom(connID, roomID string)
	RemoveFromRoom(connID, roomID string)
}
