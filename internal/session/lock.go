package session

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// roomLocks hands out one mutex per room id. Entries are dropped once no
// goroutine holds or waits on them.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newRoomLocks() *roomLocks {
	return &roomLocks{
		locks: make(map[string]*lockEntry),
	}
}

// Blocks until the caller owns roomID and returns the matching unlock func
func (l *roomLocks) lock(roomID string) func() {
	l.mu.Lock()
	e, ok := l.locks[roomID]
	if !ok {
		e = &lockEntry{}
		l.locks[roomID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, roomID)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
