package system

import "sync"

// sessionTable maps an issued session id to the user that owns it. Sessions
// are created by LoginUser / LoginWithPersonalAccessToken and consulted by
// every permission-checked command handler, and by consumer-group
// membership (group.Coordinator keys members by session id, not user id,
// so one user can hold several independent group memberships from
// different connections).
type sessionTable struct {
	mu     sync.RWMutex
	byID   map[uint32]uint32 // session id -> user id
	nextID uint32
}

func newSessionTable() *sessionTable {
	return &sessionTable{byID: make(map[uint32]uint32)}
}

// open issues a new session bound to userID.
func (t *sessionTable) open(userID uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.byID[t.nextID] = userID
	return t.nextID
}

// close discards a session (LogoutUser, or a dropped connection).
func (t *sessionTable) close(sessionID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, sessionID)
}

// userID resolves a session id to its owning user id.
func (t *sessionTable) userID(sessionID uint32) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byID[sessionID]
	return id, ok
}
