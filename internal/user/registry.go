package user

import (
	"strings"
	"sync"
	"time"

	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/identifier"
)

// Registry is the process-wide user table, resolvable by numeric id or
// username.
type Registry struct {
	mu        sync.RWMutex
	byID      map[uint32]*User
	idByName  map[string]uint32
	maxUserID uint32
}

// NewRegistry builds an empty user registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint32]*User), idByName: make(map[string]uint32)}
}

// Create adds a new user, failing with AlreadyExists if the username is
// taken.
func (r *Registry) Create(username, password string, permissions Permissions) (*User, error) {
	const op = "user.Registry.Create"
	name := strings.ToLower(username)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.idByName[name]; exists {
		return nil, flowerr.Newf(flowerr.KindAlreadyExists, op, "user %q already exists", name)
	}
	id := r.maxUserID + 1
	u, err := New(id, name, password, permissions)
	if err != nil {
		return nil, err
	}
	r.byID[id] = u
	r.idByName[name] = id
	r.maxUserID = id
	return u, nil
}

// Restore re-inserts a user already constructed elsewhere (state log
// replay), preserving its id.
func (r *Registry) Restore(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = u
	r.idByName[u.Username] = u.ID
	if u.ID > r.maxUserID {
		r.maxUserID = u.ID
	}
}

// Get resolves a user by numeric id or username.
func (r *Registry) Get(id identifier.Identifier) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(id)
}

func (r *Registry) resolveLocked(id identifier.Identifier) (*User, error) {
	const op = "user.Registry.resolve"
	var userID uint32
	if id.IsNumeric() {
		userID = id.NumericValue()
	} else {
		uid, ok := r.idByName[id.NameValue()]
		if !ok {
			return nil, flowerr.Newf(flowerr.KindNotFound, op, "user %q not found", id.NameValue())
		}
		userID = uid
	}
	u, ok := r.byID[userID]
	if !ok {
		return nil, flowerr.Newf(flowerr.KindNotFound, op, "user %s not found", id.String())
	}
	return u, nil
}

// Delete removes a user.
func (r *Registry) Delete(id identifier.Identifier) error {
	const op = "user.Registry.Delete"
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.resolveLocked(id)
	if err != nil {
		return flowerr.Wrap(flowerr.KindNotFound, op, err)
	}
	delete(r.byID, u.ID)
	delete(r.idByName, u.Username)
	return nil
}

// All returns every registered user.
func (r *Registry) All() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, u)
	}
	return out
}

// PruneExpiredTokens sweeps every user's tokens, removing expired ones.
// Driven by the personal-access-token expirer background task on a timer.
func (r *Registry) PruneExpiredTokens(now time.Time) int {
	r.mu.RLock()
	users := make([]*User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, u)
	}
	r.mu.RUnlock()

	total := 0
	for _, u := range users {
		total += u.PruneExpiredTokens(now)
	}
	return total
}
