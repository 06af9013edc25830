// Package user implements the User/Permissions/PersonalAccessToken entities
// and the user registry. Grounded on vaultaire's internal/auth/auth.go
// (User struct, bcrypt password hashing, uuid + sha256 token pattern)
// adapted from its flat tenant model to the spec's stream/topic-scoped
// Permissions tree, and with vaultaire's JWT session layer dropped entirely
// since the spec authenticates every request by token or password, never a
// signed session (see DESIGN.md for the golang-jwt drop justification).
package user

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/identifier"
)

// Status is a user's account state.
type Status int

const (
	StatusActive Status = iota + 1
	StatusInactive
)

// User is one authenticated principal: credentials, status, and its
// permission tree and personal access tokens.
type User struct {
	ID           uint32
	Username     string
	PasswordHash string
	Status       Status
	CreatedAt    time.Time
	Permissions  Permissions

	mu     sync.RWMutex
	tokens map[string]Token // keyed by hash
}

// New hashes password with bcrypt and builds a new active user.
func New(id uint32, username, password string, permissions Permissions) (*User, error) {
	const op = "user.New"
	if err := identifier.ValidateName(strings.ToLower(username)); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	return &User{
		ID:           id,
		Username:     strings.ToLower(username),
		PasswordHash: string(hash),
		Status:       StatusActive,
		CreatedAt:    time.Now().UTC(),
		Permissions:  permissions,
		tokens:       make(map[string]Token),
	}, nil
}

// Restore rebuilds a user from already-computed fields — its stored
// password hash and token set — used when folding a state log record back
// into memory at startup, where rehashing a plaintext password is neither
// possible (only the hash was journaled) nor desired (bcrypt's random salt
// would change the stored hash on every replay).
func Restore(id uint32, username, passwordHash string, status Status, createdAt time.Time, permissions Permissions, tokens []Token) *User {
	u := &User{
		ID:           id,
		Username:     strings.ToLower(username),
		PasswordHash: passwordHash,
		Status:       status,
		CreatedAt:    createdAt,
		Permissions:  permissions,
		tokens:       make(map[string]Token, len(tokens)),
	}
	for _, t := range tokens {
		u.tokens[t.Hash] = t
	}
	return u
}

// VerifyPassword reports whether password matches the stored hash and the
// account is active.
func (u *User) VerifyPassword(password string) error {
	const op = "user.User.VerifyPassword"
	if u.Status != StatusActive {
		return flowerr.New(flowerr.KindAuthenticationFailed, op, "user is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return flowerr.Wrap(flowerr.KindAuthenticationFailed, op, err)
	}
	return nil
}

// ChangePassword replaces the stored password hash.
func (u *User) ChangePassword(newPassword string) error {
	const op = "user.User.ChangePassword"
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	u.PasswordHash = string(hash)
	return nil
}

// CreateToken generates a new personal access token named name, rejecting
// a duplicate name.
func (u *User) CreateToken(name string, expiresAt *time.Time) (raw string, err error) {
	const op = "user.User.CreateToken"
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, t := range u.tokens {
		if t.Name == name {
			return "", flowerr.Newf(flowerr.KindAlreadyExists, op, "token %q already exists", name)
		}
	}
	raw, tok, err := GenerateToken(name, expiresAt)
	if err != nil {
		return "", err
	}
	u.tokens[tok.Hash] = tok
	return raw, nil
}

// RestoreToken re-inserts a token already constructed elsewhere (state log
// replay), rejecting a name collision with an existing token.
func (u *User) RestoreToken(t Token) error {
	const op = "user.User.RestoreToken"
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.tokens {
		if existing.Name == t.Name {
			return flowerr.Newf(flowerr.KindAlreadyExists, op, "token %q already exists", t.Name)
		}
	}
	u.tokens[t.Hash] = t
	return nil
}

// DeleteToken removes a token by name.
func (u *User) DeleteToken(name string) error {
	const op = "user.User.DeleteToken"
	u.mu.Lock()
	defer u.mu.Unlock()
	for hash, t := range u.tokens {
		if t.Name == name {
			delete(u.tokens, hash)
			return nil
		}
	}
	return flowerr.Newf(flowerr.KindNotFound, op, "token %q not found", name)
}

// AuthenticateToken validates a raw token value: the hash must be known and
// unexpired.
func (u *User) AuthenticateToken(raw string, now time.Time) error {
	const op = "user.User.AuthenticateToken"
	if u.Status != StatusActive {
		return flowerr.New(flowerr.KindAuthenticationFailed, op, "user is inactive")
	}
	hash := HashToken(raw)
	u.mu.RLock()
	tok, ok := u.tokens[hash]
	u.mu.RUnlock()
	if !ok || !constantTimeEqual(tok.Hash, hash) {
		return flowerr.New(flowerr.KindAuthenticationFailed, op, "unknown token")
	}
	if tok.IsExpired(now) {
		return flowerr.New(flowerr.KindAuthenticationFailed, op, "token expired")
	}
	return nil
}

// Tokens returns every token's metadata (never the raw value, which is
// never stored).
func (u *User) Tokens() []Token {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]Token, 0, len(u.tokens))
	for _, t := range u.tokens {
		out = append(out, t)
	}
	return out
}

// PruneExpiredTokens removes every token expired as of now, returning how
// many were removed. Used by the personal-access-token expirer background
// task.
func (u *User) PruneExpiredTokens(now time.Time) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	removed := 0
	for hash, t := range u.tokens {
		if t.IsExpired(now) {
			delete(u.tokens, hash)
			removed++
		}
	}
	return removed
}
