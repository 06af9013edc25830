package user

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// rawTokenBytes yields a 64-character hex string per the spec's
// personal-access-token format.
const rawTokenBytes = 32

// Token is a personal access token: the raw value is never stored, only
// its SHA-256 hash, per the spec's "persisted as SHA-256 hash" rule — this
// is a fixed, spec-mandated primitive, not a pluggable KDF choice, so
// stdlib crypto/sha256 is used directly rather than reaching for a
// third-party hashing library.
type Token struct {
	Name      string
	Hash      string
	ExpiresAt *time.Time
}

// GenerateToken creates a new random raw token and its Token record. The
// raw value is returned once, for the caller to hand back to the client;
// it is never retrievable again.
func GenerateToken(name string, expiresAt *time.Time) (raw string, tok Token, err error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", Token{}, flowerr.Wrap(flowerr.KindFatalIO, "user.GenerateToken", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, Token{Name: name, Hash: HashToken(raw), ExpiresAt: expiresAt}, nil
}

// HashToken computes the SHA-256 hex digest of a raw token value.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IsExpired reports whether the token had an expiry set and it has passed
// as of now.
func (t Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// constantTimeEqual compares two hex digests without leaking timing
// information about where they first differ.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
