// Package cryptoutil implements payload encryption for segments. Per design
// note (c): encryption covers the message payload only, never headers, and
// the checksum is computed over plaintext before encryption is applied (see
// internal/model.ChecksumPayload, called before Encryptor.Encrypt).
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

const (
	KeySize   = 32 // AES-256
	NonceSize = 12 // standard GCM nonce
)

// Encryptor encrypts/decrypts message payloads. The zero-value NoopEncryptor
// satisfies it for the common encryption.enabled=false path.
type Encryptor interface {
	Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error)
	Decrypt(ciphertext, nonce []byte) (plaintext []byte, err error)
	Enabled() bool
}

// AESGCMEncryptor implements Encryptor using AES-256-GCM, matching the
// configuration knob encryption.key (32-byte base64).
type AESGCMEncryptor struct {
	gcm cipher.AEAD
}

// NewAESGCMEncryptor builds an encryptor from a base64-encoded 32-byte key,
// the wire form of the encryption.key config knob.
func NewAESGCMEncryptor(base64Key string) (*AESGCMEncryptor, error) {
	const op = "cryptoutil.NewAESGCMEncryptor"
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
	}
	if len(key) != KeySize {
		return nil, flowerr.Newf(flowerr.KindInvalidInput, op, "encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
	}
	return &AESGCMEncryptor{gcm: gcm}, nil
}

func (e *AESGCMEncryptor) Enabled() bool { return true }

func (e *AESGCMEncryptor) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	const op = "cryptoutil.AESGCMEncryptor.Encrypt"
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	ciphertext := e.gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

func (e *AESGCMEncryptor) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	const op = "cryptoutil.AESGCMEncryptor.Decrypt"
	if len(nonce) != e.gcm.NonceSize() {
		return nil, flowerr.Newf(flowerr.KindCorruption, op, "nonce size %d != %d", len(nonce), e.gcm.NonceSize())
	}
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindCorruption, op, err)
	}
	return plaintext, nil
}

// NoopEncryptor passes data through unchanged, used when encryption.enabled
// is false.
type NoopEncryptor struct{}

func (NoopEncryptor) Enabled() bool { return false }
func (NoopEncryptor) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	return plaintext, nil, nil
}
func (NoopEncryptor) Decrypt(ciphertext, _ []byte) ([]byte, error) { return ciphertext, nil }

// New builds the configured Encryptor: AES-256-GCM if enabled, otherwise a
// no-op pass-through.
func New(enabled bool, base64Key string) (Encryptor, error) {
	if !enabled {
		return NoopEncryptor{}, nil
	}
	return NewAESGCMEncryptor(base64Key)
}
