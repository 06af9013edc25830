package cryptoutil_test

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/cryptoutil"
)

func randomKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, cryptoutil.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestNoopEncryptorPassesThrough(t *testing.T) {
	enc, err := cryptoutil.New(false, "")
	require.NoError(t, err)
	require.False(t, enc.Enabled())

	plaintext := []byte("hello")
	ciphertext, nonce, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	require.Nil(t, nonce)
	require.Equal(t, plaintext, ciphertext)
}

func TestAESGCMEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := cryptoutil.New(true, randomKey(t))
	require.NoError(t, err)
	require.True(t, enc.Enabled())

	plaintext := []byte("a message payload that needs protecting")
	ciphertext, nonce, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)
	require.Len(t, nonce, cryptoutil.NonceSize)

	decrypted, err := enc.Decrypt(ciphertext, nonce)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestAESGCMWrongNonceFails(t *testing.T) {
	enc, err := cryptoutil.New(true, randomKey(t))
	require.NoError(t, err)

	ciphertext, _, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	wrongNonce := make([]byte, cryptoutil.NonceSize)
	_, err = enc.Decrypt(ciphertext, wrongNonce)
	require.Error(t, err)
}

func TestNewRejectsBadKeySize(t *testing.T) {
	_, err := cryptoutil.New(true, base64.StdEncoding.EncodeToString([]byte("too-short")))
	require.Error(t, err)
}

func TestNewRejectsInvalidBase64(t *testing.T) {
	_, err := cryptoutil.New(true, "not-valid-base64!!!")
	require.Error(t, err)
}
