package partition

import (
	"github.com/ridgeline/flowvault/internal/compression"
	"github.com/ridgeline/flowvault/internal/cryptoutil"
	"github.com/ridgeline/flowvault/internal/flowerr"
)

// codec applies a partition's on-disk payload transform: compress, then
// encrypt (§9 design note c — the checksum itself is computed on plaintext
// by the caller, before either transform runs). Decode reverses the order:
// decrypt, then decompress.
type codec struct {
	algorithm compression.Algorithm
	encryptor cryptoutil.Encryptor
}

func newCodec(algo compression.Algorithm, enc cryptoutil.Encryptor) codec {
	if enc == nil {
		enc = cryptoutil.NoopEncryptor{}
	}
	return codec{algorithm: algo, encryptor: enc}
}

// Encode transforms a plaintext payload into its on-disk form.
func (c codec) Encode(plaintext []byte) ([]byte, error) {
	const op = "partition.codec.Encode"
	compressed, err := compression.Compress(c.algorithm, plaintext)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
	}
	if !c.encryptor.Enabled() {
		return compressed, nil
	}
	ciphertext, nonce, err := c.encryptor.Encrypt(compressed)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decode reverses Encode, restoring the plaintext payload a reader sees.
func (c codec) Decode(stored []byte) ([]byte, error) {
	const op = "partition.codec.Decode"
	compressed := stored
	if c.encryptor.Enabled() {
		if len(stored) < cryptoutil.NonceSize {
			return nil, flowerr.New(flowerr.KindCorruption, op, "payload shorter than nonce")
		}
		nonce := stored[:cryptoutil.NonceSize]
		ciphertext := stored[cryptoutil.NonceSize:]
		plain, err := c.encryptor.Decrypt(ciphertext, nonce)
		if err != nil {
			return nil, err
		}
		compressed = plain
	}
	plaintext, err := compression.Decompress(c.algorithm, compressed)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
