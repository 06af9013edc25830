package partition_test

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/compression"
	"github.com/ridgeline/flowvault/internal/cryptoutil"
	"github.com/ridgeline/flowvault/internal/model"
	"github.com/ridgeline/flowvault/internal/partition"
)

func randomEncryptionKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, cryptoutil.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestAppendReadRoundTripsThroughCompressionAndEncryption(t *testing.T) {
	sys := testSystem(t)
	enc, err := cryptoutil.New(true, randomEncryptionKey(t))
	require.NoError(t, err)

	p, err := partition.Create(partition.Keys{StreamID: 1, TopicID: 1, PartitionID: 1}, sys, partition.Config{
		SegmentSize:            segmentSize,
		MessagesRequiredToSave: 1000,
		CacheIndexes:           true,
		CacheTimeIndexes:       true,
		Compression:            compression.Gzip,
		Encryptor:              enc,
	}, cache.NewLRU(1<<20))
	require.NoError(t, err)

	payload := []byte("plaintext payload that should never touch disk unencrypted")
	_, _, err = p.Append(sys, []model.Message{{Payload: payload}}, partition.Wait)
	require.NoError(t, err)

	got, err := p.ReadRange(0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, payload, got[0].Payload)
	require.True(t, got[0].VerifyChecksum())
}

func TestRecoveryDecodesBeforeVerifyingChecksum(t *testing.T) {
	sys := testSystem(t)
	enc, err := cryptoutil.New(true, randomEncryptionKey(t))
	require.NoError(t, err)

	cfg := partition.Config{
		SegmentSize:            segmentSize,
		MessagesRequiredToSave: 1000,
		CacheIndexes:           true,
		CacheTimeIndexes:       true,
		Compression:            compression.Gzip,
		Encryptor:              enc,
	}

	p, err := partition.Create(partition.Keys{StreamID: 1, TopicID: 1, PartitionID: 1}, sys, cfg, cache.NewLRU(1<<20))
	require.NoError(t, err)
	_, _, err = p.Append(sys, []model.Message{{Payload: []byte("recovered payload")}}, partition.Wait)
	require.NoError(t, err)

	reopened, records, err := partition.Open(partition.Keys{StreamID: 1, TopicID: 1, PartitionID: 1}, sys, cfg, cache.NewLRU(1<<20))
	require.NoError(t, err)
	for _, r := range records {
		require.NotEqual(t, "poisoned_message", r.Kind)
	}

	got, err := reopened.ReadRange(0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []byte("recovered payload"), got[0].Payload)
}
