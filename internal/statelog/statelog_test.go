package statelog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/statelog"
)

func TestAppendThenReplayRecoversRecordsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	log, err := statelog.Open(path, true)
	require.NoError(t, err)

	r1, err := log.Append(statelog.CodeCreateStream, []byte("stream1"))
	require.NoError(t, err)
	r2, err := log.Append(statelog.CodeCreateTopic, []byte("topic1"))
	require.NoError(t, err)
	require.NoError(t, log.Close())

	require.Equal(t, uint64(1), r1.Index)
	require.Equal(t, uint64(2), r2.Index)

	_, records, err := statelog.OpenAndReplay(path, true, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, statelog.CodeCreateStream, records[0].Code)
	require.Equal(t, []byte("stream1"), records[0].Data)
	require.Equal(t, statelog.CodeCreateTopic, records[1].Code)
}

func TestOpenAndReplayContinuesIndexSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	log, err := statelog.Open(path, false)
	require.NoError(t, err)
	_, err = log.Append(statelog.CodeCreateUser, []byte("a"))
	require.NoError(t, err)
	require.NoError(t, log.Close())

	reopened, records, err := statelog.OpenAndReplay(path, false, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r, err := reopened.Append(statelog.CodeCreateUser, []byte("b"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), r.Index)
}

func TestOpenAndReplayTruncatesPartiallyWrittenTrailingRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	log, err := statelog.Open(path, true)
	require.NoError(t, err)
	_, err = log.Append(statelog.CodeCreateUser, []byte("complete"))
	require.NoError(t, err)
	require.NoError(t, log.Close())

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, records, err := statelog.OpenAndReplay(path, true, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestDispatcherSkipsUnregisteredCode(t *testing.T) {
	var applied []string
	d := statelog.NewDispatcher(nil)
	d.Register(statelog.CodeCreateUser, func(data []byte) error {
		applied = append(applied, string(data))
		return nil
	})

	err := d.Apply([]statelog.Record{
		{Index: 1, Code: statelog.CodeCreateUser, Data: []byte("u1")},
		{Index: 2, Code: statelog.CodeCreateTopic, Data: []byte("t1")},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, applied)
}
