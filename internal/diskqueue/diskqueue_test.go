package diskqueue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openForWrite(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0o600)
}

func TestWriteReadAckRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.bin")
	q, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Write([]byte("alpha")))
	require.NoError(t, q.Write([]byte("beta")))
	assert.Equal(t, 2, q.Count())

	got, err := q.Read()
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))
	q.Ack(len(got))
	assert.Equal(t, 1, q.Count())

	got, err = q.Read()
	require.NoError(t, err)
	assert.Equal(t, "beta", string(got))
	q.Ack(len(got))

	_, err = q.Read()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRecoverAfterReopenReplaysUnacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.bin")
	q, err := Open(Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, q.Write([]byte("one")))
	require.NoError(t, q.Write([]byte("two")))
	// Read but do not ack "one": simulates a crash before the handoff ack.
	_, err = q.Read()
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q2, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer q2.Close()

	assert.Equal(t, 2, q2.Count())
	got, err := q2.Read()
	require.NoError(t, err)
	assert.Equal(t, "one", string(got), "unacked record must be replayed at-least-once")
}

func TestChecksumDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.bin")
	q, err := Open(Options{Path: path, Checksum: true})
	require.NoError(t, err)
	defer q.Close()
	require.NoError(t, q.Write([]byte("payload")))

	// Flip a byte in the payload region (after the 4-byte length header)
	// while the queue is open, so Read's checksum check sees it.
	corruptByteInFile(t, path, recordHeaderLen)

	_, err = q.Read()
	assert.ErrorIs(t, err, ErrCorrupt)

	// Reopening runs recovery, which quarantines the corrupt record.
	q2, err := Open(Options{Path: path, Checksum: true})
	require.NoError(t, err)
	defer q2.Close()
	assert.Equal(t, 0, q2.Count())
}

func TestDiskFullRejectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.bin")
	q, err := Open(Options{Path: path, MaxBytes: 10})
	require.NoError(t, err)
	defer q.Close()

	err = q.Write([]byte("this payload is definitely too long"))
	assert.ErrorIs(t, err, ErrDiskFull)
}

func corruptByteInFile(t *testing.T, path string, offset int64) {
	t.Helper()
	f, err := openForWrite(path)
	require.NoError(t, err)
	defer f.Close()
	b := make([]byte, 1)
	_, err = f.ReadAt(b, offset)
	require.NoError(t, err)
	b[0] ^= 0xFF
	_, err = f.WriteAt(b, offset)
	require.NoError(t, err)
}
