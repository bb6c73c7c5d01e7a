// Package diskqueue implements the append-only disk overflow buffer that
// the ingestion buffer manager (C8) spills to when the in-memory ring queue
// (C1) is full (component C2). Records are length-prefixed on disk, the read
// cursor is recoverable after a restart, and delivery is at-least-once: a
// crash between read and ack replays the record.
package diskqueue

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrDiskFull is returned by Write when the configured byte budget for
	// the queue file has been exhausted.
	ErrDiskFull = errors.New("diskqueue: disk budget exhausted")
	// ErrCorrupt is returned by Read when a record's checksum does not
	// match. At Open, recovery instead stops at such a record and leaves it
	// and the rest of the file quarantined (on disk, not counted).
	ErrCorrupt = errors.New("diskqueue: corrupt record")
	// ErrEmpty is returned by Read when there is nothing left unread.
	ErrEmpty = errors.New("diskqueue: empty")
)

const recordHeaderLen = 4 // big-endian uint32 payload length

// Options configures a Queue.
type Options struct {
	// Path is the backing file path.
	Path string
	// MaxBytes bounds the file size; 0 means unbounded.
	MaxBytes int64
	// Checksum enables a blake2b-256 integrity trailer per record,
	// addressing the corruption-detection open question (spec.md §9).
	Checksum bool
}

// Queue is an append-only, length-prefixed disk buffer with a recoverable
// read cursor. It is safe for concurrent Write and Read/Ack use by a single
// writer and a single reader goroutine (the buffer manager's roles).
type Queue struct {
	mu       sync.Mutex
	opts     Options
	file     *os.File
	writeOff int64
	readOff  int64
	count    int
	logger   *log.Logger
}

const checksumLen = 32 // blake2b-256

// Open opens or creates the queue file at opts.Path and recovers the write
// offset and item count by scanning existing records. The read cursor always
// restarts at the beginning of the file (at-least-once semantics: anything
// unacked before the prior shutdown is replayed).
func Open(opts Options) (*Queue, error) {
	f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("diskqueue: open %s: %w", opts.Path, err)
	}

	q := &Queue{
		opts:   opts,
		file:   f,
		logger: log.New(log.Writer(), "[DISKQUEUE] ", log.LstdFlags),
	}

	if err := q.recover(); err != nil {
		f.Close()
		return nil, err
	}
	return q, nil
}

// recover scans the file from the start, counting complete, valid records
// and advancing writeOff past the last one found. A truncated or corrupt
// tail is quarantined (left on disk, logged, not deleted) rather than
// silently dropped.
func (q *Queue) recover() error {
	r := bufio.NewReader(q.file)
	var off int64
	for {
		recLen, ok, err := readLength(r)
		if err != nil {
			return fmt.Errorf("diskqueue: recover: %w", err)
		}
		if !ok {
			break
		}

		frameLen := int64(recordHeaderLen) + int64(recLen)
		if q.opts.Checksum {
			frameLen += checksumLen
		}

		buf := make([]byte, recLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			q.logger.Printf("⚠️ truncated record at offset %d, quarantining tail", off)
			break
		}
		if q.opts.Checksum {
			sum := make([]byte, checksumLen)
			if _, err := io.ReadFull(r, sum); err != nil {
				q.logger.Printf("⚠️ truncated checksum at offset %d, quarantining tail", off)
				break
			}
			want := blake2b.Sum256(buf)
			if !bytesEqual(sum, want[:]) {
				q.logger.Printf("⚠️ checksum mismatch at offset %d, quarantining tail", off)
				break
			}
		}

		off += frameLen
		q.count++
	}
	q.writeOff = off
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func readLength(r *bufio.Reader) (uint32, bool, error) {
	header := make([]byte, recordHeaderLen)
	n, err := io.ReadFull(r, header)
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return 0, false, nil
		}
		return 0, false, nil // partial header at tail: treat as end, not fatal
	}
	return binary.BigEndian.Uint32(header), true, nil
}

// Write appends payload to the tail of the file.
func (q *Queue) Write(payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	frameLen := int64(recordHeaderLen) + int64(len(payload))
	if q.opts.Checksum {
		frameLen += checksumLen
	}
	if q.opts.MaxBytes > 0 && q.writeOff+frameLen > q.opts.MaxBytes {
		return ErrDiskFull
	}

	header := make([]byte, recordHeaderLen)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))

	if _, err := q.file.WriteAt(header, q.writeOff); err != nil {
		return fmt.Errorf("diskqueue: write header: %w", err)
	}
	if _, err := q.file.WriteAt(payload, q.writeOff+recordHeaderLen); err != nil {
		return fmt.Errorf("diskqueue: write payload: %w", err)
	}
	if q.opts.Checksum {
		sum := blake2b.Sum256(payload)
		if _, err := q.file.WriteAt(sum[:], q.writeOff+recordHeaderLen+int64(len(payload))); err != nil {
			return fmt.Errorf("diskqueue: write checksum: %w", err)
		}
	}

	q.writeOff += frameLen
	q.count++
	return nil
}

// Read returns the next unread record starting at the current read cursor,
// without advancing it. The caller must call Ack after durably handing the
// record off; without an Ack the cursor stays put and the next Read returns
// the same record again.
func (q *Queue) Read() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.readOff >= q.writeOff {
		return nil, ErrEmpty
	}

	header := make([]byte, recordHeaderLen)
	if _, err := q.file.ReadAt(header, q.readOff); err != nil {
		return nil, fmt.Errorf("diskqueue: read header: %w", err)
	}
	recLen := binary.BigEndian.Uint32(header)

	payload := make([]byte, recLen)
	if _, err := q.file.ReadAt(payload, q.readOff+recordHeaderLen); err != nil {
		return nil, fmt.Errorf("diskqueue: read payload: %w", err)
	}

	if q.opts.Checksum {
		sum := make([]byte, checksumLen)
		if _, err := q.file.ReadAt(sum, q.readOff+recordHeaderLen+int64(recLen)); err != nil {
			return nil, fmt.Errorf("diskqueue: read checksum: %w", err)
		}
		want := blake2b.Sum256(payload)
		if !bytesEqual(sum, want[:]) {
			return nil, fmt.Errorf("%w at offset %d", ErrCorrupt, q.readOff)
		}
	}

	return payload, nil
}

// Ack advances the read cursor past the record most recently returned by
// Read, for the given payload length.
func (q *Queue) Ack(payloadLen int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	frameLen := int64(recordHeaderLen) + int64(payloadLen)
	if q.opts.Checksum {
		frameLen += checksumLen
	}
	q.readOff += frameLen
	q.count--
}

// Count returns the number of records written but not yet acked.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// HasUnread reports whether Read would return a record rather than ErrEmpty.
func (q *Queue) HasUnread() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readOff < q.writeOff
}

// Close flushes and closes the backing file.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.file.Close()
}
