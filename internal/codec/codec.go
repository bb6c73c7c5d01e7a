// Package codec implements the compression layer the ingestion buffer
// manager applies to items spilled to disk (component C3). It wraps
// klauspost/compress's zstd implementation, the pack's idiomatic
// Zstandard-class library (see DESIGN.md).
package codec

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Level mirrors zstd's speed/ratio trade-off knobs at the levels spec.md
// names (1 fastest .. 22 best ratio), mapped onto zstd's own four encoder
// levels.
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 3
	LevelBetter  Level = 7
	LevelBest    Level = 22
)

func (l Level) toZstd() zstd.EncoderLevel {
	switch {
	case l <= LevelFastest:
		return zstd.SpeedFastest
	case l <= LevelDefault:
		return zstd.SpeedDefault
	case l <= LevelBetter:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// Options configures a Codec.
type Options struct {
	// Level selects the speed/ratio trade-off.
	Level Level
	// PassthroughBelow is the byte threshold under which Compress returns
	// the input unchanged rather than paying framing overhead.
	PassthroughBelow int
	// Dictionary is an optional trained dictionary built from a bounded
	// rolling sample of recent payloads (see BuildDictionary).
	Dictionary []byte
}

const defaultPassthroughBelow = 1024

// discardThreshold: if compression saves less than this fraction of the
// original size, Compress discards the compressed form and stores raw
// instead (spec.md §4.3: "discard if within 10% of original").
const discardThreshold = 0.10

// Codec compresses and decompresses ingestion buffer payloads.
type Codec struct {
	mu  sync.Mutex
	opt Options

	enc *zstd.Encoder
	dec *zstd.Decoder

	stats Stats
}

// Stats accumulates compression throughput and ratio observations for
// metrics reporting.
type Stats struct {
	BytesIn       int64
	BytesOut      int64
	RecordsPassed int64 // stored raw via passthrough or discard rule
	RecordsPacked int64 // stored compressed
}

// New builds a Codec. Prefix marks whether a payload is stored compressed.
func New(opt Options) (*Codec, error) {
	if opt.PassthroughBelow == 0 {
		opt.PassthroughBelow = defaultPassthroughBelow
	}

	encOpts := []zstd.EOption{zstd.WithEncoderLevel(opt.Level.toZstd())}
	decOpts := []zstd.DOption{}
	if len(opt.Dictionary) > 0 {
		encOpts = append(encOpts, zstd.WithEncoderDict(opt.Dictionary))
		decOpts = append(decOpts, zstd.WithDecoderDicts(opt.Dictionary))
	}

	enc, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, fmt.Errorf("codec: new encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		return nil, fmt.Errorf("codec: new decoder: %w", err)
	}

	return &Codec{opt: opt, enc: enc, dec: dec}, nil
}

const (
	tagRaw       byte = 0
	tagCompressed byte = 1
)

// Compress encodes payload, prefixed with a one-byte tag so Decompress can
// tell packed records from passthrough ones. Payloads under
// PassthroughBelow, or that don't compress well enough, are stored raw.
func (c *Codec) Compress(payload []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.BytesIn += int64(len(payload))

	if len(payload) < c.opt.PassthroughBelow {
		c.stats.RecordsPassed++
		c.stats.BytesOut += int64(len(payload)) + 1
		return append([]byte{tagRaw}, payload...)
	}

	packed := c.enc.EncodeAll(payload, make([]byte, 0, len(payload)))
	saved := float64(len(payload)-len(packed)) / float64(len(payload))
	if saved < discardThreshold {
		c.stats.RecordsPassed++
		c.stats.BytesOut += int64(len(payload)) + 1
		return append([]byte{tagRaw}, payload...)
	}

	c.stats.RecordsPacked++
	c.stats.BytesOut += int64(len(packed)) + 1
	return append([]byte{tagCompressed}, packed...)
}

// Decompress reverses Compress.
func (c *Codec) Decompress(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("codec: empty frame")
	}
	tag, body := framed[0], framed[1:]
	switch tag {
	case tagRaw:
		return body, nil
	case tagCompressed:
		c.mu.Lock()
		defer c.mu.Unlock()
		out, err := c.dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("codec: decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("codec: unknown frame tag %d", tag)
	}
}

// Snapshot returns a copy of the accumulated stats.
func (c *Codec) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Ratio returns the overall bytes-out/bytes-in ratio observed so far, or 1.0
// if nothing has been compressed yet.
func (c *Codec) Ratio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats.BytesIn == 0 {
		return 1.0
	}
	return float64(c.stats.BytesOut) / float64(c.stats.BytesIn)
}

// BuildDictionary trains a dictionary-shaped byte slice from a bounded
// rolling sample of recent payloads. zstd's CLI-grade dictionary trainer
// isn't exposed by this library for arbitrary small samples, so this
// assembles a concatenated, size-capped sample suitable for
// WithEncoderDict/WithDecoderDicts, which is the supported low-friction
// path for small, homogeneous record sets like a single log source.
func BuildDictionary(samples [][]byte, maxBytes int) []byte {
	var buf bytes.Buffer
	for _, s := range samples {
		if buf.Len()+len(s) > maxBytes {
			break
		}
		buf.Write(s)
	}
	return buf.Bytes()
}

// RecommendLevel suggests a level given an observed throughput budget: lower
// levels when the codec is falling behind the admission rate, higher levels
// when there is slack, matching the adaptive guidance in spec.md §4.3.
func RecommendLevel(currentLevel Level, behindByRatio float64) Level {
	switch {
	case behindByRatio > 0.25 && currentLevel > LevelFastest:
		return currentLevel - 2
	case behindByRatio < -0.25 && currentLevel < LevelBest:
		return currentLevel + 2
	default:
		return currentLevel
	}
}
