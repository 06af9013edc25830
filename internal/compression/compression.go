// Package compression implements the topic compression_algorithm knob:
// None or Gzip, matching the wire codes from the original source's
// sdk/src/compression/compression_algorithm.rs (None=1, Gzip=2).
package compression

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// Algorithm is the topic-level compression_algorithm knob.
type Algorithm uint8

const (
	None Algorithm = 1
	Gzip Algorithm = 2
)

// Code returns the wire code for the algorithm.
func (a Algorithm) Code() uint8 { return uint8(a) }

// FromCode parses the wire code back into an Algorithm.
func FromCode(code uint8) (Algorithm, error) {
	switch Algorithm(code) {
	case None:
		return None, nil
	case Gzip:
		return Gzip, nil
	default:
		return 0, flowerr.Newf(flowerr.KindInvalidInput, "compression.FromCode", "unknown compression code %d", code)
	}
}

// FromString parses the config-file spelling ("none", "gzip").
func FromString(s string) (Algorithm, error) {
	switch s {
	case "none", "":
		return None, nil
	case "gzip":
		return Gzip, nil
	default:
		return 0, flowerr.Newf(flowerr.KindInvalidInput, "compression.FromString", "unknown compression algorithm %q", s)
	}
}

func (a Algorithm) String() string {
	switch a {
	case Gzip:
		return "gzip"
	default:
		return "none"
	}
}

// Compress compresses data per the topic's configured algorithm. Segment
// batches are compressed whole, mirroring the teacher's CompressionDriver
// wrapping gzip at the storage boundary.
func Compress(algo Algorithm, data []byte) ([]byte, error) {
	const op = "compression.Compress"
	if algo == None {
		return data, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
	}
	if err := w.Close(); err != nil {
		return nil, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(algo Algorithm, data []byte) ([]byte, error) {
	const op = "compression.Decompress"
	if algo == None {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindCorruption, op, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindCorruption, op, err)
	}
	return out, nil
}
