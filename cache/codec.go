package cache

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// DefaultMaxDecompressedBytes bounds inflation of a stored payload.
const DefaultMaxDecompressedBytes = 64 << 20

// Codec compresses serialized results for storage.
//
// Contract:
// - Round trip: Decompress(Compress(p)) == string(p).
// - Errors: failures wrap ErrCodecFailure.
type Codec interface {
	Compress(payload []byte) ([]byte, error)
	Decompress(data []byte) (string, error)
}

// DeflateCodec produces zlib-framed DEFLATE streams.
type DeflateCodec struct {
	// Level is the zlib compression level. Zero means zlib.DefaultCompression.
	Level int

	// MaxDecompressedBytes caps Decompress output.
	// Zero means DefaultMaxDecompressedBytes.
	MaxDecompressedBytes int64
}

// NewDeflateCodec returns a codec at the default compression level.
func NewDeflateCodec() *DeflateCodec {
	return &DeflateCodec{}
}

// Compress deflates payload.
func (c *DeflateCodec) Compress(payload []byte) ([]byte, error) {
	level := c.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodecFailure, err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodecFailure, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates data and returns the payload as text.
func (c *DeflateCodec) Decompress(data []byte) (string, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCodecFailure, err)
	}
	defer func() { _ = r.Close() }()

	limit := c.MaxDecompressedBytes
	if limit <= 0 {
		limit = DefaultMaxDecompressedBytes
	}

	var out strings.Builder
	n, err := io.Copy(&out, io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCodecFailure, err)
	}
	if n > limit {
		return "", fmt.Errorf("%w: payload exceeds %d bytes", ErrCodecFailure, limit)
	}
	return out.String(), nil
}

// EncodeBinary maps each byte to the code point of the same value, so the
// result survives JSON and text columns unchanged.
func EncodeBinary(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

// DecodeBinary reverses EncodeBinary. Code points above 0xFF, including
// the replacement for invalid UTF-8, are an ErrCodecFailure.
func DecodeBinary(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i, r := range s {
		if r > 0xFF {
			return nil, fmt.Errorf("%w: non-binary code point at offset %d", ErrCodecFailure, i)
		}
		out = append(out, byte(r))
	}
	return out, nil
}

var _ Codec = (*DeflateCodec)(nil)
