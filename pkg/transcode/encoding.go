// Package transcode relays compressed HTTP bodies unchanged while exposing a
// decoded copy of the stream for inspection.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Encoding identifies the content-encoding applied to a body
type Encoding int

const (
	// Identity is an uncompressed body
	Identity Encoding = iota
	// Gzip is a gzip compressed body
	Gzip
	// Brotli is a brotli compressed body
	Brotli
)

// ErrUnsupportedEncoding is returned for content-encodings that cannot be decoded
var ErrUnsupportedEncoding = errors.New("unsupported content encoding")

// String returns the Content-Encoding token of the encoding
func (e Encoding) String() string {
	switch e {
	case Identity:
		return "identity"
	case Gzip:
		return "gzip"
	case Brotli:
		return "br"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// ParseEncoding parses a Content-Encoding header value
func ParseEncoding(header string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "", "identity":
		return Identity, nil
	case "gzip", "x-gzip":
		return Gzip, nil
	case "br":
		return Brotli, nil
	default:
		return Identity, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, header)
	}
}

// NewReader wraps r in a decoder for the encoding
func NewReader(r io.Reader, enc Encoding) (io.ReadCloser, error) {
	switch enc {
	case Identity:
		return io.NopCloser(r), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return zr, nil
	case Brotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, enc)
	}
}

// NewWriter wraps w in an encoder for the encoding. Close must be called to
// flush the final compressed block.
func NewWriter(w io.Writer, enc Encoding) (io.WriteCloser, error) {
	switch enc {
	case Identity:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Brotli:
		return brotli.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, enc)
	}
}

// Decode decodes a complete body. An empty body decodes to an empty body.
func Decode(data []byte, enc Encoding) ([]byte, error) {
	if enc == Identity || len(data) == 0 {
		return data, nil
	}
	r, err := NewReader(bytes.NewReader(data), enc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", enc, err)
	}
	return decoded, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
