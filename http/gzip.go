package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var (
	ErrBodyTooLarge        = errors.New("body too large")
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
)

// ReadBody reads at most limit bytes of a body sent with contentEncoding,
// which is either empty, identity or gzip.
func ReadBody(body io.Reader, contentEncoding string, limit int64) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return readLimited(body, limit)
	case "gzip":
		return UncompressGzip(body, limit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, contentEncoding)
	}
}

// UncompressGzip fails with ErrBodyTooLarge when the content expands
// beyond limit.
func UncompressGzip(reader io.Reader, limit int64) ([]byte, error) {
	decompressor, gzipErr := gzip.NewReader(reader)
	if gzipErr != nil {
		return nil, gzipErr
	}
	defer decompressor.Close()
	return readLimited(decompressor, limit)
}

func readLimited(reader io.Reader, limit int64) ([]byte, error) {
	var buffer bytes.Buffer
	read, copyErr := buffer.ReadFrom(io.LimitReader(reader, limit+1))
	if copyErr != nil {
		return nil, copyErr
	}
	if read > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, limit)
	}
	return buffer.Bytes(), nil
}

func CompressGzip(data []byte) ([]byte, error) {
	return NewGzipWriter().Compress(data)
}

// GzipWriter reuses one compressor, it is not safe for concurrent use.
type GzipWriter struct {
	writer *gzip.Writer
}

func NewGzipWriter() *GzipWriter {
	return &GzipWriter{writer: gzip.NewWriter(io.Discard)}
}

func (g *GzipWriter) Compress(in []byte) ([]byte, error) {
	var compressed bytes.Buffer
	g.writer.Reset(&compressed)
	if _, err := g.writer.Write(in); err != nil {
		return nil, err
	}
	if err := g.writer.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}
