// Package gzipstream wraps compress/gzip around a streamed HTTP body
// (§4.8). The wire format is fixed to RFC 1952 gzip by the
// Content-Encoding header, and no library in the reference pack
// implements that framing, so this layer is the one place netfetch
// reaches for the standard library's compress/gzip and compress/flate
// instead of a pack dependency.
package gzipstream

import (
	"bufio"
	"compress/gzip"
	"io"

	"github.com/mossbrook/go-netfetch/pkg/errors"
)

// Reader decodes a gzip-encoded body as it streams in. It composes over
// any io.Reader — a chunked.Reader, a fixed-length LimitReader, or a
// bare connection read until close — so the gzip magic bytes, or any
// other structure, may straddle a chunk boundary with no special-casing:
// gzip.Reader simply blocks on the next Read until more bytes arrive.
type Reader struct {
	gz  *gzip.Reader
	src *countingReader
}

// NewReader starts decoding src. The first two magic bytes are read
// eagerly by gzip.NewReader, which is why construction itself can fail
// and return a *errors.Error of KindGzipError.
func NewReader(src io.Reader) (*Reader, error) {
	cr := &countingReader{r: src}
	gz, err := gzip.NewReader(bufio.NewReader(cr))
	if err != nil {
		return nil, errors.NewGzipError("opening gzip stream", err)
	}
	return &Reader{gz: gz, src: cr}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.gz.Read(p)
	if err != nil && err != io.EOF {
		return n, errors.NewGzipError("inflating gzip stream", err)
	}
	return n, err
}

// CompressedBytesRead reports how many compressed bytes have been pulled
// from the underlying source so far, for matching against a declared
// compressed Content-Length even when inflate reports io.EOF on its own
// internal trailer before the source is fully drained.
func (r *Reader) CompressedBytesRead() int64 {
	return r.src.n
}

// Close releases the gzip.Reader's internal state. It does not close the
// underlying source.
func (r *Reader) Close() error {
	return r.gz.Close()
}

// Drain discards any bytes remaining on src after gzip decoding has
// finished — needed for a chunked+gzip body, where chunked.Reader's own
// EOF only fires once its zero-size terminating chunk has been consumed,
// which can be after gzip.Reader already reported its trailer. It
// reports how many bytes it discarded, since those bytes were pulled
// directly off src and so never passed through the Reader's own
// CompressedBytesRead accounting.
func Drain(src io.Reader) (int64, error) {
	n, err := io.Copy(io.Discard, src)
	if err != nil {
		return n, errors.NewIOError("draining chunked trailer after gzip EOF", err)
	}
	return n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
