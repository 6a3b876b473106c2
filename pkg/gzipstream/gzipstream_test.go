package gzipstream

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatalf("gzip.Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip.Close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodesAGzipStream(t *testing.T) {
	want := "hello, world, repeated for compressibility, hello, world"
	compressed := gzipBytes(t, want)

	r, err := NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNewReaderRejectsNonGzipInput(t *testing.T) {
	if _, err := NewReader(strings.NewReader("not gzip")); err == nil {
		t.Fatalf("expected an error for non-gzip input")
	}
}

func TestCompressedBytesReadTracksSource(t *testing.T) {
	compressed := gzipBytes(t, "some payload")
	r, err := NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if r.CompressedBytesRead() == 0 {
		t.Errorf("expected CompressedBytesRead to be nonzero after reading the stream")
	}
}

// slowReader delivers one byte per Read, modeling a gzip stream split
// across chunk boundaries (§8 scenario 4).
type slowReader struct {
	data []byte
	pos  int
}

func (s *slowReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	p[0] = s.data[s.pos]
	s.pos++
	return 1, nil
}

func TestDecodesAcrossFragmentedReads(t *testing.T) {
	want := "fragmented across many single-byte reads"
	compressed := gzipBytes(t, want)

	r, err := NewReader(&slowReader{data: compressed})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDrainDiscardsRemainingBytes(t *testing.T) {
	n, err := Drain(strings.NewReader("trailing chunk bytes"))
	if err != nil {
		t.Errorf("Drain: %v", err)
	}
	if want := int64(len("trailing chunk bytes")); n != want {
		t.Errorf("Drain drained %d bytes, want %d", n, want)
	}
}
