// Package bytestream provides the pull-based byte source abstraction used
// throughout Ori for reading object payloads: a file slice, a whole disk
// file, an in-memory buffer, or a decompressing wrapper around any of the
// above. Each variant owns its underlying resource exclusively and
// releases it deterministically on Close; a wrapper owns and releases its
// inner stream.
package bytestream

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

const copyBufSize = 64 * 1024

// Stream is the common byte-source contract. It composes io.Reader so
// ordinary Go I/O code can consume it directly, plus the handful of query
// methods the rest of Ori's object machinery relies on.
type Stream interface {
	io.Reader
	io.Closer

	// Ended reports whether the stream has produced all of its data. It
	// becomes true on the Read that delivers the last byte (or once a Read
	// has returned io.EOF or an error); it never goes back to false.
	Ended() bool

	// SizeHint returns the number of bytes the stream expects to
	// produce, or 0 if that isn't known in advance (e.g. a decompressing
	// wrapper whose output length depends on the compressed data).
	SizeHint() int64
}

// ReadAll drains s to completion and returns everything it produced. If
// SizeHint is known it is used to preallocate the result buffer.
func ReadAll(s Stream) ([]byte, error) {
	if hint := s.SizeHint(); hint > 0 {
		buf := make([]byte, hint)
		n, err := io.ReadFull(s, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		return buf[:n], nil
	}
	var out bytes.Buffer
	buf := make([]byte, copyBufSize)
	for !s.Ended() {
		n, err := s.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// CopyTo streams s into w, returning the number of bytes copied.
func CopyTo(w io.Writer, s Stream) (int64, error) {
	return io.CopyBuffer(w, s, make([]byte, copyBufSize))
}

// CopyToFile streams s into a new file at path. On any error the partially
// written destination is removed, mirroring the reference implementation's
// copyToFile cleanup behavior.
func CopyToFile(s Stream, path string) (n int64, err error) {
	f, createErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if createErr != nil {
		return 0, fmt.Errorf("bytestream: create %s: %w", path, createErr)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	n, err = CopyTo(f, s)
	return n, err
}

// baseState tracks the ended/error bookkeeping shared by every concrete
// stream below, so each variant only has to implement Read.
type baseState struct {
	ended bool
	err   error
}

func (b *baseState) Ended() bool { return b.ended }

// Err returns the last non-EOF error observed by this stream, if any. It
// lets a wrapper adopt an inner stream's failure instead of masking it
// behind the decompressor's own (less specific) error.
func (b *baseState) Err() error { return b.err }

func (b *baseState) finish(err error) error {
	if err == io.EOF || err == nil && b.ended {
		b.ended = true
		return io.EOF
	}
	if err != nil {
		b.ended = true
		b.err = err
	}
	return err
}

// FileStream reads at most length bytes starting at offset from an open
// file, seeking once on construction. It takes ownership of f and closes
// it when the stream is closed.
type FileStream struct {
	baseState
	f      *os.File
	left   int64
	offset int64
}

// NewFileStream opens path read-only and wraps a FileStream limited to
// [offset, offset+length).
func NewFileStream(path string, offset, length int64) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bytestream: open %s: %w", path, err)
	}
	return newFileStreamFromFile(f, offset, length)
}

func newFileStreamFromFile(f *os.File, offset, length int64) (*FileStream, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("bytestream: seek: %w", err)
	}
	return &FileStream{f: f, left: length, offset: offset}, nil
}

func (s *FileStream) Read(buf []byte) (int, error) {
	if s.ended {
		return 0, io.EOF
	}
	if s.left <= 0 {
		return 0, s.finish(io.EOF)
	}
	if int64(len(buf)) > s.left {
		buf = buf[:s.left]
	}
	n, err := s.f.Read(buf)
	s.left -= int64(n)
	if err != nil {
		return n, s.finish(err)
	}
	if s.left <= 0 {
		// Mark the stream ended on the read that exhausts `left`; this
		// read still returns a nil error and the next one returns io.EOF.
		s.ended = true
	}
	return n, nil
}

func (s *FileStream) SizeHint() int64 { return s.left }

func (s *FileStream) Close() error { return s.f.Close() }

// NewDiskStream opens path read-only and covers the entire file, unlike
// FileStream which is bounded to an explicit byte range.
func NewDiskStream(path string) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bytestream: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bytestream: stat %s: %w", path, err)
	}
	return newFileStreamFromFile(f, 0, info.Size())
}

// MemoryStream serves a stream's worth of bytes out of an in-memory
// buffer, used when an object's payload has already been read into
// memory (e.g. a freshly hashed Blob about to be inserted into the Store).
type MemoryStream struct {
	baseState
	r *bytes.Reader
}

// NewMemoryStream wraps data. The slice is not copied; the caller must not
// mutate it while the stream is in use.
func NewMemoryStream(data []byte) *MemoryStream {
	return &MemoryStream{r: bytes.NewReader(data)}
}

func (s *MemoryStream) Read(buf []byte) (int, error) {
	if s.ended {
		return 0, io.EOF
	}
	n, err := s.r.Read(buf)
	if err != nil {
		return n, s.finish(err)
	}
	if s.r.Len() == 0 {
		s.ended = true
	}
	return n, nil
}

func (s *MemoryStream) SizeHint() int64 { return int64(s.r.Len()) }

func (s *MemoryStream) Close() error { return nil }

// CompressedStream wraps another Stream and yields decoded bytes. It owns
// and closes the inner stream.
type CompressedStream struct {
	baseState
	inner    Stream
	dec      *zstd.Decoder
	sizeHint int64
}

// NewCompressedStream wraps inner, whose bytes are zstd-compressed
// framing produced by the Store (see objfile's compression marker).
// sizeHint is the caller's best guess at the decompressed length, or 0.
func NewCompressedStream(inner Stream, sizeHint int64) (*CompressedStream, error) {
	dec, err := zstd.NewReader(inner)
	if err != nil {
		inner.Close()
		return nil, fmt.Errorf("bytestream: init decoder: %w", err)
	}
	return &CompressedStream{inner: inner, dec: dec, sizeHint: sizeHint}, nil
}

func (s *CompressedStream) Read(buf []byte) (int, error) {
	if s.ended {
		return 0, io.EOF
	}
	if innerErr := s.inheritError(); innerErr != nil {
		return 0, innerErr
	}
	n, err := s.dec.Read(buf)
	if err != nil {
		return n, s.finish(err)
	}
	return n, nil
}

// inheritError adopts the inner stream's error the first time this
// wrapper observes it, per the propagation rule every derived stream
// follows.
func (s *CompressedStream) inheritError() error {
	if fs, ok := s.inner.(interface{ Err() error }); ok {
		if err := fs.Err(); err != nil && err != io.EOF {
			s.err = err
			return err
		}
	}
	return nil
}

func (s *CompressedStream) SizeHint() int64 { return s.sizeHint }

func (s *CompressedStream) Close() error {
	s.dec.Close()
	return s.inner.Close()
}
