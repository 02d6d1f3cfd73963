package bytestream

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestMemoryStreamReadAll(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	s := NewMemoryStream(data)
	got, err := ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
	if !s.Ended() {
		t.Fatal("stream should be ended after full read")
	}
}

func TestFileStreamRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileStream(path, 3, 4)
	if err != nil {
		t.Fatalf("NewFileStream: %v", err)
	}
	defer s.Close()
	got, err := ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "3456" {
		t.Fatalf("got %q, want %q", got, "3456")
	}
}

func TestDiskStreamWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	want := []byte("full file contents")
	if err := os.WriteFile(path, want, 0644); err != nil {
		t.Fatal(err)
	}
	s, err := NewDiskStream(path)
	if err != nil {
		t.Fatalf("NewDiskStream: %v", err)
	}
	defer s.Close()
	if s.SizeHint() != int64(len(want)) {
		t.Fatalf("SizeHint() = %d, want %d", s.SizeHint(), len(want))
	}
	got, err := ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCopyToFileCleansUpOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out")
	_, err := CopyToFile(&failingStream{}, path)
	if err == nil {
		t.Fatal("expected error from failing stream")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("partial output file should have been removed")
	}
}

func TestCompressedStreamRoundTrip(t *testing.T) {
	want := []byte("data that will be compressed and then decompressed again")
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	compressed := enc.EncodeAll(want, nil)
	enc.Close()

	cs, err := NewCompressedStream(NewMemoryStream(compressed), int64(len(want)))
	if err != nil {
		t.Fatalf("NewCompressedStream: %v", err)
	}
	defer cs.Close()
	got, err := ReadAll(cs)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// failingStream always errors, used to exercise CopyToFile's cleanup path.
type failingStream struct{ baseState }

func (f *failingStream) Read([]byte) (int, error) { return 0, os.ErrInvalid }
func (f *failingStream) Close() error              { return nil }
func (f *failingStream) SizeHint() int64           { return 0 }
