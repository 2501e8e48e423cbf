package segment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vadcap/wav"
)

var mono16 = wav.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

func header(t *testing.T, path string) wav.Header {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	h, err := wav.ReadHeader(f)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestWriterLifecycle(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, mono16)

	s, err := w.Open(0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Path() != filepath.Join(dir, "0.wav") {
		t.Errorf("path = %s", s.Path())
	}
	for range 10 {
		if err := w.Append(s, make([]byte, 1024)); err != nil {
			t.Fatal(err)
		}
	}
	info, err := w.Close(s)
	if err != nil {
		t.Fatal(err)
	}
	if info.Index != 0 || info.Bytes != 10240 || info.Frames != 5120 {
		t.Errorf("info = %+v", info)
	}
	if info.Duration != 320*time.Millisecond {
		t.Errorf("duration = %v", info.Duration)
	}
	h := header(t, info.Path)
	if h.DataSize != 10240 || h.RiffSize != 10240+36 {
		t.Errorf("header = %+v", h)
	}
}

func TestWriterDoubleClose(t *testing.T) {
	w := NewWriter(t.TempDir(), mono16)
	s, err := w.Open(3)
	if err != nil {
		t.Fatal(err)
	}
	w.Append(s, make([]byte, 64))
	if _, err := w.Close(s); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(s.Path())
	if _, err := w.Close(s); !errors.Is(err, wav.ErrClosed) {
		t.Errorf("second Close = %v, want wav.ErrClosed", err)
	}
	after, _ := os.ReadFile(s.Path())
	if string(before) != string(after) {
		t.Error("second Close rewrote the file")
	}
}

func TestWriterOneOpenAtATime(t *testing.T) {
	w := NewWriter(t.TempDir(), mono16)
	s, err := w.Open(0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Open(1); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open = %v, want ErrAlreadyOpen", err)
	}
	w.Close(s)
	if err := w.Append(s, []byte{0, 0}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Append after Close = %v, want ErrNotOpen", err)
	}
	if _, err := w.Open(1); err != nil {
		t.Errorf("Open after Close = %v", err)
	}
}

func TestWriterAbortRemovesFile(t *testing.T) {
	w := NewWriter(t.TempDir(), mono16)
	s, err := w.Open(0)
	if err != nil {
		t.Fatal(err)
	}
	w.Append(s, make([]byte, 100))
	if err := w.Abort(s); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("aborted segment still on disk: %v", err)
	}

	// The same index can be reused and starts empty.
	s, err = w.Open(0)
	if err != nil {
		t.Fatal(err)
	}
	info, err := w.Close(s)
	if err != nil {
		t.Fatal(err)
	}
	if info.Frames != 0 {
		t.Errorf("reopened segment has %d frames", info.Frames)
	}
}

func TestWriterCloseTrimmed(t *testing.T) {
	w := NewWriter(t.TempDir(), mono16)
	s, _ := w.Open(0)
	w.Append(s, make([]byte, 2000))
	info, err := w.CloseTrimmed(s, 1500)
	if err != nil {
		t.Fatal(err)
	}
	if info.Bytes != 500 {
		t.Errorf("Bytes = %d, want 500", info.Bytes)
	}
	if h := header(t, info.Path); h.DataSize != 500 {
		t.Errorf("DataSize = %d", h.DataSize)
	}
}

func TestWriterOpenFailure(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "missing"), mono16)
	if _, err := w.Open(0); err == nil {
		t.Fatal("expected error")
	}
}

// stuckFile refuses to be truncated.
type stuckFile struct {
	*wav.File
}

func (stuckFile) Truncate(int64) error { return errors.New("read-only") }

func TestWriterCloseTrimmedFailureRemovesFile(t *testing.T) {
	w := NewWriter(t.TempDir(), mono16)
	w.Create = func(path string, format wav.Format) (File, error) {
		f, err := wav.Create(path, format)
		if err != nil {
			return nil, err
		}
		return stuckFile{f}, nil
	}
	s, err := w.Open(0)
	if err != nil {
		t.Fatal(err)
	}
	w.Append(s, make([]byte, 2000))
	if _, err := w.CloseTrimmed(s, 1500); err == nil {
		t.Fatal("expected truncate error")
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("segment that failed to close still on disk: %v", err)
	}
	if _, err := w.Open(0); err != nil {
		t.Errorf("index 0 not reusable: %v", err)
	}
}
