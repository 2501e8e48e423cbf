// Package segment manages the per-utterance files <N>.wav cut out of a
// capture session.
package segment

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"vadcap/wav"
)

var (
	ErrAlreadyOpen = errors.New("segment: another segment is open")
	ErrNotOpen     = errors.New("segment: not the open segment")
)

// Info describes a finalized segment.
type Info struct {
	Index    int
	Path     string
	Bytes    int64
	Frames   int64
	Duration time.Duration
}

// File is the storage behind a segment. *wav.File implements it.
type File interface {
	io.Writer
	Name() string
	Frames() int64
	Truncate(n int64) error
	Close() error
	Discard() error
}

// CreateFunc creates the file for one segment.
type CreateFunc func(path string, format wav.Format) (File, error)

func createWAV(path string, format wav.Format) (File, error) {
	f, err := wav.Create(path, format)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Segment is the handle of an open utterance file.
type Segment struct {
	index int
	file  File
}

func (s *Segment) Index() int { return s.index }

func (s *Segment) Path() string { return s.file.Name() }

// Writer creates, fills and finalizes segment files. At most one segment is
// open at a time.
type Writer struct {
	// Create makes segment files; nil means wav.Create.
	Create CreateFunc

	dir    string
	format wav.Format
	open   *Segment
}

// NewWriter writes segments of the given format into dir; an empty dir
// means the working directory.
func NewWriter(dir string, format wav.Format) *Writer {
	return &Writer{dir: dir, format: format}
}

// PathFor returns the file name used for segment index.
func (w *Writer) PathFor(index int) string {
	return filepath.Join(w.dir, strconv.Itoa(index)+".wav")
}

// Open creates (or truncates) the file for index with a placeholder header.
func (w *Writer) Open(index int) (*Segment, error) {
	if w.open != nil {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyOpen, w.open.index)
	}
	create := w.Create
	if create == nil {
		create = createWAV
	}
	f, err := create(w.PathFor(index), w.format)
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", index, err)
	}
	w.open = &Segment{index: index, file: f}
	return w.open, nil
}

// Append writes p to the end of s.
func (w *Writer) Append(s *Segment, p []byte) error {
	if s != w.open {
		return ErrNotOpen
	}
	if _, err := s.file.Write(p); err != nil {
		return fmt.Errorf("segment %d: %w", s.index, err)
	}
	return nil
}

// Close patches the header of s and closes it. Closing a segment twice
// returns wav.ErrClosed.
func (w *Writer) Close(s *Segment) (Info, error) {
	return w.CloseTrimmed(s, 0)
}

// CloseTrimmed drops the final trim bytes of s before closing it. If the
// file cannot be trimmed or finalized it is deleted, as Abort does.
func (w *Writer) CloseTrimmed(s *Segment, trim int64) (Info, error) {
	if s == w.open {
		w.open = nil
	}
	if trim > 0 {
		if err := s.file.Truncate(trim); err != nil {
			return Info{}, w.discard(s, err)
		}
	}
	info := w.info(s)
	if err := s.file.Close(); err != nil {
		return Info{}, w.discard(s, err)
	}
	return info, nil
}

func (w *Writer) discard(s *Segment, cause error) error {
	if err := s.file.Discard(); err != nil {
		cause = errors.Join(cause, err)
	}
	return fmt.Errorf("segment %d: %w", s.index, cause)
}

// Abort closes s and deletes its file.
func (w *Writer) Abort(s *Segment) error {
	if s == w.open {
		w.open = nil
	}
	if err := s.file.Discard(); err != nil {
		return fmt.Errorf("segment %d: %w", s.index, err)
	}
	return nil
}

func (w *Writer) info(s *Segment) Info {
	frames := s.file.Frames()
	return Info{
		Index:    s.index,
		Path:     s.file.Name(),
		Bytes:    frames * int64(w.format.BlockAlign()),
		Frames:   frames,
		Duration: time.Duration(frames) * time.Second / time.Duration(w.format.SampleRate),
	}
}
