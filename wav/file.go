package wav

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// File is a WAV file under construction. Create writes a placeholder header;
// Close patches it with the final frame count.
type File struct {
	f      *os.File
	format Format
	bytes  int64
	limit  int64
	closed bool
}

// Create creates or truncates path and writes a zero-length header.
func Create(path string, format Format) (*File, error) {
	if format.BlockAlign() <= 0 {
		return nil, fmt.Errorf("wav: invalid format %s", format)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	h := NewHeader(format, 0)
	if _, err := h.WriteTo(f); err != nil {
		f.Close()
		return nil, err
	}
	limit := MaxDataSize - MaxDataSize%int64(format.BlockAlign())
	return &File{f: f, format: format, limit: limit}, nil
}

// Write appends PCM bytes. A short write is reported as io.ErrShortWrite.
// A write that would grow the data past what the header can describe is
// refused whole with ErrTooLarge; the file stays valid up to that point.
func (w *File) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if w.bytes+int64(len(p)) > w.limit {
		return 0, ErrTooLarge
	}
	n, err := w.f.Write(p)
	w.bytes += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

func (w *File) Name() string { return w.f.Name() }

func (w *File) Format() Format { return w.format }

// Frames is the number of whole frames written so far.
func (w *File) Frames() int64 { return w.bytes / int64(w.format.BlockAlign()) }

// Truncate drops the last n bytes of audio.
func (w *File) Truncate(n int64) error {
	if w.closed {
		return ErrClosed
	}
	w.bytes = max(w.bytes-n, 0)
	end := HeaderSize + w.bytes
	if err := w.f.Truncate(end); err != nil {
		return fmt.Errorf("wav: truncate: %w", err)
	}
	if _, err := w.f.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek: %w", err)
	}
	return nil
}

// Close patches the header with the frame count and closes the file. A
// trailing partial frame is cut off. Closing twice returns ErrClosed.
func (w *File) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	frames := w.Frames()
	var errs []error
	if aligned := frames * int64(w.format.BlockAlign()); aligned != w.bytes {
		if err := w.f.Truncate(HeaderSize + aligned); err != nil {
			errs = append(errs, fmt.Errorf("wav: truncate partial frame: %w", err))
		}
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		errs = append(errs, fmt.Errorf("wav: seek to header: %w", err))
	} else {
		h := NewHeader(w.format, frames)
		if _, err := h.WriteTo(w.f); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.f.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Discard closes the file without patching it and removes it.
func (w *File) Discard() error {
	var errs []error
	if !w.closed {
		w.closed = true
		if err := w.f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(w.f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
