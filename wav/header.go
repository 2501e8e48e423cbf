// Package wav writes canonical 44-byte-header PCM WAVE files whose size
// fields are patched once the amount of audio is known.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	HeaderSize = 44

	// MaxDataSize is the most audio a RIFF size field can describe.
	MaxDataSize = math.MaxUint32 - (HeaderSize - 8)

	formatPCM = 1
	fmtSize   = 16
)

var (
	ErrClosed        = errors.New("wav: file already closed")
	ErrInvalidHeader = errors.New("wav: invalid header")
	ErrTooLarge      = errors.New("wav: data exceeds 4 GiB container limit")
)

// Format is the PCM layout of a file.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func (f Format) BlockAlign() int { return f.Channels * f.BitDepth / 8 }

func (f Format) ByteRate() int { return f.SampleRate * f.BlockAlign() }

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d bit", f.SampleRate, f.Channels, f.BitDepth)
}

// Header mirrors the on-disk RIFF/WAVE header field by field.
type Header struct {
	RiffID        [4]byte
	RiffSize      uint32
	WaveID        [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

// NewHeader returns the header for frames frames of audio in format f.
func NewHeader(f Format, frames int64) Header {
	h := Header{
		RiffID:        [4]byte{'R', 'I', 'F', 'F'},
		WaveID:        [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       fmtSize,
		AudioFormat:   formatPCM,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.BitDepth),
		DataID:        [4]byte{'d', 'a', 't', 'a'},
	}
	h.SetFrames(frames)
	return h
}

// SetFrames updates DataSize and RiffSize for a frame count. Counts past
// MaxDataSize are clamped to the largest whole number of frames that fits.
func (h *Header) SetFrames(frames int64) {
	if h.BlockAlign > 0 {
		frames = min(frames, MaxDataSize/int64(h.BlockAlign))
	}
	h.DataSize = uint32(frames * int64(h.BlockAlign))
	h.RiffSize = h.DataSize + HeaderSize - 8
}

// Frames is DataSize expressed in whole frames.
func (h Header) Frames() int64 {
	if h.BlockAlign == 0 {
		return 0
	}
	return int64(h.DataSize) / int64(h.BlockAlign)
}

func (h Header) Format() Format {
	return Format{
		SampleRate: int(h.SampleRate),
		Channels:   int(h.NumChannels),
		BitDepth:   int(h.BitsPerSample),
	}
}

func (h Header) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return 0, fmt.Errorf("wav: writing header: %w", err)
	}
	return HeaderSize, nil
}

// ReadHeader reads and checks a canonical 44-byte header.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("wav: reading header: %w", err)
	}
	switch {
	case string(h.RiffID[:]) != "RIFF", string(h.WaveID[:]) != "WAVE":
		return h, fmt.Errorf("%w: not a RIFF/WAVE file", ErrInvalidHeader)
	case string(h.FmtID[:]) != "fmt " || h.FmtSize != fmtSize:
		return h, fmt.Errorf("%w: unexpected fmt chunk", ErrInvalidHeader)
	case h.AudioFormat != formatPCM:
		return h, fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidHeader, h.AudioFormat)
	case string(h.DataID[:]) != "data":
		return h, fmt.Errorf("%w: data chunk does not follow fmt", ErrInvalidHeader)
	}
	return h, nil
}

// Consistent reports whether the size fields agree with each other and the
// format fields.
func (h Header) Consistent() bool {
	f := h.Format()
	return h.RiffSize == h.DataSize+HeaderSize-8 &&
		int(h.BlockAlign) == f.BlockAlign() &&
		int(h.ByteRate) == f.ByteRate() &&
		h.BlockAlign != 0 &&
		h.DataSize%uint32(h.BlockAlign) == 0
}
