package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// queueDepth bounds how many callback chunks may wait for the reader.
const queueDepth = 256

// finiteSource is implemented by captures that run out of audio, such as
// file replay. Done is closed once the last chunk has been delivered.
type finiteSource interface {
	Done() <-chan struct{}
}

// failingSource is implemented by captures that can end on their own
// because of a device failure. Err is read after Done is closed.
type failingSource interface {
	Err() error
}

// losslessSource is implemented by captures that can wait for the reader
// instead of dropping chunks when the queue is full.
type losslessSource interface {
	Lossless() bool
}

// Stream turns a callback-driven CaptureDevice into a blocking reader.
// Chunks delivered on the device goroutine are queued; ReadBuffer drains them.
type Stream struct {
	dev      CaptureDevice
	chunks   chan []byte
	ended    <-chan struct{}
	closed   chan struct{}
	lossless bool

	pending  []byte
	overruns atomic.Int64
	once     sync.Once
}

// Open creates a capture on device and starts it. A nil device selects the
// backend default.
func Open(ctx Context, device *DeviceInfo, cfg CaptureConfig) (*Stream, error) {
	dev, err := ctx.NewCapture(device, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDevice, err)
	}
	s := NewStream(dev)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, fmt.Errorf("%w: start capture: %w", ErrDevice, err)
	}
	return s, nil
}

// NewStream attaches a queue to dev. The caller starts the device.
func NewStream(dev CaptureDevice) *Stream {
	s := &Stream{
		dev:    dev,
		chunks: make(chan []byte, queueDepth),
		closed: make(chan struct{}),
	}
	if f, ok := dev.(finiteSource); ok {
		s.ended = f.Done()
	}
	if l, ok := dev.(losslessSource); ok {
		s.lossless = l.Lossless()
	}
	dev.SetCallback(s.push)
	return s
}

func (s *Stream) push(data []byte, _ uint32) {
	if len(data) == 0 {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	if s.lossless {
		select {
		case s.chunks <- chunk:
		case <-s.closed:
		}
		return
	}
	select {
	case s.chunks <- chunk:
	default:
		s.overruns.Add(1)
	}
}

// ReadBuffer fills p with the next len(p) bytes of audio. It returns the
// number of bytes placed in p. A finite source that runs dry yields the
// remaining bytes with io.EOF, a failed device with its error.
// Cancellation of ctx returns ctx.Err() together with the bytes already
// delivered, so audio captured before the stop still reaches the caller.
func (s *Stream) ReadBuffer(ctx context.Context, p []byte) (int, error) {
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	for n < len(p) {
		select {
		case c := <-s.chunks:
			n += s.take(p[n:], c)
		case <-ctx.Done():
			return n, ctx.Err()
		case <-s.ended:
			select {
			case c := <-s.chunks:
				n += s.take(p[n:], c)
			default:
				return n, s.endErr()
			}
		}
	}
	return n, nil
}

func (s *Stream) take(dst, chunk []byte) int {
	k := copy(dst, chunk)
	s.pending = chunk[k:]
	return k
}

func (s *Stream) endErr() error {
	if f, ok := s.dev.(failingSource); ok {
		if err := f.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrDevice, err)
		}
	}
	return io.EOF
}

// Overruns counts chunks dropped because the reader fell behind.
func (s *Stream) Overruns() int64 { return s.overruns.Load() }

func (s *Stream) DeviceName() string { return s.dev.DeviceName() }

func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.dev.Stop()
		s.dev.ClearCallback()
		s.dev.Close()
	})
}
