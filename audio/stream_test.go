package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// manualCapture hands chunks to the callback only when the test says so.
type manualCapture struct {
	mu      sync.Mutex
	cb      DataCallback
	started bool
	stopped bool
	closed  bool
	done    chan struct{}
}

func (m *manualCapture) Start() error { m.mu.Lock(); m.started = true; m.mu.Unlock(); return nil }
func (m *manualCapture) Stop()        { m.mu.Lock(); m.stopped = true; m.mu.Unlock() }
func (m *manualCapture) Close()       { m.mu.Lock(); m.closed = true; m.mu.Unlock() }
func (m *manualCapture) SetCallback(cb DataCallback) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}
func (m *manualCapture) ClearCallback()     { m.SetCallback(nil) }
func (m *manualCapture) DeviceName() string { return "manual" }

func (m *manualCapture) emit(b []byte) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	if cb != nil {
		cb(b, uint32(len(b)/2))
	}
}

type finiteCapture struct {
	manualCapture
}

func (f *finiteCapture) Done() <-chan struct{} { return f.done }

func TestStreamReadBufferSpansChunks(t *testing.T) {
	dev := &manualCapture{}
	s := NewStream(dev)

	dev.emit([]byte{1, 2, 3})
	dev.emit([]byte{4, 5, 6, 7, 8})

	p := make([]byte, 4)
	n, err := s.ReadBuffer(context.Background(), p)
	if err != nil || n != 4 {
		t.Fatalf("ReadBuffer = %d, %v", n, err)
	}
	if string(p) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("first read = %v", p)
	}
	n, err = s.ReadBuffer(context.Background(), p)
	if err != nil || n != 4 {
		t.Fatalf("ReadBuffer = %d, %v", n, err)
	}
	if string(p) != string([]byte{5, 6, 7, 8}) {
		t.Errorf("second read = %v", p)
	}
}

func TestStreamCallbackDataIsCopied(t *testing.T) {
	dev := &manualCapture{}
	s := NewStream(dev)

	buf := []byte{9, 9}
	dev.emit(buf)
	buf[0], buf[1] = 0, 0

	p := make([]byte, 2)
	if _, err := s.ReadBuffer(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if p[0] != 9 || p[1] != 9 {
		t.Errorf("read %v, want the bytes as delivered", p)
	}
}

func TestStreamCanceled(t *testing.T) {
	s := NewStream(&manualCapture{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	n, err := s.ReadBuffer(ctx, make([]byte, 16))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0", n)
	}
}

func TestStreamCanceledKeepsDeliveredBytes(t *testing.T) {
	dev := &manualCapture{}
	s := NewStream(dev)
	delivered := make([]byte, 3000)
	for i := range delivered {
		delivered[i] = byte(i)
	}
	dev.emit(delivered)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	p := make([]byte, 4096)
	n, err := s.ReadBuffer(ctx, p)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n != len(delivered) {
		t.Fatalf("n = %d, want %d", n, len(delivered))
	}
	if string(p[:n]) != string(delivered) {
		t.Error("delivered bytes not returned intact")
	}
}

func TestStreamEOFDrainsQueue(t *testing.T) {
	dev := &finiteCapture{manualCapture{done: make(chan struct{})}}
	s := NewStream(dev)
	dev.emit([]byte{1, 2, 3, 4})
	dev.emit([]byte{5, 6})
	close(dev.done)

	p := make([]byte, 4)
	if n, err := s.ReadBuffer(context.Background(), p); n != 4 || err != nil {
		t.Fatalf("first read = %d, %v", n, err)
	}
	n, err := s.ReadBuffer(context.Background(), p)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
	if n != 2 || p[0] != 5 || p[1] != 6 {
		t.Errorf("tail read = %d %v", n, p[:n])
	}
	if n, err := s.ReadBuffer(context.Background(), p); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("after EOF = %d, %v", n, err)
	}
}

type failedCapture struct {
	finiteCapture
	err error
}

func (f *failedCapture) Err() error { return f.err }

func TestStreamReportsDeviceFailure(t *testing.T) {
	unplugged := errors.New("unplugged")
	dev := &failedCapture{finiteCapture{manualCapture{done: make(chan struct{})}}, unplugged}
	s := NewStream(dev)
	dev.emit([]byte{1, 2})
	close(dev.done)

	n, err := s.ReadBuffer(context.Background(), make([]byte, 4))
	if !errors.Is(err, unplugged) || !errors.Is(err, ErrDevice) {
		t.Fatalf("err = %v, want device failure", err)
	}
	if errors.Is(err, io.EOF) {
		t.Error("device failure reported as end of stream")
	}
	if n != 2 {
		t.Errorf("n = %d, want the 2 bytes captured before the failure", n)
	}
}

func TestStreamOverrunDropsChunks(t *testing.T) {
	dev := &manualCapture{}
	s := NewStream(dev)
	for range queueDepth + 3 {
		dev.emit([]byte{0, 0})
	}
	if got := s.Overruns(); got != 3 {
		t.Errorf("Overruns = %d, want 3", got)
	}
}

func TestStreamCloseStopsDevice(t *testing.T) {
	dev := &manualCapture{}
	s := NewStream(dev)
	s.Close()
	s.Close()
	if !dev.stopped || !dev.closed {
		t.Errorf("stopped=%v closed=%v", dev.stopped, dev.closed)
	}
	if dev.cb != nil {
		t.Error("callback still installed after Close")
	}
}

type stubContext struct {
	devices []DeviceInfo
	err     error
}

func (c *stubContext) Devices() ([]DeviceInfo, error) { return c.devices, c.err }
func (c *stubContext) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &manualCapture{}, nil
}
func (c *stubContext) Close() {}

func TestOpenWrapsDeviceError(t *testing.T) {
	_, err := Open(&stubContext{err: errors.New("busy")}, nil, CaptureConfig{})
	if !errors.Is(err, ErrDevice) {
		t.Errorf("err = %v, want ErrDevice", err)
	}
}
