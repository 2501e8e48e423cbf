//go:build linux && !portaudio

package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("vadcap"))
	if err != nil {
		return nil, fmt.Errorf("%w: pulse: %w", ErrDevice, err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sources {
		devices = append(devices, DeviceInfo{
			ID:   s.ID(),
			Name: s.Name(),
		})
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	format, pack, err := pulseFormat(config.BitDepth)
	if err != nil {
		return nil, err
	}
	var layout pulse.RecordOption
	switch config.Channels {
	case 1:
		layout = pulse.RecordMono
	case 2:
		layout = pulse.RecordStereo
	default:
		return nil, fmt.Errorf("pulse: %d channels not supported", config.Channels)
	}
	c := &pulseCapture{
		client: p.client,
		device: device,
		config: config,
		format: format,
		layout: layout,
		done:   make(chan struct{}),
	}
	c.writer = &callbackWriter{c: c, pack24: pack}
	return c, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

// pulseFormat maps bits to a record format the client library accepts. It
// has no packed 24-bit writer, so 24-bit capture records S32LE and pack is
// set for the writer to narrow each sample.
func pulseFormat(bits uint32) (format byte, pack bool, err error) {
	switch bits {
	case 16:
		return proto.FormatInt16LE, false, nil
	case 24:
		return proto.FormatInt32LE, true, nil
	case 32:
		return proto.FormatInt32LE, false, nil
	}
	return 0, false, fmt.Errorf("pulse: %d bits not supported", bits)
}

// callbackWriter forwards record data to the installed callback. Pulse
// calls Write from its single dispatch goroutine, so scratch is not shared.
type callbackWriter struct {
	c       *pulseCapture
	pack24  bool
	scratch []byte
}

func (w *callbackWriter) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	data := buf
	if w.pack24 {
		w.scratch = Pack32To24(w.scratch, buf)
		data = w.scratch
	}
	if cb := w.c.callback.Load(); cb != nil {
		(*cb)(data, uint32(len(data)/w.c.config.BytesPerFrame()))
	}
	return len(buf), nil
}

// closedPoll is how often a running stream is checked for server loss.
const closedPoll = 100 * time.Millisecond

var errStreamClosed = errors.New("pulse: record stream closed")

type pulseCapture struct {
	client   *pulse.Client
	device   *DeviceInfo
	config   CaptureConfig
	format   byte
	layout   pulse.RecordOption
	writer   *callbackWriter
	callback atomic.Pointer[DataCallback]

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}

	once sync.Once
	done chan struct{}
	err  error
}

// Done is closed when the record stream dies on its own, e.g. when the
// server connection is lost.
func (c *pulseCapture) Done() <-chan struct{} { return c.done }

func (c *pulseCapture) Err() error { return c.err }

func (c *pulseCapture) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	latency := float64(c.config.BufferFrames()) / float64(c.config.SampleRate)
	opts := []pulse.RecordOption{
		c.layout,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(latency),
	}
	if c.device != nil {
		source, err := c.client.SourceByID(c.device.ID)
		if err != nil {
			return fmt.Errorf("pulse source %s: %w", c.device.ID, err)
		}
		opts = append(opts, pulse.RecordSource(source))
	}

	stream, err := c.client.NewRecord(pulse.NewWriter(c.writer, c.format), opts...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}

	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})

	go func() {
		defer close(c.stopped)
		stream.Start()
		tick := time.NewTicker(closedPoll)
		defer tick.Stop()
		for {
			select {
			case <-c.stop:
				stream.Stop()
				stream.Close()
				return
			case <-tick.C:
				if !stream.Closed() && stream.Running() {
					continue
				}
				err := stream.Error()
				if err == nil {
					err = errStreamClosed
				}
				c.fail(err)
				if !stream.Closed() {
					stream.Close()
				}
				<-c.stop
				return
			}
		}
	}()

	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		select {
		case <-c.stop:
		default:
			close(c.stop)
		}
		<-c.stopped
	}
}

func (c *pulseCapture) Close() {
	c.Stop()
}

func (c *pulseCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *pulseCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *pulseCapture) DeviceName() string {
	if c.device != nil {
		return c.device.Name
	}
	return "system default"
}
