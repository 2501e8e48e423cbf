package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// ReplayContext plays a WAV file through the capture interfaces so a
// session can run without hardware.
type ReplayContext struct {
	path     string
	pcm      []byte
	config   CaptureConfig
	realtime bool
}

// NewReplayContext decodes path. With realtime set, periods are paced at
// the file's sample rate; otherwise they are delivered as fast as the
// reader consumes them.
func NewReplayContext(path string, realtime bool) (*ReplayContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDevice, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a PCM wav file", ErrDevice, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrDevice, path, err)
	}
	bits := int(d.BitDepth)
	if !SupportedBitDepth(bits) {
		return nil, fmt.Errorf("%w: %s has %d-bit samples", ErrDevice, path, bits)
	}

	samples := make([]int32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int32(v)
	}
	return &ReplayContext{
		path:     path,
		pcm:      EncodeLE(nil, samples, bits/8),
		realtime: realtime,
		config: CaptureConfig{
			SampleRate: d.SampleRate,
			Channels:   uint32(d.NumChans),
			BitDepth:   uint32(bits),
		},
	}, nil
}

// Format returns the sample rate, channel count and bit depth of the file.
func (r *ReplayContext) Format() CaptureConfig { return r.config }

func (r *ReplayContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: r.path, Name: "replay " + r.path}}, nil
}

func (r *ReplayContext) Close() {}

func (r *ReplayContext) NewCapture(_ *DeviceInfo, cfg CaptureConfig) (CaptureDevice, error) {
	if cfg.SampleRate != r.config.SampleRate || cfg.Channels != r.config.Channels || cfg.BitDepth != r.config.BitDepth {
		return nil, fmt.Errorf("replay %s: file is %d Hz %d ch %d bit, session wants %d Hz %d ch %d bit",
			r.path, r.config.SampleRate, r.config.Channels, r.config.BitDepth,
			cfg.SampleRate, cfg.Channels, cfg.BitDepth)
	}
	period := int(cfg.PeriodSize)
	if period <= 0 {
		period = 1024
	}
	return &ReplayCapture{
		name:       "replay " + r.path,
		pcm:        r.pcm,
		realtime:   r.realtime,
		chunkBytes: period * cfg.BytesPerFrame(),
		frameBytes: cfg.BytesPerFrame(),
		interval:   time.Duration(period) * time.Second / time.Duration(cfg.SampleRate),
		done:       make(chan struct{}),
	}, nil
}

var errReplayStarted = errors.New("replay already started")

// ReplayCapture feeds the decoded file to the callback one period at a time.
type ReplayCapture struct {
	name       string
	pcm        []byte
	realtime   bool
	chunkBytes int
	frameBytes int
	interval   time.Duration
	done       chan struct{}

	mu      sync.Mutex
	cb      DataCallback
	stopCh  chan struct{}
	feeding chan struct{}
}

// Done is closed after the final chunk has been handed to the callback.
func (c *ReplayCapture) Done() <-chan struct{} { return c.done }

// Lossless makes the stream queue wait for its reader.
func (c *ReplayCapture) Lossless() bool { return true }

func (c *ReplayCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *ReplayCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

func (c *ReplayCapture) DeviceName() string { return c.name }

func (c *ReplayCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCh != nil {
		return errReplayStarted
	}
	c.stopCh = make(chan struct{})
	c.feeding = make(chan struct{})
	go c.feed()
	return nil
}

func (c *ReplayCapture) feed() {
	defer close(c.feeding)
	defer close(c.done)
	for pos := 0; pos < len(c.pcm); {
		select {
		case <-c.stopCh:
			return
		default:
		}
		end := min(pos+c.chunkBytes, len(c.pcm))
		c.mu.Lock()
		cb := c.cb
		c.mu.Unlock()
		if cb != nil {
			cb(c.pcm[pos:end], uint32((end-pos)/c.frameBytes))
		}
		pos = end
		if c.realtime {
			select {
			case <-c.stopCh:
				return
			case <-time.After(c.interval):
			}
		}
	}
}

func (c *ReplayCapture) Stop() {
	c.mu.Lock()
	stop, feeding := c.stopCh, c.feeding
	c.mu.Unlock()
	if stop == nil {
		return
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	<-feeding
}

func (c *ReplayCapture) Close() {}
