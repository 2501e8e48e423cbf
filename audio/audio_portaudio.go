//go:build portaudio

package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

type portaudioContext struct{}

// NewContext initializes PortAudio. Build with -tags portaudio to use it in
// place of the platform backend.
func NewContext() (Context, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio: initializing failed: %w", ErrDevice, err)
	}
	return &portaudioContext{}, nil
}

func (p *portaudioContext) inputs() ([]*portaudio.DeviceInfo, error) {
	apis, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("portaudio: host apis: %w", err)
	}
	var devices []*portaudio.DeviceInfo
	for _, a := range apis {
		for _, d := range a.Devices {
			if d.MaxInputChannels > 0 {
				devices = append(devices, d)
			}
		}
	}
	return devices, nil
}

func (p *portaudioContext) Devices() ([]DeviceInfo, error) {
	inputs, err := p.inputs()
	if err != nil {
		return nil, err
	}
	var result []DeviceInfo
	for _, d := range inputs {
		result = append(result, DeviceInfo{
			ID:   fmt.Sprintf("%s/%s", d.HostApi.Name, d.Name),
			Name: d.Name,
		})
	}
	return result, nil
}

func (p *portaudioContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	c := &portaudioCapture{info: device, config: config, done: make(chan struct{})}
	frames := int(config.PeriodSize)

	var buf any
	switch config.BitDepth {
	case 16:
		c.buf16 = make([]int16, frames*int(config.Channels))
		buf = c.buf16
	case 32:
		c.buf32 = make([]int32, frames*int(config.Channels))
		buf = c.buf32
	default:
		return nil, fmt.Errorf("portaudio: %d bits not supported", config.BitDepth)
	}

	var err error
	if device == nil {
		c.stream, err = portaudio.OpenDefaultStream(int(config.Channels), 0, float64(config.SampleRate), frames, buf)
	} else {
		var in *portaudio.DeviceInfo
		in, err = p.lookup(device.ID)
		if err != nil {
			return nil, err
		}
		params := portaudio.HighLatencyParameters(in, nil)
		params.Input.Channels = int(config.Channels)
		params.SampleRate = float64(config.SampleRate)
		params.FramesPerBuffer = frames
		c.stream, err = portaudio.OpenStream(params, buf)
	}
	if err != nil {
		return nil, fmt.Errorf("portaudio: opening stream failed: %w", err)
	}
	return c, nil
}

func (p *portaudioContext) lookup(id string) (*portaudio.DeviceInfo, error) {
	inputs, err := p.inputs()
	if err != nil {
		return nil, err
	}
	for _, d := range inputs {
		if fmt.Sprintf("%s/%s", d.HostApi.Name, d.Name) == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: no input device %q", id)
}

func (p *portaudioContext) Close() {
	portaudio.Terminate()
}

// portaudioCapture drives a blocking PortAudio stream from its own goroutine
// and hands each filled buffer to the callback.
type portaudioCapture struct {
	info     *DeviceInfo
	config   CaptureConfig
	stream   *portaudio.Stream
	buf16    []int16
	buf32    []int32
	out      []byte
	callback atomic.Pointer[DataCallback]

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
	err  error
}

// Done is closed when the read loop exits.
func (c *portaudioCapture) Done() <-chan struct{} { return c.done }

// Err is the read error that ended the loop, if any.
func (c *portaudioCapture) Err() error { return c.err }

func (c *portaudioCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: starting stream failed: %w", err)
	}
	c.stop = make(chan struct{})
	go c.run()
	return nil
}

func (c *portaudioCapture) run() {
	defer close(c.done)
	samples := make([]int32, 0, int(c.config.PeriodSize)*int(c.config.Channels))
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		if err := c.stream.Read(); err != nil {
			// Input overflow is reported as an error but the buffer is still valid.
			if err != portaudio.InputOverflowed {
				c.err = fmt.Errorf("portaudio: read: %w", err)
				return
			}
		}
		samples = samples[:0]
		if c.buf16 != nil {
			for _, s := range c.buf16 {
				samples = append(samples, int32(s))
			}
		} else {
			samples = append(samples, c.buf32...)
		}
		c.out = EncodeLE(c.out, samples, int(c.config.BitDepth)/8)
		if cb := c.callback.Load(); cb != nil {
			(*cb)(c.out, c.config.PeriodSize)
		}
	}
}

func (c *portaudioCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	select {
	case <-c.stop:
		return
	default:
		close(c.stop)
	}
	<-c.done
	c.stream.Stop()
}

func (c *portaudioCapture) Close() {
	c.Stop()
	c.stream.Close()
}

func (c *portaudioCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *portaudioCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *portaudioCapture) DeviceName() string {
	if c.info != nil {
		return c.info.Name
	}
	return "portaudio default"
}
