package audio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDevice marks failures to open, configure or start a capture device.
var ErrDevice = errors.New("capture device error")

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

// CaptureConfig describes the PCM stream requested from a device.
// Samples are signed little-endian; 24-bit samples are packed in 3 bytes.
type CaptureConfig struct {
	SampleRate  uint32
	Channels    uint32
	BitDepth    uint32
	PeriodSize  uint32 // frames per period
	PeriodCount uint32
	Card        int
	Device      int
}

// BytesPerSample returns the width of one sample in bytes.
func (c CaptureConfig) BytesPerSample() int { return int(c.BitDepth) / 8 }

// BytesPerFrame returns the size of one interleaved frame.
func (c CaptureConfig) BytesPerFrame() int { return int(c.Channels) * c.BytesPerSample() }

// BufferFrames is the number of frames the capture loop reads per iteration.
func (c CaptureConfig) BufferFrames() int { return int(c.PeriodSize) * int(c.PeriodCount) }

func (c CaptureConfig) BufferBytes() int { return c.BufferFrames() * c.BytesPerFrame() }

// Address renders the card/device pair the way ALSA names hardware.
func (c CaptureConfig) Address() string { return fmt.Sprintf("hw:%d,%d", c.Card, c.Device) }

// SupportedBitDepth reports whether bits is one of the sample widths every
// backend can deliver.
func SupportedBitDepth(bits int) bool {
	switch bits {
	case 16, 24, 32:
		return true
	}
	return false
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}
