// Package config holds the session configuration: documented defaults, an
// optional YAML file, and validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"vadcap/audio"
	"vadcap/vad"
	"vadcap/wav"
)

// ErrInvalid marks configuration that cannot start a session.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Capture      Capture      `yaml:"capture"`
	Segmentation Segmentation `yaml:"segmentation"`
	Export       Export       `yaml:"export"`
	Log          Log          `yaml:"log"`
	Metrics      Metrics      `yaml:"metrics"`
}

type Capture struct {
	Card        int    `yaml:"card"`
	Device      int    `yaml:"device"`
	DeviceName  string `yaml:"device_name"`
	Channels    int    `yaml:"channels"`
	Rate        int    `yaml:"rate"`
	Bits        int    `yaml:"bits"`
	PeriodSize  int    `yaml:"period_size"`
	PeriodCount int    `yaml:"period_count"`
	// Replay reads a WAV file instead of a device.
	Replay   string `yaml:"replay"`
	Realtime bool   `yaml:"realtime"`
}

type Segmentation struct {
	Dir                 string         `yaml:"dir"`
	WindowFrames        int            `yaml:"window_frames"`
	Thresholds          vad.Thresholds `yaml:",inline"`
	PreRollWindows      int            `yaml:"preroll_windows"`
	TrimTrailingSilence bool           `yaml:"trim_trailing_silence"`
}

type Export struct {
	FLAC bool `yaml:"flac"`
}

type Log struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

type Metrics struct {
	// Addr serves Prometheus /metrics when non-empty, e.g. ":9464".
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Capture: Capture{
			Channels:    1,
			Rate:        44100,
			Bits:        16,
			PeriodSize:  1024,
			PeriodCount: 4,
		},
		Segmentation: Segmentation{
			WindowFrames: 512,
			Thresholds:   vad.DefaultThresholds(),
		},
		Log: Log{Level: "info"},
	}
}

// Load decodes the YAML file at path over cfg. Keys absent from the file
// keep their current values. Unknown keys are an error.
func Load(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	if err := LoadFromReader(f, cfg); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

func LoadFromReader(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode yaml: %w", ErrInvalid, err)
	}
	return nil
}

// Validate reports every problem found, joined, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	var errs []error

	cp := c.Capture
	if !audio.SupportedBitDepth(cp.Bits) {
		errs = append(errs, fmt.Errorf("%d bits is not supported", cp.Bits))
	}
	if cp.Channels < 1 {
		errs = append(errs, fmt.Errorf("capture.channels %d must be at least 1", cp.Channels))
	}
	if cp.Rate <= 0 {
		errs = append(errs, fmt.Errorf("capture.rate %d must be positive", cp.Rate))
	}
	if cp.PeriodSize <= 0 || cp.PeriodCount <= 0 {
		errs = append(errs, fmt.Errorf("capture.period_size %d and period_count %d must be positive", cp.PeriodSize, cp.PeriodCount))
	}
	if cp.Card < 0 || cp.Device < 0 {
		errs = append(errs, fmt.Errorf("capture card %d / device %d must not be negative", cp.Card, cp.Device))
	}

	sg := c.Segmentation
	buffer := cp.PeriodSize * cp.PeriodCount
	switch {
	case sg.WindowFrames <= 0:
		errs = append(errs, fmt.Errorf("segmentation.window_frames %d must be positive", sg.WindowFrames))
	case buffer > 0 && buffer%sg.WindowFrames != 0:
		errs = append(errs, fmt.Errorf("segmentation.window_frames %d does not divide the %d-frame buffer", sg.WindowFrames, buffer))
	case cp.Channels > 0 && sg.WindowFrames*cp.Channels <= sg.Thresholds.QuietRun:
		errs = append(errs, fmt.Errorf("segmentation.window_frames %d holds too few samples to exceed quiet_run %d", sg.WindowFrames, sg.Thresholds.QuietRun))
	}
	if err := sg.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("segmentation: %w", err))
	}
	if sg.PreRollWindows < 0 {
		errs = append(errs, fmt.Errorf("segmentation.preroll_windows %d is negative", sg.PreRollWindows))
	}

	if c.Log.Level != "" {
		if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", c.Log.Level))
		}
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("metrics.addr %q: %w", c.Metrics.Addr, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// CaptureConfig is the device request for this configuration.
func (c *Config) CaptureConfig() audio.CaptureConfig {
	return audio.CaptureConfig{
		SampleRate:  uint32(c.Capture.Rate),
		Channels:    uint32(c.Capture.Channels),
		BitDepth:    uint32(c.Capture.Bits),
		PeriodSize:  uint32(c.Capture.PeriodSize),
		PeriodCount: uint32(c.Capture.PeriodCount),
		Card:        c.Capture.Card,
		Device:      c.Capture.Device,
	}
}

// Format is the PCM layout of the archive and segment files.
func (c *Config) Format() wav.Format {
	return wav.Format{
		SampleRate: c.Capture.Rate,
		Channels:   c.Capture.Channels,
		BitDepth:   c.Capture.Bits,
	}
}

// BufferFrames is the number of frames read per loop iteration.
func (c *Config) BufferFrames() int {
	return c.Capture.PeriodSize * c.Capture.PeriodCount
}
