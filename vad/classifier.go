// Package vad decides, one fixed-size window at a time, whether captured
// audio carries voice and when an utterance starts and stops.
package vad

import (
	"errors"
	"fmt"

	"vadcap/audio"
)

// Thresholds tune the classifier and the hysteresis of the state machine.
type Thresholds struct {
	// SilenceAmplitude bounds a silent sample in 16-bit units:
	// -SilenceAmplitude < s < SilenceAmplitude.
	SilenceAmplitude int `yaml:"silence_amplitude"`
	// QuietRun is the silent-run length a window must exceed to be quiet.
	QuietRun int `yaml:"quiet_run"`
	// OnsetWindows consecutive active windows open a segment.
	OnsetWindows int `yaml:"onset_windows"`
	// OffsetWindows is the number of consecutive quiet windows a segment
	// tolerates; one more closes it.
	OffsetWindows int `yaml:"offset_windows"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		SilenceAmplitude: 650,
		QuietRun:         256,
		OnsetWindows:     4,
		OffsetWindows:    16,
	}
}

func (t Thresholds) Validate() error {
	var errs []error
	if t.SilenceAmplitude <= 0 || t.SilenceAmplitude > 32768 {
		errs = append(errs, fmt.Errorf("silence_amplitude %d out of range (1..32768)", t.SilenceAmplitude))
	}
	if t.QuietRun < 0 {
		errs = append(errs, fmt.Errorf("quiet_run %d is negative", t.QuietRun))
	}
	if t.OnsetWindows < 1 {
		errs = append(errs, fmt.Errorf("onset_windows %d must be at least 1", t.OnsetWindows))
	}
	if t.OffsetWindows < 0 {
		errs = append(errs, fmt.Errorf("offset_windows %d is negative", t.OffsetWindows))
	}
	return errors.Join(errs...)
}

// Verdict is the classification of one window.
type Verdict struct {
	// SilentRun is the longest run of consecutive silent samples.
	SilentRun int
	// Peak is the largest absolute sample value.
	Peak  int32
	Quiet bool
}

// Classifier labels windows quiet or active by silent-sample runs.
type Classifier struct {
	amplitude int32
	quietRun  int
	width     int
	samples   []int32
}

// NewClassifier builds a classifier for samples of the given bit depth. The
// amplitude threshold is scaled from 16-bit units to that depth.
func NewClassifier(t Thresholds, bitDepth int) *Classifier {
	amp := int64(t.SilenceAmplitude)
	if bitDepth > 16 {
		amp <<= bitDepth - 16
	}
	return &Classifier{
		amplitude: int32(min(amp, 1<<31-1)),
		quietRun:  t.QuietRun,
		width:     bitDepth / 8,
	}
}

// Classify examines one window of interleaved samples. Channels are not
// distinguished.
func (c *Classifier) Classify(w Window) Verdict {
	c.samples = audio.DecodeLE(c.samples, w, c.width)

	var v Verdict
	run := 0
	for _, s := range c.samples {
		mag := s
		if mag < 0 {
			mag = -mag
			if mag < 0 { // -2^31
				mag = 1<<31 - 1
			}
		}
		v.Peak = max(v.Peak, mag)
		if mag < c.amplitude {
			run++
			v.SilentRun = max(v.SilentRun, run)
		} else {
			run = 0
		}
	}
	v.Quiet = v.SilentRun > c.quietRun
	return v
}

// Window is a non-owning view of consecutive interleaved frames inside a
// capture buffer.
type Window []byte

// Windows splits buf into consecutive windows of size bytes and calls fn
// for each. A short tail becomes a final smaller window.
func Windows(buf []byte, size int, fn func(Window) error) error {
	for off := 0; off < len(buf); off += size {
		if err := fn(Window(buf[off:min(off+size, len(buf))])); err != nil {
			return err
		}
	}
	return nil
}
