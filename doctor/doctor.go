// Package doctor checks that a capture device delivers usable audio and
// suggests a silence amplitude for the room.
package doctor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"vadcap/audio"
	"vadcap/vad"
)

// sampleDuration is how long each measurement listens.
const sampleDuration = 2 * time.Second

// Reader is the blocking audio source measured by the doctor.
type Reader interface {
	ReadBuffer(ctx context.Context, p []byte) (int, error)
}

// Level summarizes a measurement. Peak is in 16-bit units regardless of
// the capture bit depth.
type Level struct {
	Peak    int
	Windows int
	Quiet   int
	Frames  int
}

// QuietRatio is the fraction of windows the classifier labelled quiet.
func (l Level) QuietRatio() float64 {
	if l.Windows == 0 {
		return 0
	}
	return float64(l.Quiet) / float64(l.Windows)
}

// SuggestAmplitude proposes a silence amplitude at 30% of the speech peak,
// never below the measured room noise.
func SuggestAmplitude(room, speech Level) int {
	s := speech.Peak * 3 / 10
	return max(s, room.Peak+1, 1)
}

// Measure reads frames worth of audio from r and classifies it window by
// window.
func Measure(ctx context.Context, r Reader, cfg audio.CaptureConfig, windowFrames int, th vad.Thresholds, frames int) (Level, error) {
	c := vad.NewClassifier(th, int(cfg.BitDepth))
	buf := make([]byte, cfg.BufferBytes())
	windowBytes := windowFrames * cfg.BytesPerFrame()
	shift := int(cfg.BitDepth) - 16

	var lvl Level
	for lvl.Frames < frames {
		n, err := r.ReadBuffer(ctx, buf)
		vad.Windows(buf[:n], windowBytes, func(w vad.Window) error {
			if len(w) < windowBytes {
				return nil
			}
			v := c.Classify(w)
			lvl.Peak = max(lvl.Peak, int(v.Peak>>shift))
			lvl.Windows++
			if v.Quiet {
				lvl.Quiet++
			}
			return nil
		})
		lvl.Frames += n / cfg.BytesPerFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return lvl, err
		}
	}
	return lvl, nil
}

// Run executes the interactive checks and returns an exit code (0 = all
// pass, 1 = any fail).
func Run(ctx context.Context, actx audio.Context, device *audio.DeviceInfo, cfg audio.CaptureConfig, windowFrames int, th vad.Thresholds) int {
	fmt.Println("vadcap doctor - capture diagnostics")
	fmt.Println("===================================")

	fmt.Println()
	fmt.Println("[1/3] Open capture device")
	s, err := audio.Open(actx, device, cfg)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return 1
	}
	defer s.Close()
	fmt.Printf("  PASS: %s, %d Hz, %d ch, %d bit\n", s.DeviceName(), cfg.SampleRate, cfg.Channels, cfg.BitDepth)

	reader := bufio.NewReader(os.Stdin)
	frames := int(cfg.SampleRate) * int(sampleDuration/time.Second)

	fmt.Println()
	fmt.Println("[2/3] Room noise")
	fmt.Print("Press Enter and stay quiet for 2 seconds...")
	reader.ReadString('\n')
	room, err := Measure(ctx, s, cfg, windowFrames, th, frames)
	if err != nil {
		fmt.Printf("  FAIL: capture error: %v\n", err)
		return 1
	}
	if room.Frames == 0 {
		fmt.Println("  FAIL: no audio captured")
		return 1
	}
	fmt.Printf("  peak %d, %.0f%% of windows quiet\n", room.Peak, room.QuietRatio()*100)
	roomOK := room.QuietRatio() >= 0.9
	if roomOK {
		fmt.Println("  PASS: room reads as silence")
	} else {
		fmt.Printf("  WARN: room noise exceeds silence_amplitude %d\n", th.SilenceAmplitude)
	}

	fmt.Println()
	fmt.Println("[3/3] Speech level")
	fmt.Print("Press Enter and speak for 2 seconds...")
	reader.ReadString('\n')
	speech, err := Measure(ctx, s, cfg, windowFrames, th, frames)
	if err != nil {
		fmt.Printf("  FAIL: capture error: %v\n", err)
		return 1
	}
	fmt.Printf("  peak %d, %.0f%% of windows active\n", speech.Peak, (1-speech.QuietRatio())*100)

	suggested := SuggestAmplitude(room, speech)
	fmt.Println()
	fmt.Printf("Suggested silence_amplitude: %d (current %d)\n", suggested, th.SilenceAmplitude)

	if speech.Quiet == speech.Windows {
		fmt.Println("  FAIL: no voice detected with the current thresholds")
		return 1
	}
	fmt.Println("  PASS: voice detected")
	if !roomOK {
		return 1
	}
	return 0
}
