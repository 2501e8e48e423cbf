package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"vadcap/config"
)

var errNoOutput = errors.New("missing output file")

type options struct {
	cfg    *config.Config
	output string

	configPath string
	watch      bool
	setup      bool
	doctor     bool
	tui        bool
	version    bool
	profile    string
}

const usageHead = `Usage: vadcap [flags] <out.wav> [flags]
       vadcap inspect <file.wav>...

Records the capture device into out.wav and writes every detected
utterance as <N>.wav in the segment directory.

`

// newFlagSet binds every flag to the current value of its config field, so
// a set built after a config file is loaded defaults to the file's values.
func newFlagSet(o *options, out io.Writer) *flag.FlagSet {
	c := o.cfg
	fs := flag.NewFlagSet("vadcap", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, usageHead)
		fs.PrintDefaults()
	}

	fs.IntVar(&c.Capture.Card, "D", c.Capture.Card, "capture card number")
	fs.IntVar(&c.Capture.Device, "d", c.Capture.Device, "capture device number")
	fs.IntVar(&c.Capture.Channels, "c", c.Capture.Channels, "channels")
	fs.IntVar(&c.Capture.Rate, "r", c.Capture.Rate, "sample rate in Hz")
	fs.IntVar(&c.Capture.Bits, "b", c.Capture.Bits, "bits per sample: 16, 24 or 32")
	fs.IntVar(&c.Capture.PeriodSize, "p", c.Capture.PeriodSize, "period size in frames")
	fs.IntVar(&c.Capture.PeriodCount, "n", c.Capture.PeriodCount, "periods per buffer")
	fs.StringVar(&c.Capture.DeviceName, "device", c.Capture.DeviceName, "use named capture device")
	fs.StringVar(&c.Capture.Replay, "replay", c.Capture.Replay, "read audio from a WAV file instead of a device")
	fs.BoolVar(&c.Capture.Realtime, "realtime", c.Capture.Realtime, "pace -replay at the file's sample rate")

	fs.StringVar(&c.Segmentation.Dir, "segdir", c.Segmentation.Dir, "directory for <N>.wav utterance files (default: current dir)")
	fs.IntVar(&c.Segmentation.WindowFrames, "window", c.Segmentation.WindowFrames, "analysis window in frames")
	fs.IntVar(&c.Segmentation.Thresholds.SilenceAmplitude, "amp", c.Segmentation.Thresholds.SilenceAmplitude, "silence amplitude in 16-bit units")
	fs.IntVar(&c.Segmentation.Thresholds.QuietRun, "quietrun", c.Segmentation.Thresholds.QuietRun, "silent samples in a row that make a window quiet")
	fs.IntVar(&c.Segmentation.Thresholds.OnsetWindows, "onset", c.Segmentation.Thresholds.OnsetWindows, "voiced windows that start an utterance")
	fs.IntVar(&c.Segmentation.Thresholds.OffsetWindows, "offset", c.Segmentation.Thresholds.OffsetWindows, "quiet windows that end an utterance")
	fs.IntVar(&c.Segmentation.PreRollWindows, "preroll", c.Segmentation.PreRollWindows, "idle windows kept before an onset")
	fs.BoolVar(&c.Segmentation.TrimTrailingSilence, "trim", c.Segmentation.TrimTrailingSilence, "cut trailing quiet windows from utterances")

	fs.BoolVar(&c.Export.FLAC, "flac", c.Export.FLAC, "also export every utterance as <N>.flac")
	fs.StringVar(&c.Log.Path, "logpath", c.Log.Path, "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&c.Log.Level, "loglevel", c.Log.Level, "log level: debug, info, warn, error")
	fs.StringVar(&c.Metrics.Addr, "metrics", c.Metrics.Addr, "serve Prometheus metrics on this address (e.g., :9464)")

	fs.StringVar(&o.configPath, "config", o.configPath, "YAML configuration file")
	fs.BoolVar(&o.watch, "watch", o.watch, "reload segmentation thresholds when the -config file changes")
	fs.BoolVar(&o.setup, "setup", o.setup, "select capture device interactively")
	fs.BoolVar(&o.doctor, "doctor", o.doctor, "check the capture device and suggest a silence amplitude")
	fs.BoolVar(&o.tui, "tui", o.tui, "show a live level meter")
	fs.BoolVar(&o.version, "version", o.version, "print version and exit")
	fs.StringVar(&o.profile, "profile", o.profile, "enable pprof profiling server (e.g., :6060 or localhost:6060)")
	return fs
}

// parseArgs accepts flags before and after the output path. Flags given on
// the command line win over a -config file.
func parseArgs(args []string, out io.Writer) (*options, error) {
	o := &options{cfg: config.Default()}
	pos, err := parseInterleaved(newFlagSet(o, out), args)
	if err != nil {
		return nil, err
	}
	if o.configPath != "" {
		if err := config.Load(o.configPath, o.cfg); err != nil {
			return nil, err
		}
		if pos, err = parseInterleaved(newFlagSet(o, out), args); err != nil {
			return nil, err
		}
	}

	if o.watch && o.configPath == "" {
		return nil, errors.New("-watch requires -config")
	}

	switch {
	case len(pos) > 1:
		return nil, fmt.Errorf("unexpected arguments %q", pos[1:])
	case len(pos) == 1:
		o.output = pos[0]
	case !o.doctor && !o.version:
		fmt.Fprint(out, usageHead)
		return nil, errNoOutput
	}
	return o, nil
}

func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return pos, nil
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
}
