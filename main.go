package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"vadcap/audio"
	"vadcap/config"
	"vadcap/doctor"
	"vadcap/log"
	"vadcap/shutdown"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 && args[0] == "inspect" {
		return runInspect(args[1:], os.Stdout)
	}

	opts, err := parseArgs(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.version {
		fmt.Printf("vadcap %s\n", version)
		return 0
	}
	cfg := opts.cfg

	// Resolve log directory early
	logPath, err := log.ResolveDir(cfg.Log.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if opts.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", opts.profile)
			if err := http.ListenAndServe(opts.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	var actx audio.Context
	if cfg.Capture.Replay != "" {
		if actx, err = openReplay(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if actx == nil {
		if actx, err = audio.NewContext(); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
			return 1
		}
	}
	defer actx.Close()

	if err := log.Init(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if opts.setup && cfg.Capture.Replay == "" {
		dev, err := audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
		} else {
			cfg.Capture.DeviceName = dev.Name
		}
	}

	var device *audio.DeviceInfo
	if cfg.Capture.Replay == "" {
		if device, err = audio.ResolveDevice(actx, cfg.Capture.DeviceName, cfg.CaptureConfig()); err != nil {
			log.Errorf("device resolve error: %v", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	if opts.doctor {
		return doctor.Run(ctx, actx, device, cfg.CaptureConfig(), cfg.Segmentation.WindowFrames, cfg.Segmentation.Thresholds)
	}
	return record(ctx, cfg, opts, actx, device)
}

// openReplay opens the -replay file and adopts its format, which wins over
// -r, -c and -b.
func openReplay(cfg *config.Config) (audio.Context, error) {
	rc, err := audio.NewReplayContext(cfg.Capture.Replay, cfg.Capture.Realtime)
	if err != nil {
		return nil, err
	}
	f := rc.Format()
	cfg.Capture.Rate = int(f.SampleRate)
	cfg.Capture.Channels = int(f.Channels)
	cfg.Capture.Bits = int(f.BitDepth)
	return rc, nil
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	crashFile.Close()
}
