package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"vadcap/audio"
	"vadcap/capture"
	"vadcap/config"
	"vadcap/encoder"
	"vadcap/log"
	"vadcap/metrics"
	"vadcap/segment"
	"vadcap/vad"
	"vadcap/wav"
)

const metricsShutdownTimeout = 2 * time.Second

// record runs one capture session and returns the process exit code.
func record(ctx context.Context, cfg *config.Config, opts *options, actx audio.Context, device *audio.DeviceInfo) int {
	// Metrics listener first so a busy port fails before any file is touched.
	var srv *http.Server
	var ln net.Listener
	if cfg.Metrics.Addr != "" {
		shutdownProvider, err := metrics.InitProvider(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: metrics: %v\n", err)
			return 1
		}
		defer shutdownProvider(context.Background())
		if ln, err = net.Listen("tcp", cfg.Metrics.Addr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: metrics: %v\n", err)
			return 1
		}
		srv = &http.Server{Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	}

	stream, err := audio.Open(actx, device, cfg.CaptureConfig())
	if err != nil {
		if ln != nil {
			ln.Close()
		}
		log.Errorf("capture device init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing capture device: %v\n", err)
		return 1
	}
	defer stream.Close()

	archive, err := wav.Create(opts.output, cfg.Format())
	if err != nil {
		if ln != nil {
			ln.Close()
		}
		log.Errorf("archive create error: %v", err)
		fmt.Fprintf(os.Stderr, "Unable to create file '%s': %v\n", opts.output, err)
		return 1
	}

	var status chan capture.Status
	var sink func(capture.Status)
	if opts.tui {
		status = make(chan capture.Status, 1)
		sink = func(s capture.Status) {
			select {
			case status <- s:
			default:
			}
		}
	}

	var retune chan vad.Thresholds
	if opts.watch {
		retune = make(chan vad.Thresholds, 1)
	}

	segDir := cfg.Segmentation.Dir
	if segDir != "" {
		if err := os.MkdirAll(segDir, 0755); err != nil {
			log.Warnf("segment dir: %v", err)
		}
	}
	loop, err := capture.New(stream, archive, segment.NewWriter(segDir, cfg.Format()), capture.Options{
		Format:              cfg.Format(),
		BufferFrames:        cfg.BufferFrames(),
		WindowFrames:        cfg.Segmentation.WindowFrames,
		Thresholds:          cfg.Segmentation.Thresholds,
		PreRollWindows:      cfg.Segmentation.PreRollWindows,
		TrimTrailingSilence: cfg.Segmentation.TrimTrailingSilence,
		Metrics:             metrics.Default(),
		Status:              sink,
		Retune:              retune,
	})
	if err != nil {
		archive.Close()
		if ln != nil {
			ln.Close()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log.SessionStart(log.Session{
		Device:      stream.DeviceName(),
		Output:      opts.output,
		SegmentDir:  segDir,
		SampleRate:  cfg.Capture.Rate,
		Channels:    cfg.Capture.Channels,
		BitDepth:    cfg.Capture.Bits,
		PeriodSize:  cfg.Capture.PeriodSize,
		PeriodCount: cfg.Capture.PeriodCount,
		WindowSize:  cfg.Segmentation.WindowFrames,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})

	var prog *tea.Program
	if opts.tui {
		prog = NewTUIProgram(stream.DeviceName(), cfg.Capture.Rate)
		g.Go(func() error {
			_, err := prog.Run()
			cancel()
			if err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			forwardStatus(prog, status, loopDone)
			return nil
		})
	} else {
		fmt.Printf("Capturing from %s, %d Hz, %d ch, %d bit. Press Ctrl+C to stop.\n",
			stream.DeviceName(), cfg.Capture.Rate, cfg.Capture.Channels, cfg.Capture.Bits)
	}

	if srv != nil {
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-loopDone:
			}
			sctx, scancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()
	if retune != nil {
		base := *cfg
		g.Go(func() error {
			err := config.Watch(watchCtx, opts.configPath, base, func(c *config.Config) {
				// Only the newest thresholds matter.
				select {
				case <-retune:
				default:
				}
				retune <- c.Segmentation.Thresholds
			})
			if err != nil {
				log.Warnf("config watch: %v", err)
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			return nil
		})
	}

	var summary capture.Summary
	var runErr error
	g.Go(func() error {
		defer close(loopDone)
		summary, runErr = loop.Run(gctx)
		stopWatch()
		if prog != nil {
			prog.Quit()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Warnf("session: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	fmt.Printf("Captured %d frames\n", summary.ArchiveFrames)
	fmt.Printf("%d utterances written", len(summary.Segments))
	if summary.Aborted > 0 {
		fmt.Printf(", %d discarded after write errors", summary.Aborted)
	}
	fmt.Println()
	if summary.ReadErr != nil {
		fmt.Fprintf(os.Stderr, "Capture stopped: %v\n", summary.ReadErr)
	}
	if n := stream.Overruns(); n > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d device periods dropped\n", n)
	}

	if cfg.Export.FLAC && len(summary.Segments) > 0 {
		if err := exportFLAC(summary.Segments); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: flac export: %v\n", err)
		}
	}

	if runErr != nil {
		log.Errorf("session failed: %v", runErr)
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}
	return 0
}

// exportFLAC writes <N>.flac next to every segment. The first failure is
// returned; the other exports still run.
func exportFLAC(segments []segment.Info) error {
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, s := range segments {
		g.Go(func() error {
			dst, frames, err := encoder.ExportFLAC(s.Path)
			if err != nil {
				log.Warnf("flac export %s: %v", s.Path, err)
				return fmt.Errorf("%s: %w", s.Path, err)
			}
			log.Debugf("flac export %s: %d frames", dst, frames)
			return nil
		})
	}
	return g.Wait()
}
