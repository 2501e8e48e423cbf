package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog     zerolog.Logger
	diagFile    *os.File
	segmentFile *os.File
	logMu       sync.Mutex
	logReady    bool
	pid         int
	dir         string
)

// Session describes the capture parameters logged at session start.
type Session struct {
	Device      string
	Output      string
	SegmentDir  string
	SampleRate  int
	Channels    int
	BitDepth    int
	PeriodSize  int
	PeriodCount int
	WindowSize  int
}

// SegmentRecord is a finalized utterance file.
type SegmentRecord struct {
	Index     int
	Path      string
	Frames    int64
	DurationS float64
	Trimmed   int64
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: VADCAP_LOG_PATH environment variable
	if envPath := os.Getenv("VADCAP_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// Init opens diagnostics_log.txt and segments_log.txt in the log directory.
// Level is a zerolog level name; empty means info.
func Init(level string) error {
	logMu.Lock()
	defer logMu.Unlock()

	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(level); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
	}

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	segPath := filepath.Join(dir, "segments_log.txt")
	segmentFile, err = os.OpenFile(segPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(lvl).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if segmentFile != nil {
		segmentFile.Close()
		segmentFile = nil
	}
	logReady = false
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(s Session) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("device", s.Device).
		Str("output", s.Output).
		Str("segment_dir", s.SegmentDir).
		Int("rate", s.SampleRate).
		Int("channels", s.Channels).
		Int("bits", s.BitDepth).
		Int("period_size", s.PeriodSize).
		Int("period_count", s.PeriodCount).
		Int("window_frames", s.WindowSize).
		Msg("session_start")
}

func SegmentOpen(index int, path string) {
	if !logReady {
		return
	}
	diagLog.Debug().
		Int("index", index).
		Str("path", path).
		Msg("segment_open")
}

// SegmentClose logs the segment and appends a tab-separated line to
// segments_log.txt.
func SegmentClose(r SegmentRecord) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("index", r.Index).
		Str("path", r.Path).
		Int64("frames", r.Frames).
		Float64("duration_s", r.DurationS).
		Int64("trimmed_bytes", r.Trimmed).
		Msg("segment_close")

	logMu.Lock()
	defer logMu.Unlock()
	if segmentFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%d\t%s\t%.3f\n",
		time.Now().Format("2006-01-02 15:04:05"), pid, r.Index, r.Path, r.DurationS)
	segmentFile.WriteString(line)
}

func SegmentAbort(index int, err error) {
	if !logReady {
		return
	}
	diagLog.Error().
		Int("index", index).
		Err(err).
		Msg("segment_abort")
}

func ThresholdsReload(amplitude, quietRun, onset, offset int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("silence_amplitude", amplitude).
		Int("quiet_run", quietRun).
		Int("onset_windows", onset).
		Int("offset_windows", offset).
		Msg("thresholds_reload")
}

func DeviceOverrun(dropped, total int64) {
	if !logReady {
		return
	}
	diagLog.Warn().
		Int64("dropped", dropped).
		Int64("total", total).
		Msg("device_overrun")
}

func SessionEnd(frames int64, segments, aborted int, reason string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int64("frames", frames).
		Int("segments", segments).
		Int("aborted", aborted).
		Str("reason", reason).
		Msg("session_end")
}
