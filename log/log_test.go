package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func readLog(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("VADCAP_LOG_PATH", "/tmp/vadcap-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/vadcap-env-log" {
		t.Errorf("got %q, want /tmp/vadcap-env-log", got)
	}
}

func TestResolveDirFlagBeatsEnv(t *testing.T) {
	t.Setenv("VADCAP_LOG_PATH", "/tmp/from-env")
	got, err := ResolveDir("/tmp/from-flag")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/from-flag" {
		t.Errorf("got %q", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("VADCAP_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "vadcap") {
		t.Errorf("default directory %q does not name the app", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(""); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"diagnostics_log.txt", "segments_log.txt"} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestInitRejectsBadLevel(t *testing.T) {
	setupLogDir(t)
	if err := Init("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSessionEvents(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init("debug"); err != nil {
		t.Fatal(err)
	}

	SessionStart(Session{Device: "mic", Output: "out.wav", SampleRate: 16000, Channels: 1, BitDepth: 16})
	SegmentOpen(0, "0.wav")
	SegmentClose(SegmentRecord{Index: 0, Path: "0.wav", Frames: 16000, DurationS: 1})
	SegmentAbort(1, errors.New("disk full"))
	DeviceOverrun(2, 5)
	SessionEnd(32000, 1, 1, "canceled")
	Close()

	diag := readLog(t, tmp, "diagnostics_log.txt")
	for _, want := range []string{"session_start", "segment_open", "segment_close", "segment_abort", "disk full", "device_overrun", "session_end", "rate=16000"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics log missing %q:\n%s", want, diag)
		}
	}

	segs := readLog(t, tmp, "segments_log.txt")
	fields := strings.Split(strings.TrimSpace(segs), "\t")
	if len(fields) != 5 || fields[2] != "0" || fields[3] != "0.wav" || fields[4] != "1.000" {
		t.Errorf("segments_log line = %q", segs)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init("info"); err != nil {
		t.Fatal(err)
	}
	SegmentOpen(3, "3.wav")
	Close()
	if diag := readLog(t, tmp, "diagnostics_log.txt"); strings.Contains(diag, "segment_open") {
		t.Errorf("debug event written at info level:\n%s", diag)
	}
}

func TestHelpersNoopBeforeInit(t *testing.T) {
	Close()
	Warnf("dropped %d", 1)
	SegmentClose(SegmentRecord{Index: 1})
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)
	if err := Init(""); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
