package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vadcap/wav"
)

func TestInspectFinalizedFile(t *testing.T) {
	path, _ := writeInput(t, t.TempDir(), genTone(8000))
	r, err := inspectFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if r.Frames != 8000 || !r.Consistent || r.Trailing != 0 {
		t.Errorf("report = %+v", r)
	}
	if r.Duration != 500*time.Millisecond {
		t.Errorf("duration = %v, want 500ms", r.Duration)
	}

	var out bytes.Buffer
	if code := runInspect([]string{path}, &out); code != 0 {
		t.Errorf("exit = %d, output %q", code, out.String())
	}
	if !strings.Contains(out.String(), "8000 frames") || !strings.Contains(out.String(), "[ok]") {
		t.Errorf("output = %q", out.String())
	}
}

func TestInspectUnfinalizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "open.wav")
	var buf bytes.Buffer
	wav.NewHeader(wav.Format{SampleRate: testRate, Channels: 1, BitDepth: 16}, 0).WriteTo(&buf)
	buf.Write(genTone(1000))
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if code := runInspect([]string{path}, &out); code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(out.String(), "not finalized, 2000 bytes") {
		t.Errorf("output = %q", out.String())
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, 100), 0644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if code := runInspect([]string{path, filepath.Join(t.TempDir(), "missing.wav")}, &out); code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if n := strings.Count(out.String(), "\n"); n != 2 {
		t.Errorf("want one line per file, got %q", out.String())
	}
}

func TestInspectLowByteRateFileIsOK(t *testing.T) {
	// 4.412 s at 16 kHz mono 16-bit, the length of a replayed session archive.
	path, _ := writeInput(t, t.TempDir(), genSilence(70592))
	var out bytes.Buffer
	if code := runInspect([]string{path}, &out); code != 0 {
		t.Fatalf("exit = %d, output %q", code, out.String())
	}
	if !strings.Contains(out.String(), "70592 frames, 4.412s [ok]") {
		t.Errorf("output = %q", out.String())
	}
}
