package encoder

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mewkiz/flac"

	"vadcap/wav"
)

var mono16 = wav.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

func genTone(frames, channels int) []int32 {
	s := make([]int32, frames*channels)
	for i := range frames {
		v := int32(8000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		for c := range channels {
			s[i*channels+c] = v
		}
	}
	return s
}

func TestFlacEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewFlac(&buf, mono16)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	samples := genTone(10000, 1)
	var fed uint64
	for i := 0; i < len(samples); i += BlockSize {
		block := samples[i:min(i+BlockSize, len(samples))]
		if err := enc.EncodeBlock(block); err != nil {
			t.Fatalf("EncodeBlock at offset %d: %v", i, err)
		}
		fed += uint64(len(block))
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.TotalFrames() != fed {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), fed)
	}
	if buf.Len() < 4 || string(buf.Bytes()[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
}

func TestFlacEncoderEmpty(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewFlac(&buf, mono16)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if buf.Len() == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestFlacEncoderRejectsFormats(t *testing.T) {
	for _, f := range []wav.Format{
		{SampleRate: 16000, Channels: 3, BitDepth: 16},
		{SampleRate: 16000, Channels: 1, BitDepth: 32},
	} {
		if _, err := NewFlac(&bytes.Buffer{}, f); !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s: err = %v, want ErrUnsupported", f, err)
		}
	}
}

func TestExportFLACRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "0.wav")
	stereo := wav.Format{SampleRate: 16000, Channels: 2, BitDepth: 16}
	w, err := wav.Create(src, stereo)
	if err != nil {
		t.Fatal(err)
	}
	samples := genTone(5000, 2)
	pcm := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		pcm = append(pcm, byte(s), byte(s>>8))
	}
	w.Write(pcm)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	dst, frames, err := ExportFLAC(src)
	if err != nil {
		t.Fatal(err)
	}
	if dst != filepath.Join(dir, "0.flac") || frames != 5000 {
		t.Errorf("ExportFLAC = %s, %d", dst, frames)
	}

	stream, err := flac.ParseFile(dst)
	if err != nil {
		t.Fatalf("parse flac: %v", err)
	}
	defer stream.Close()
	if stream.Info.NChannels != 2 || stream.Info.SampleRate != 16000 || stream.Info.BitsPerSample != 16 {
		t.Errorf("stream info = %+v", stream.Info)
	}
	var got []int32
	for {
		f, err := stream.ParseNext()
		if err != nil {
			break
		}
		for i := range int(f.BlockSize) {
			got = append(got, f.Subframes[0].Samples[i], f.Subframes[1].Samples[i])
		}
	}
	if len(got) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestExportFLACMissing(t *testing.T) {
	if _, _, err := ExportFLAC(filepath.Join(t.TempDir(), "nope.wav")); !os.IsNotExist(err) {
		t.Errorf("err = %v", err)
	}
}
