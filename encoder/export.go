package encoder

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-audio/wav"

	vwav "vadcap/wav"
)

// ExportFLAC encodes the WAV file at src as FLAC next to it, replacing the
// .wav extension, and returns the output path and frame count.
func ExportFLAC(src string) (string, uint64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	d := wav.NewDecoder(in)
	if !d.IsValidFile() {
		return "", 0, fmt.Errorf("%s: not a PCM wav file", src)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return "", 0, fmt.Errorf("%s: decoding: %w", src, err)
	}
	format := vwav.Format{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}

	dst := strings.TrimSuffix(src, ".wav") + ".flac"
	out, err := os.Create(dst)
	if err != nil {
		return "", 0, err
	}
	enc, err := NewFlac(out, format)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return "", 0, err
	}

	samples := make([]int32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int32(v)
	}
	step := BlockSize * format.Channels
	for off := 0; off < len(samples); off += step {
		if err := enc.EncodeBlock(samples[off:min(off+step, len(samples))]); err != nil {
			enc.Close()
			out.Close()
			os.Remove(dst)
			return "", 0, err
		}
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return "", 0, fmt.Errorf("%s: %w", dst, err)
	}
	// The flac encoder closes writers that implement io.Closer.
	if err := out.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return "", 0, err
	}
	return dst, enc.TotalFrames(), nil
}
