package encoder

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"vadcap/wav"
)

// FlacEncoder writes verbatim-subframe FLAC. When w is also an io.Seeker
// the stream info is rewritten with the final sample count on Close.
type FlacEncoder struct {
	enc         *flac.Encoder
	format      wav.Format
	channels    frame.Channels
	totalFrames uint64
}

func NewFlac(w io.Writer, f wav.Format) (*FlacEncoder, error) {
	var channels frame.Channels
	switch f.Channels {
	case 1:
		channels = frame.ChannelsMono
	case 2:
		channels = frame.ChannelsLR
	default:
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupported, f.Channels)
	}
	if f.BitDepth != 16 && f.BitDepth != 24 {
		return nil, fmt.Errorf("%w: %d bits", ErrUnsupported, f.BitDepth)
	}

	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(f.SampleRate),
		NChannels:     uint8(f.Channels),
		BitsPerSample: uint8(f.BitDepth),
	}
	enc, err := flac.NewEncoder(w, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	return &FlacEncoder{
		enc:      enc,
		format:   f,
		channels: channels,
	}, nil
}

// EncodeBlock writes one frame of up to BlockSize interleaved frames.
func (e *FlacEncoder) EncodeBlock(samples []int32) error {
	nch := e.format.Channels
	n := len(samples) / nch
	if n == 0 {
		return nil
	}
	if n > BlockSize {
		return fmt.Errorf("flac block of %d frames exceeds %d", n, BlockSize)
	}

	subframes := make([]*frame.Subframe, nch)
	for c := range nch {
		plane := make([]int32, n)
		for i := range n {
			plane[i] = samples[i*nch+c]
		}
		subframes[c] = &frame.Subframe{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   plane,
			NSamples:  n,
		}
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(n),
			SampleRate:    uint32(e.format.SampleRate),
			Channels:      e.channels,
			BitsPerSample: uint8(e.format.BitDepth),
		},
		Subframes: subframes,
	}
	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.totalFrames += uint64(n)
	return nil
}

func (e *FlacEncoder) Close() error {
	return e.enc.Close()
}

func (e *FlacEncoder) TotalFrames() uint64 {
	return e.totalFrames
}
