// Package encoder compresses finalized PCM recordings.
package encoder

import "errors"

// BlockSize is the number of frames per encoded block.
const BlockSize = 4096

var ErrUnsupported = errors.New("encoder: unsupported format")

// Encoder consumes interleaved PCM one block at a time.
type Encoder interface {
	EncodeBlock(samples []int32) error
	Close() error
	TotalFrames() uint64
}
