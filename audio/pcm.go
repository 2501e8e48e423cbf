package audio

import "encoding/binary"

// DecodeLE decodes interleaved signed little-endian samples of the given byte
// width (2, 3 or 4) from src into dst, growing dst as needed. Trailing bytes
// that do not form a whole sample are ignored.
func DecodeLE(dst []int32, src []byte, width int) []int32 {
	n := len(src) / width
	if cap(dst) < n {
		dst = make([]int32, n)
	}
	dst = dst[:n]
	switch width {
	case 2:
		for i := range dst {
			dst[i] = int32(int16(binary.LittleEndian.Uint16(src[2*i:])))
		}
	case 3:
		for i := range dst {
			b := src[3*i : 3*i+3]
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			dst[i] = v << 8 >> 8
		}
	case 4:
		for i := range dst {
			dst[i] = int32(binary.LittleEndian.Uint32(src[4*i:]))
		}
	default:
		return dst[:0]
	}
	return dst
}

// EncodeLE is the inverse of DecodeLE. Values are truncated to width bytes.
func EncodeLE(dst []byte, samples []int32, width int) []byte {
	n := len(samples) * width
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	switch width {
	case 2:
		for i, s := range samples {
			binary.LittleEndian.PutUint16(dst[2*i:], uint16(int16(s)))
		}
	case 3:
		for i, s := range samples {
			dst[3*i] = byte(s)
			dst[3*i+1] = byte(s >> 8)
			dst[3*i+2] = byte(s >> 16)
		}
	case 4:
		for i, s := range samples {
			binary.LittleEndian.PutUint32(dst[4*i:], uint32(s))
		}
	default:
		return dst[:0]
	}
	return dst
}

// Pack32To24 narrows S32LE samples in src to packed S24LE in dst by keeping
// the upper three bytes of each sample (s >> 8).
func Pack32To24(dst, src []byte) []byte {
	n := len(src) / 4
	if cap(dst) < 3*n {
		dst = make([]byte, 3*n)
	}
	dst = dst[:3*n]
	for i := range n {
		copy(dst[3*i:3*i+3], src[4*i+1:4*i+4])
	}
	return dst
}
