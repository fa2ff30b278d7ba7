// Package varint implements the prefix-varint integer encoding used by the
// epoch oracle payload format, plus the ZigZag mapping for signed values.
//
// A prefix-varint stores its total length L in [1,9] in the first byte: L-1
// equals the number of trailing zero bits (capped at 8). The low L bits of
// the first byte are the length prefix; the value occupies the remaining
// 8-L bits of the first byte and the following L-1 bytes, little-endian.
// L=9 (first byte 0x00) stores the value entirely in the next 8 bytes.
// Values up to 7*L bits fit in an L-byte encoding, L <= 8.
package varint

import (
	"encoding/binary"
	"errors"
	mathbits "math/bits"
)

// MaxLen is the largest possible encoding length of a single value.
const MaxLen = 9

// ErrTruncated is returned when a decode would read past the end of the
// input. Decoders return (0, 0, ErrTruncated) without advancing.
var ErrTruncated = errors.New("truncated varint")

// DecodeU64 decodes one prefix-varint starting at b[offset]. It returns the
// value and the number of bytes consumed.
func DecodeU64(b []byte, offset int) (uint64, int, error) {
	if offset < 0 || offset >= len(b) {
		return 0, 0, ErrTruncated
	}
	first := b[offset]
	length := mathbits.TrailingZeros8(first) + 1 // TrailingZeros8(0) == 8
	if length > MaxLen {
		length = MaxLen
	}
	if offset+length > len(b) {
		return 0, 0, ErrTruncated
	}
	if length == MaxLen {
		return binary.LittleEndian.Uint64(b[offset+1 : offset+9]), MaxLen, nil
	}
	v := uint64(first) >> length
	for i, c := range b[offset+1 : offset+length] {
		v |= uint64(c) << (8 - length + 8*i)
	}
	return v, length, nil
}

// DecodeI64 decodes one prefix-varint and applies the ZigZag mapping.
func DecodeI64(b []byte, offset int) (int64, int, error) {
	u, n, err := DecodeU64(b, offset)
	if err != nil {
		return 0, 0, err
	}
	return ZigZagDecode(u), n, nil
}

// EncodeU64 appends the minimal prefix-varint encoding of v to dst and
// returns the extended slice.
func EncodeU64(dst []byte, v uint64) []byte {
	bitlen := mathbits.Len64(v)
	if bitlen == 0 {
		bitlen = 1
	}
	length := (bitlen + 6) / 7
	if length > 8 {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		dst = append(dst, 0x00)
		return append(dst, buf[:]...)
	}
	dst = append(dst, byte(1<<(length-1))|byte(v<<length))
	v >>= 8 - length
	for i := 1; i < length; i++ {
		dst = append(dst, byte(v))
		v >>= 8
	}
	return dst
}

// EncodeI64 appends the ZigZag prefix-varint encoding of v to dst.
func EncodeI64(dst []byte, v int64) []byte {
	return EncodeU64(dst, ZigZagEncode(v))
}

// ZigZagEncode maps a signed integer to an unsigned one so that small
// magnitudes of either sign map to small unsigned values.
func ZigZagEncode(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// ZigZagDecode is the inverse of ZigZagEncode.
func ZigZagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// GetString extracts length bytes starting at b[offset] as a string. The
// bytes are assumed to be UTF-8; no validation is performed.
func GetString(b []byte, offset int, length int) (string, error) {
	if offset < 0 || length < 0 || offset > len(b) || length > len(b)-offset {
		return "", ErrTruncated
	}
	return string(b[offset : offset+length]), nil
}
