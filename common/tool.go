package common

import (
	"encoding/binary"
	"fmt"
)

// Uint64ToBytes encodes a uint64 big-endian, the encoding of every height key and value.
func Uint64ToBytes(val uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, val)
	return buf
}

func Uint32ToBytes(val uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, val)
	return buf
}

// BytesToUint64 decodes the first 8 bytes big-endian. Longer values are accepted
// because some scalars carry a trailer (the backup pointer holds height ++ index).
func BytesToUint64(data []byte) (uint64, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("BytesToUint64: need 8 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint64(data[:8]), nil
}

func BytesToUint32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("BytesToUint32: need 4 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint32(data[:4]), nil
}

// IsZeroBytes reports whether b has exactly n bytes, all zero.
func IsZeroBytes(b []byte, n int) bool {
	if len(b) != n {
		return false
	}
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// CopyBytes returns a copy of b, or nil for nil input.
func CopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
