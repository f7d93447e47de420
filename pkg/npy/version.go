package npy

import (
	"fmt"
	"math"
)

// Version is the container format version. Only minor version 0 exists for
// each major version.
type Version uint8

const (
	Version1 Version = 1 // 2-byte header length, ASCII header
	Version2 Version = 2 // 4-byte header length, ASCII header
	Version3 Version = 3 // 4-byte header length, UTF-8 header
)

func (v Version) Valid() bool {
	return v >= Version1 && v <= Version3
}

func (v Version) String() string {
	return fmt.Sprintf("%d.0", uint8(v))
}

// lenFieldSize is the width of the header-length field.
func (v Version) lenFieldSize() int {
	if v == Version1 {
		return 2
	}
	return 4
}

// prefixLen is the number of bytes before the header text.
func (v Version) prefixLen() int {
	return len(Magic) + versionLen + v.lenFieldSize()
}

func (v Version) maxHeaderLen() uint64 {
	if v == Version1 {
		return math.MaxUint16
	}
	return math.MaxUint32
}

// paddedLen returns the total preamble length for a payload of n bytes:
// prefix, payload, space padding and the final newline, rounded up to
// HeaderAlign.
func (v Version) paddedLen(n int) int {
	total := v.prefixLen() + n + 1
	if rem := total % HeaderAlign; rem != 0 {
		total += HeaderAlign - rem
	}
	return total
}

// selectVersion picks the lowest version, not below minVersion, that can
// encode payload. Non-ASCII payloads need Version3.
func selectVersion(payload []byte, minVersion Version) (Version, error) {
	if len(payload) > math.MaxInt32-2*HeaderAlign {
		return 0, fmt.Errorf("%w: %d byte header", ErrHeaderTooLarge, len(payload))
	}
	v := max(minVersion, Version1)
	if !isASCII(payload) {
		v = max(v, Version3)
	}
	for ; v <= Version3; v++ {
		headerLen := v.paddedLen(len(payload)) - v.prefixLen()
		if uint64(headerLen) <= v.maxHeaderLen() {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %d byte header", ErrHeaderTooLarge, len(payload))
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
