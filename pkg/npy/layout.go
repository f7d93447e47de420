package npy

import (
	"fmt"
	"math"
	"math/bits"
)

// ExcessPolicy decides what happens when an exactly framed source (an
// archive member or a whole file) holds more bytes than the header
// declares.
type ExcessPolicy uint8

const (
	// ExcessWarn logs the excess and returns the array.
	ExcessWarn ExcessPolicy = iota
	// ExcessIgnore returns the array silently.
	ExcessIgnore
	// ExcessError fails the read with ErrTrailingData.
	ExcessError
)

func (p ExcessPolicy) String() string {
	switch p {
	case ExcessWarn:
		return "warn"
	case ExcessIgnore:
		return "ignore"
	case ExcessError:
		return "error"
	default:
		return fmt.Sprintf("ExcessPolicy(%d)", uint8(p))
	}
}

// ParseExcessPolicy maps warn, ignore or error to an ExcessPolicy.
func ParseExcessPolicy(s string) (ExcessPolicy, error) {
	switch s {
	case "", "warn":
		return ExcessWarn, nil
	case "ignore":
		return ExcessIgnore, nil
	case "error":
		return ExcessError, nil
	}
	return 0, fmt.Errorf("npy: unknown excess policy %q", s)
}

// NumElements returns the product of shape. A scalar shape holds one
// element.
func NumElements(shape []int) (int, error) {
	return DataLen(shape, 1)
}

// DataLen returns product(shape) * width, failing with ErrSizeOverflow when
// the result does not fit in an int.
func DataLen(shape []int, width int) (int, error) {
	if width < 0 {
		return 0, fmt.Errorf("%w: negative width %d", ErrInvalidArray, width)
	}
	n := uint64(width)
	overflow := false
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension %d", ErrMalformedHeader, d)
		}
		if d == 0 {
			return 0, nil
		}
		hi, lo := bits.Mul64(n, uint64(d))
		if hi != 0 || lo > math.MaxInt {
			// Keep scanning: a later zero dimension makes the array empty.
			overflow = true
			continue
		}
		n = lo
	}
	if overflow {
		return 0, fmt.Errorf("%w: shape %v with %d-byte elements", ErrSizeOverflow, shape, width)
	}
	return int(n), nil
}

// DataLen returns the size in bytes of the data region h describes.
func (h Header) DataLen() (int, error) {
	return DataLen(h.Shape, h.Descr.Width)
}

// checkLayout compares the expected data length against the bytes left in
// the source. remaining < 0 means unknown, in which case only the read
// itself can detect truncation.
func checkLayout(expected int, remaining int64, framed bool, policy ExcessPolicy, log Logger) error {
	if remaining < 0 {
		return nil
	}
	if remaining < int64(expected) {
		return fmt.Errorf("%w: need %d data bytes, %d available", ErrUnexpectedEOF, expected, remaining)
	}
	if !framed || remaining == int64(expected) {
		return nil
	}
	excess := remaining - int64(expected)
	switch policy {
	case ExcessError:
		return fmt.Errorf("%w: %d bytes", ErrTrailingData, excess)
	case ExcessWarn:
		log.Warn("trailing bytes after array data", "expected", expected, "excess", excess)
	}
	return nil
}
