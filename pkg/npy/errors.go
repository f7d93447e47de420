package npy

import "errors"

var (
	ErrBadMagic              = errors.New("npy: bad magic")
	ErrUnsupportedVersion    = errors.New("npy: unsupported format version")
	ErrHeaderTooLarge        = errors.New("npy: header too large")
	ErrInvalidHeaderEncoding = errors.New("npy: invalid header encoding")
	ErrMalformedHeader       = errors.New("npy: malformed header")
	ErrUnsupportedDescriptor = errors.New("npy: unsupported type descriptor")
	ErrSizeOverflow          = errors.New("npy: array size overflows")
	ErrUnexpectedEOF         = errors.New("npy: unexpected end of data")
	ErrTypeMismatch          = errors.New("npy: element type mismatch")

	// ErrTrailingData is returned for excess bytes after the data region of
	// an exactly framed source when ExcessError is selected.
	ErrTrailingData = errors.New("npy: trailing data after array")
	// ErrInvalidData is returned for element bytes that are not a valid
	// value of their type (a bool byte other than 0 or 1).
	ErrInvalidData = errors.New("npy: invalid element data")
	// ErrInvalidArray is returned when an Array's buffer disagrees with its
	// shape and element type.
	ErrInvalidArray = errors.New("npy: invalid array")

	ErrTooManyElements = errors.New("npy: more elements written than shape allows")
	ErrTooFewElements  = errors.New("npy: fewer elements written than shape requires")
	ErrStreamClosed    = errors.New("npy: stream writer closed")
)
