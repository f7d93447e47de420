// Package npy implements the NumPy .npy single-array container.
//
// A container is a fixed preamble (magic, version, header length), a
// Python-literal header describing the element type, shape and element
// order, and the flattened element data. The preamble plus header is always
// padded to a multiple of 64 bytes.
//
// The codec never interprets element values; it moves bytes between the
// file and an Array, byte-swapping when the file's byte order differs from
// the running machine's.
package npy

// Container constants must never change; they are fixed by the external
// format.
const (
	// Magic is the six-byte token at the start of every container.
	Magic = "\x93NUMPY"

	// HeaderAlign is the unit the preamble plus header is padded to.
	HeaderAlign = 64

	// DefaultMaxHeaderSize caps the header length accepted by readers
	// before any buffer is allocated for it.
	DefaultMaxHeaderSize = 1 << 20

	// DefaultChunkSize is the scratch buffer size used when byte-swapping
	// element data on write.
	DefaultChunkSize = 64 << 10

	versionLen = 2
)
