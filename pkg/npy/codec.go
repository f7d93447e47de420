package npy

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/samcharles93/npyz/internal/logger"
)

type writeConfig struct {
	order      ByteOrder
	minVersion Version
	chunk      int
}

// WriteOption configures Write and NewStreamWriter.
type WriteOption func(*writeConfig)

// WithByteOrder selects the byte order of the written elements. The
// default is the machine's order.
func WithByteOrder(o ByteOrder) WriteOption {
	return func(c *writeConfig) { c.order = o }
}

// WithMinVersion forces at least version v. The writer still escalates
// further when the header needs it.
func WithMinVersion(v Version) WriteOption {
	return func(c *writeConfig) { c.minVersion = v }
}

// WithChunkSize sets the scratch buffer size used for byte-swapping.
func WithChunkSize(n int) WriteOption {
	return func(c *writeConfig) { c.chunk = n }
}

func newWriteConfig(opts []WriteOption) writeConfig {
	cfg := writeConfig{order: OrderNative, chunk: DefaultChunkSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.order == OrderNative || cfg.order == OrderNotApplicable || cfg.order == 0 {
		cfg.order = NativeOrder()
	}
	if cfg.chunk <= 0 {
		cfg.chunk = DefaultChunkSize
	}
	return cfg
}

// headerFor builds the header describing a when written in byte order o.
func headerFor(dt DType, shape []int, order Order, o ByteOrder) (Header, error) {
	if !dt.Valid() {
		return Header{}, fmt.Errorf("%w: %s", ErrInvalidArray, dt)
	}
	if o != OrderLittle && o != OrderBig {
		return Header{}, fmt.Errorf("%w: byte order %s", ErrInvalidArray, o)
	}
	return Header{
		Descr:        DescriptorFor(dt).WithOrder(o),
		FortranOrder: order == ColumnMajor,
		Shape:        append([]int(nil), shape...),
	}, nil
}

// Write encodes a as a container. Elements are written in a's own element
// order, and fortran_order records that order.
func Write(w io.Writer, a Array, opts ...WriteOption) error {
	cfg := newWriteConfig(opts)
	h, err := headerFor(a.DType(), a.Shape(), a.Order(), cfg.order)
	if err != nil {
		return err
	}
	n, err := h.DataLen()
	if err != nil {
		return err
	}
	data := a.Bytes()
	if len(data) != n {
		return fmt.Errorf("%w: %d bytes for shape %v of %s (want %d)", ErrInvalidArray, len(data), h.Shape, a.DType(), n)
	}

	pre, _, err := h.Encode(cfg.minVersion)
	if err != nil {
		return err
	}
	if _, err := w.Write(pre); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if !h.Descr.NeedsSwap() {
		_, err := w.Write(data)
		return err
	}
	return writeSwapped(w, data, h.Descr, cfg.chunk)
}

// Logger receives warnings about tolerated inconsistencies. *slog.Logger
// satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
}

type readConfig struct {
	maxHeaderSize int
	policy        ExcessPolicy
	log           Logger
	remaining     int64
	framed        bool
}

// ReadOption configures Read and ReadAs.
type ReadOption func(*readConfig)

// WithMaxHeaderSize caps the accepted header length.
func WithMaxHeaderSize(n int) ReadOption {
	return func(c *readConfig) { c.maxHeaderSize = n }
}

// WithExcessPolicy selects how excess bytes in a framed source are
// treated.
func WithExcessPolicy(p ExcessPolicy) ReadOption {
	return func(c *readConfig) { c.policy = p }
}

// WithLogger sets the logger used for excess-byte warnings.
func WithLogger(l Logger) ReadOption {
	return func(c *readConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithFraming declares that the source holds exactly size bytes, preamble
// included, and nothing else. Truncation is then detected before the data
// buffer is allocated and excess bytes are subject to the ExcessPolicy.
func WithFraming(size int64) ReadOption {
	return func(c *readConfig) {
		c.remaining = size
		c.framed = size >= 0
	}
}

func newReadConfig(opts []ReadOption) readConfig {
	cfg := readConfig{
		maxHeaderSize: DefaultMaxHeaderSize,
		log:           logger.Default(),
		remaining:     -1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Read decodes one container from r. The returned array owns a freshly
// allocated buffer in native byte order and reports the element order
// recorded in the file.
//
// Without WithFraming, Read consumes exactly one container, so several
// containers written back to back can be read in sequence.
func Read(r io.Reader, opts ...ReadOption) (*Dense, error) {
	return read(r, DTypeInvalid, newReadConfig(opts))
}

// ReadAs is Read with the element type fixed to T. A file whose descriptor
// maps to a different kind or width fails with ErrTypeMismatch.
func ReadAs[T Element](r io.Reader, opts ...ReadOption) (*Dense, error) {
	return read(r, DTypeOf[T](), newReadConfig(opts))
}

func read(r io.Reader, want DType, cfg readConfig) (*Dense, error) {
	// source is what r itself reports holding. A frame size comes from the
	// caller and may be wrong, so only source bounds an up-front allocation.
	source := sourceRemaining(r)
	remaining := source
	if cfg.framed {
		remaining = cfg.remaining
		if source >= 0 {
			remaining = min(remaining, source)
		}
	}

	h, _, n, err := ReadHeader(r, cfg.maxHeaderSize)
	if err != nil {
		return nil, err
	}
	dt, err := h.Descr.DType()
	if err != nil {
		return nil, err
	}
	if want != DTypeInvalid && dt != want {
		return nil, fmt.Errorf("%w: file holds %s (%s), not %s", ErrTypeMismatch, dt, h.Descr, want)
	}
	expected, err := h.DataLen()
	if err != nil {
		return nil, err
	}
	if remaining >= 0 {
		remaining = max(remaining-int64(n), 0)
	}
	if err := checkLayout(expected, remaining, cfg.framed, cfg.policy, cfg.log); err != nil {
		return nil, err
	}

	data, err := readData(r, expected, source >= 0)
	if err != nil {
		return nil, err
	}
	if cfg.framed {
		// Drain the frame so checksumming readers see EOF.
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
	}

	if h.Descr.NeedsSwap() {
		swapBytes(data, h.Descr.swapUnit())
	}
	if dt == DTypeBool {
		for i, b := range data {
			if b > 1 {
				return nil, fmt.Errorf("%w: byte %#02x at element %d is not a bool", ErrInvalidData, b, i)
			}
		}
	}

	order := RowMajor
	if h.FortranOrder {
		order = ColumnMajor
	}
	return &Dense{dtype: dt, shape: h.Shape, order: order, data: data}, nil
}

// readData reads the n-byte data region. Unless the source's length is
// known, the buffer grows with the bytes actually delivered, so a header
// claiming more than the source holds fails with ErrUnexpectedEOF rather
// than allocating the claimed size.
func readData(r io.Reader, n int, known bool) ([]byte, error) {
	if known || n <= DefaultChunkSize {
		data := make([]byte, n)
		if err := readFull(r, data, "array data"); err != nil {
			return nil, err
		}
		return data, nil
	}
	data := make([]byte, 0, DefaultChunkSize)
	for len(data) < n {
		if len(data) == cap(data) {
			data = slices.Grow(data, min(len(data), n-len(data)))
		}
		m, err := r.Read(data[len(data):min(cap(data), n)])
		data = data[:len(data)+m]
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if len(data) == n {
				break
			}
			return nil, fmt.Errorf("%w: reading array data: %d of %d bytes", ErrUnexpectedEOF, len(data), n)
		}
		return nil, err
	}
	return data[:n:n], nil
}

// sourceRemaining reports how many bytes r has left, or -1 when that
// cannot be known without consuming it.
func sourceRemaining(r io.Reader) int64 {
	switch s := r.(type) {
	case interface{ Len() int }:
		return int64(s.Len())
	case io.Seeker:
		cur, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return -1
		}
		end, err := s.Seek(0, io.SeekEnd)
		if err != nil {
			return -1
		}
		if _, err := s.Seek(cur, io.SeekStart); err != nil {
			return -1
		}
		return end - cur
	}
	return -1
}

// IsFormatError reports whether err came from decoding bad container bytes
// rather than from the underlying reader.
func IsFormatError(err error) bool {
	for _, target := range []error{
		ErrBadMagic, ErrUnsupportedVersion, ErrHeaderTooLarge, ErrInvalidHeaderEncoding,
		ErrMalformedHeader, ErrUnsupportedDescriptor, ErrSizeOverflow, ErrUnexpectedEOF,
		ErrTypeMismatch, ErrTrailingData, ErrInvalidData,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
