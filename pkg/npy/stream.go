package npy

import (
	"fmt"
	"io"
)

// StreamWriter writes a container whose elements arrive incrementally. The
// header is written by NewStreamWriter; the element count is enforced
// against the shape.
type StreamWriter struct {
	w       io.Writer
	header  Header
	dtype   DType
	total   int // data bytes the shape requires
	written int
	swap    bool
	pending []byte // partial element awaiting its remaining bytes
	scratch []byte
	closed  bool
}

// NewStreamWriter writes the header for an array of dt with the given shape
// and element order, and returns a writer for its elements.
func NewStreamWriter(w io.Writer, dt DType, shape []int, order Order, opts ...WriteOption) (*StreamWriter, error) {
	cfg := newWriteConfig(opts)
	h, err := headerFor(dt, shape, order, cfg.order)
	if err != nil {
		return nil, err
	}
	total, err := h.DataLen()
	if err != nil {
		return nil, err
	}
	pre, _, err := h.Encode(cfg.minVersion)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(pre); err != nil {
		return nil, err
	}

	s := &StreamWriter{w: w, header: h, dtype: dt, total: total, swap: h.Descr.NeedsSwap()}
	if s.swap {
		chunk := cfg.chunk - cfg.chunk%dt.Size()
		s.scratch = make([]byte, max(chunk, dt.Size()))
		s.pending = make([]byte, 0, dt.Size())
	}
	return s, nil
}

// Header returns the header that was written.
func (s *StreamWriter) Header() Header { return s.header }

// Count returns the number of complete elements written so far.
func (s *StreamWriter) Count() int { return s.written / s.dtype.Size() }

// Write appends raw element bytes in native byte order. Elements may be
// split across calls.
func (s *StreamWriter) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	if len(p) > s.total-s.written {
		return 0, fmt.Errorf("%w: %d of %d bytes", ErrTooManyElements, s.written+len(p), s.total)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !s.swap {
		n, err := s.w.Write(p)
		s.written += n
		return n, err
	}

	size := s.dtype.Size()
	unit := s.header.Descr.swapUnit()
	consumed := 0
	if len(s.pending) > 0 {
		k := min(size-len(s.pending), len(p))
		s.pending = append(s.pending, p[:k]...)
		consumed += k
		if len(s.pending) < size {
			s.written += consumed
			return consumed, nil
		}
		swapBytes(s.pending, unit)
		if _, err := s.w.Write(s.pending); err != nil {
			return 0, err
		}
		s.pending = s.pending[:0]
	}
	for rest := p[consumed:]; len(rest) >= size; rest = p[consumed:] {
		n := copy(s.scratch, rest[:len(rest)-len(rest)%size])
		swapBytes(s.scratch[:n], unit)
		if _, err := s.w.Write(s.scratch[:n]); err != nil {
			s.written += consumed
			return consumed, err
		}
		consumed += n
	}
	s.pending = append(s.pending, p[consumed:]...)
	s.written += len(p)
	return len(p), nil
}

// WriteValues appends typed elements. T must match the stream's element
// type.
func WriteValues[T Element](s *StreamWriter, values []T) error {
	if want := DTypeOf[T](); want != s.dtype {
		return fmt.Errorf("%w: stream holds %s, not %s", ErrTypeMismatch, s.dtype, want)
	}
	_, err := s.Write(sliceBytes(values))
	return err
}

// Close checks that every element was written. It does not close the
// underlying writer.
func (s *StreamWriter) Close() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	if s.written != s.total {
		return fmt.Errorf("%w: %d of %d bytes", ErrTooFewElements, s.written, s.total)
	}
	return nil
}
