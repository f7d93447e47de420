package npz

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/samcharles93/npyz/pkg/npy"
)

// Writer appends arrays to an archive. A Writer owns its destination: only
// one member can be written at a time, and Create refuses a second Writer
// for a path that already has one.
type Writer struct {
	mu     sync.Mutex
	zw     *zip.Writer
	cfg    config
	names  []string
	seen   map[string]struct{}
	open   *ArrayWriter
	closed bool

	// finish releases the destination, flushing it first when asked. Nil
	// for NewWriter.
	finish func(flush bool) error
}

// NewWriter returns a Writer producing an archive on w. The caller keeps
// ownership of w; Close does not close it.
func NewWriter(w io.Writer, opts ...Option) (*Writer, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	zw := zip.NewWriter(w)
	level := cfg.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return &Writer{zw: zw, cfg: cfg, seen: make(map[string]struct{})}, nil
}

// Create creates or truncates the archive at path and holds an exclusive
// lock on it until Close.
func Create(path string, opts ...Option) (*Writer, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := acquire(abs); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(abs, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		release(abs)
		return nil, err
	}
	fail := func(err error) (*Writer, error) {
		_ = f.Close()
		release(abs)
		return nil, err
	}
	if err := lockFile(f); err != nil {
		return fail(err)
	}
	// Truncate only once the lock is held so another writer's archive is
	// never clobbered.
	if err := f.Truncate(0); err != nil {
		return fail(err)
	}

	bw := bufio.NewWriterSize(f, npy.DefaultChunkSize)
	w, err := NewWriter(bw, opts...)
	if err != nil {
		return fail(err)
	}
	w.finish = func(flush bool) error {
		defer release(abs)
		var err error
		if flush {
			if err = bw.Flush(); err == nil {
				err = f.Sync()
			}
		}
		return errors.Join(err, unlockFile(f), f.Close())
	}
	return w, nil
}

// begin validates name and reserves it. Caller holds w.mu.
func (w *Writer) begin(name string) error {
	switch {
	case w.closed:
		return ErrWriterClosed
	case w.open != nil:
		return fmt.Errorf("%w: %q", ErrEntryOpen, w.open.name)
	case name == "":
		return ErrInvalidName
	}
	if _, dup := w.seen[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, name)
	}
	w.seen[name] = struct{}{}
	return nil
}

func (w *Writer) create(name string, compressed bool) (io.Writer, error) {
	hdr := &zip.FileHeader{Name: name, Method: zip.Store, Modified: time.Now()}
	if compressed {
		hdr.Method = zip.Deflate
	}
	hdr.SetMode(0o644)
	return w.zw.CreateHeader(hdr)
}

// WriteArray writes a as a new member. Compressed members are deflated,
// others are stored.
func (w *Writer) WriteArray(name string, a npy.Array, compressed bool, opts ...npy.WriteOption) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.begin(name); err != nil {
		return err
	}
	fw, err := w.create(name, compressed)
	if err != nil {
		return err
	}
	if err := npy.Write(fw, a, opts...); err != nil {
		return fmt.Errorf("npz: writing %q: %w", name, err)
	}
	w.names = append(w.names, name)
	w.cfg.log.Debug("wrote array", "name", name, "dtype", a.DType(), "shape", a.Shape(), "compressed", compressed)
	return nil
}

// BeginArray starts a member whose elements are streamed through the
// returned ArrayWriter. No other member can be written until it is closed.
func (w *Writer) BeginArray(name string, dt npy.DType, shape []int, order npy.Order, compressed bool, opts ...npy.WriteOption) (*ArrayWriter, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.begin(name); err != nil {
		return nil, err
	}
	fw, err := w.create(name, compressed)
	if err != nil {
		return nil, err
	}
	s, err := npy.NewStreamWriter(fw, dt, shape, order, opts...)
	if err != nil {
		return nil, fmt.Errorf("npz: writing %q: %w", name, err)
	}
	w.open = &ArrayWriter{StreamWriter: s, w: w, name: name, compressed: compressed}
	return w.open, nil
}

// Names returns the members written so far, in order.
func (w *Writer) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.names...)
}

// Close writes the central directory. It fails with ErrEntryOpen while a
// streamed member is still open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if w.open != nil {
		return fmt.Errorf("%w: %q", ErrEntryOpen, w.open.name)
	}
	w.closed = true
	err := w.zw.Close()
	if w.finish != nil {
		return errors.Join(err, w.finish(err == nil))
	}
	return err
}

// Abort releases the destination without finishing the archive. The
// partially written file is left in place.
func (w *Writer) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.open = nil
	if w.finish != nil {
		return w.finish(false)
	}
	return nil
}

// ArrayWriter streams the elements of one member. Elements are appended
// with Write or npy.WriteValues on the embedded StreamWriter.
type ArrayWriter struct {
	*npy.StreamWriter
	w          *Writer
	name       string
	compressed bool
}

// Name returns the member name.
func (aw *ArrayWriter) Name() string { return aw.name }

// Close finishes the member. It fails with npy.ErrTooFewElements when the
// shape was not filled; the member name stays reserved either way.
func (aw *ArrayWriter) Close() error {
	aw.w.mu.Lock()
	defer aw.w.mu.Unlock()

	if aw.w.open != aw {
		return npy.ErrStreamClosed
	}
	aw.w.open = nil
	if err := aw.StreamWriter.Close(); err != nil {
		return fmt.Errorf("npz: writing %q: %w", aw.name, err)
	}
	aw.w.names = append(aw.w.names, aw.name)
	h := aw.Header()
	aw.w.cfg.log.Debug("wrote array", "name", aw.name, "descr", h.Descr.String(), "shape", h.Shape, "compressed", aw.compressed)
	return nil
}
