package npz

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/samcharles93/npyz/pkg/npy"
)

// Reader gives access to the members of an archive. Each read opens its
// own member stream, so members can be read concurrently.
type Reader struct {
	zr      *zip.Reader
	closer  io.Closer
	cfg     config
	entries []Entry
	files   map[string]*zip.File
}

// Open opens the archive at path.
func Open(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r, err := NewReader(f, st.Size(), opts...)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads the directory of the size-byte archive in ra.
func NewReader(ra io.ReaderAt, size int64, opts ...Option) (*Reader, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, err
	}
	r := &Reader{zr: zr, cfg: cfg, files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if _, dup := r.files[f.Name]; dup {
			cfg.log.Warn("duplicate archive member, keeping the first", "name", f.Name)
			continue
		}
		r.files[f.Name] = f
		r.entries = append(r.entries, Entry{
			Name:           f.Name,
			Compressed:     f.Method != zip.Store,
			Size:           f.UncompressedSize64,
			CompressedSize: f.CompressedSize64,
		})
	}
	return r, nil
}

// Names returns member names in directory order, unfiltered.
func (r *Reader) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns member metadata in directory order.
func (r *Reader) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Entry returns the metadata of the named member.
func (r *Reader) Entry(name string) (Entry, error) {
	for _, e := range r.entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrEntryNotFound, name)
}

func (r *Reader) file(name string) (*zip.File, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	return f, nil
}

// OpenEntry returns the decompressed byte stream of a member. The zip
// checksum is verified when the stream reaches EOF.
func (r *Reader) OpenEntry(name string) (io.ReadCloser, error) {
	f, err := r.file(name)
	if err != nil {
		return nil, err
	}
	return f.Open()
}

// ReadArray decodes the named member. The member is exactly framed, so
// short members fail before allocation and excess bytes follow the
// ExcessPolicy passed in opts.
func (r *Reader) ReadArray(name string, opts ...npy.ReadOption) (*npy.Dense, error) {
	return r.read(name, npy.Read, opts)
}

// ReadArrayAs is ReadArray with the element type fixed to T.
func ReadArrayAs[T npy.Element](r *Reader, name string, opts ...npy.ReadOption) (*npy.Dense, error) {
	return r.read(name, npy.ReadAs[T], opts)
}

func (r *Reader) read(name string, decode func(io.Reader, ...npy.ReadOption) (*npy.Dense, error), opts []npy.ReadOption) (*npy.Dense, error) {
	f, err := r.file(name)
	if err != nil {
		return nil, err
	}
	if f.Method == zip.Store && f.UncompressedSize64 != f.CompressedSize64 {
		return nil, fmt.Errorf("%w: %q stored with %d bytes but declares %d", ErrCorruptMember, name, f.CompressedSize64, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	base := []npy.ReadOption{npy.WithLogger(r.cfg.log)}
	if f.UncompressedSize64 <= math.MaxInt64 {
		base = append(base, npy.WithFraming(int64(f.UncompressedSize64)))
	}
	a, err := decode(bufio.NewReaderSize(rc, npy.DefaultChunkSize), append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("npz: reading %q: %w", name, err)
	}
	return a, nil
}

// ReadHeader decodes only the header of the named member.
func (r *Reader) ReadHeader(name string, maxHeaderSize int) (npy.Header, npy.Version, error) {
	rc, err := r.OpenEntry(name)
	if err != nil {
		return npy.Header{}, 0, err
	}
	defer func() { _ = rc.Close() }()

	h, v, _, err := npy.ReadHeader(rc, maxHeaderSize)
	if err != nil {
		return npy.Header{}, 0, fmt.Errorf("npz: reading %q: %w", name, err)
	}
	return h, v, nil
}

// Close releases the archive file opened by Open. It is a no-op for
// readers built with NewReader.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
