package npy

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SaveFile writes a to path. The container is written to a temporary file
// in the same directory and renamed into place, so readers never observe a
// partial file.
func SaveFile(path string, a Array, opts ...WriteOption) (err error) {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriterSize(f, DefaultChunkSize)
	if err := Write(bw, a, opts...); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFile reads the container at path. The file is treated as exactly
// framed: a short file fails before the data buffer is allocated, and
// excess bytes follow the ExcessPolicy.
func LoadFile(path string, opts ...ReadOption) (*Dense, error) {
	data, release, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	a, err := Read(bytes.NewReader(data), append([]ReadOption{WithFraming(int64(len(data)))}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// LoadHeader reads only the header of the container at path.
func LoadHeader(path string, maxHeaderSize int) (Header, Version, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, 0, err
	}
	defer func() { _ = f.Close() }()

	h, v, _, err := ReadHeader(bufio.NewReader(f), maxHeaderSize)
	if err != nil {
		return Header{}, 0, fmt.Errorf("%s: %w", path, err)
	}
	return h, v, nil
}

func readWholeFile(f *os.File, size int64) ([]byte, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: file of %d bytes", ErrSizeOverflow, size)
	}
	out := make([]byte, size)
	n, err := f.ReadAt(out, 0)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == size) {
		return nil, err
	}
	return out, nil
}
