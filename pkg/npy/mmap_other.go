//go:build !unix

package npy

import "os"

func mapFile(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	data, err := readWholeFile(f, st.Size())
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return nil }, nil
}
