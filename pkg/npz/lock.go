package npz

import (
	"fmt"
	"sync"
)

// writers holds the absolute paths with a live Writer in this process. The
// file lock alone does not cover this case on every platform.
var writers = struct {
	sync.Mutex
	paths map[string]struct{}
}{paths: make(map[string]struct{})}

func acquire(path string) error {
	writers.Lock()
	defer writers.Unlock()
	if _, held := writers.paths[path]; held {
		return fmt.Errorf("%w: %s", ErrArchiveLocked, path)
	}
	writers.paths[path] = struct{}{}
	return nil
}

func release(path string) {
	writers.Lock()
	defer writers.Unlock()
	delete(writers.paths, path)
}
