// Package npz reads and writes NumPy .npz archives: zip files whose
// members are .npy containers, one array per member.
//
// Member names are used exactly as given. NumPy itself appends ".npy" to
// the keyword names passed to savez; callers that want to interoperate with
// np.load's key lookup should do the same.
package npz

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/flate"

	"github.com/samcharles93/npyz/internal/logger"
)

var (
	ErrEntryNotFound  = errors.New("npz: entry not found")
	ErrDuplicateEntry = errors.New("npz: duplicate entry name")
	ErrInvalidName    = errors.New("npz: invalid entry name")
	ErrArchiveLocked  = errors.New("npz: archive is locked by another writer")
	ErrWriterClosed   = errors.New("npz: writer closed")
	ErrEntryOpen      = errors.New("npz: entry write in progress")
	ErrCorruptMember  = errors.New("npz: corrupt member")
)

// Entry describes one archive member.
type Entry struct {
	Name           string `json:"name"`
	Compressed     bool   `json:"compressed"`
	Size           uint64 `json:"size"`
	CompressedSize uint64 `json:"compressed_size"`
}

// Logger is the logging surface the archive layer uses. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type config struct {
	level int
	log   Logger
}

// Option configures writers and readers.
type Option func(*config)

// WithCompressionLevel sets the deflate level for compressed members. The
// default is flate.DefaultCompression.
func WithCompressionLevel(level int) Option {
	return func(c *config) { c.level = level }
}

// WithLogger sets the logger for member writes and tolerated
// inconsistencies.
func WithLogger(l Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

func newConfig(opts []Option) (config, error) {
	cfg := config{level: flate.DefaultCompression, log: logger.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.level < flate.HuffmanOnly || cfg.level > flate.BestCompression {
		return config{}, fmt.Errorf("npz: invalid compression level %d", cfg.level)
	}
	return cfg, nil
}
