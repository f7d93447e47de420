package main

import (
	"fmt"

	"github.com/klauspost/compress/flate"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyz/pkg/npy"
)

var (
	configFile    string
	logLevel      string
	logFormat     string
	debug         bool
	maxHeaderSize int
	excessBytes   string
	byteOrder     string
	minVersion    int
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config file",
			Value:       configPath(),
			Sources:     cli.EnvVars("NPYZ_CONFIG"),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// readFlags are shared by every command that decodes containers.
func readFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-header-size",
			Usage:       "largest accepted header in bytes",
			Value:       npy.DefaultMaxHeaderSize,
			Destination: &maxHeaderSize,
		},
		&cli.StringFlag{
			Name:        "excess-bytes",
			Usage:       "bytes after the array data in a file or member (warn, ignore, error)",
			Value:       "warn",
			Destination: &excessBytes,
		},
	}
}

// writeFlags are shared by every command that encodes containers.
func writeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "byte-order",
			Usage:       "byte order of written elements (native, little, big)",
			Value:       "native",
			Destination: &byteOrder,
		},
		&cli.IntFlag{
			Name:        "min-version",
			Usage:       "lowest format version to write (1, 2, 3)",
			Value:       1,
			Destination: &minVersion,
		},
	}
}

func compressFlags(compress *bool, level *int) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "compress",
			Aliases:     []string{"z"},
			Usage:       "deflate archive members",
			Destination: compress,
		},
		&cli.IntFlag{
			Name:        "level",
			Usage:       "deflate level (-2 huffman only, -1 default, 0-9)",
			Value:       flate.DefaultCompression,
			Destination: level,
		},
	}
}

func readOptions() ([]npy.ReadOption, error) {
	policy, err := npy.ParseExcessPolicy(excessBytes)
	if err != nil {
		return nil, err
	}
	return []npy.ReadOption{
		npy.WithMaxHeaderSize(maxHeaderSize),
		npy.WithExcessPolicy(policy),
	}, nil
}

func writeOptions() ([]npy.WriteOption, error) {
	order, ok := npy.ParseByteOrder(byteOrder)
	if !ok {
		return nil, fmt.Errorf("invalid byte order %q (want native, little or big)", byteOrder)
	}
	v := npy.Version(minVersion)
	if !v.Valid() {
		return nil, fmt.Errorf("invalid format version %d (want 1, 2 or 3)", minVersion)
	}
	return []npy.WriteOption{npy.WithByteOrder(order), npy.WithMinVersion(v)}, nil
}
