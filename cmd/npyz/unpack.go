package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyz/internal/logger"
	"github.com/samcharles93/npyz/pkg/npy"
	"github.com/samcharles93/npyz/pkg/npz"
)

func unpackCmd() *cli.Command {
	var dir string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "dir",
			Aliases:     []string{"C"},
			Usage:       "directory to extract into",
			Value:       ".",
			Destination: &dir,
		},
	}
	flags = append(flags, readFlags()...)
	flags = append(flags, writeFlags()...)

	return &cli.Command{
		Name:      "unpack",
		Usage:     "Extract the members of a .npz archive into .npy files",
		ArgsUsage: "<archive> [member ...]",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyReadConfig(cmd, cfg)
			applyWriteConfig(cmd, cfg)
			if cmd.Args().Len() == 0 {
				return cli.Exit("error: unpack needs an archive", 1)
			}
			ropts, err := readOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			wopts, err := writeOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			args := cmd.Args().Slice()
			log := logger.FromContext(ctx)
			written, err := unpack(args[0], dir, args[1:], ropts, wopts, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("unpacked archive", "path", args[0], "files", len(written))
			return nil
		},
	}
}

// memberPath maps a member name to a file under dir. Names that would
// escape dir are rejected.
func memberPath(dir, name string) (string, error) {
	rel := filepath.FromSlash(name)
	if !strings.HasSuffix(rel, ".npy") {
		rel += ".npy"
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("member %q would be written outside %s", name, dir)
	}
	return filepath.Join(dir, rel), nil
}

// unpack extracts the named members (all when names is empty) and returns
// the written paths.
func unpack(archive, dir string, names []string, ropts []npy.ReadOption, wopts []npy.WriteOption, log logger.Logger) ([]string, error) {
	r, err := npz.Open(archive, npz.WithLogger(log))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	if len(names) == 0 {
		names = r.Names()
	}
	written := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			continue
		}
		path, err := memberPath(dir, name)
		if err != nil {
			return written, err
		}
		a, err := r.ReadArray(name, ropts...)
		if err != nil {
			return written, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, err
		}
		if err := npy.SaveFile(path, a, wopts...); err != nil {
			return written, err
		}
		log.Debug("extracted member", "name", name, "path", path)
		written = append(written, path)
	}
	return written, nil
}
