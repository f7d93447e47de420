package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyz/internal/logger"
	"github.com/samcharles93/npyz/pkg/npy"
	"github.com/samcharles93/npyz/pkg/npz"
)

func packCmd() *cli.Command {
	var (
		outPath  string
		compress bool
		level    int
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "out",
			Aliases:     []string{"o"},
			Usage:       "archive to create",
			Required:    true,
			Destination: &outPath,
		},
	}
	flags = append(flags, compressFlags(&compress, &level)...)
	flags = append(flags, readFlags()...)
	flags = append(flags, writeFlags()...)

	return &cli.Command{
		Name:      "pack",
		Usage:     "Bundle .npy files into a .npz archive",
		ArgsUsage: "[name=]file.npy ...",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyReadConfig(cmd, cfg)
			applyWriteConfig(cmd, cfg)
			applyArchiveConfig(cmd, cfg, &compress, &level)
			if cmd.Args().Len() == 0 {
				return cli.Exit("error: pack needs at least one input file", 1)
			}
			ropts, err := readOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			wopts, err := writeOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			inputs, err := parseInputs(cmd.Args().Slice())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log := logger.FromContext(ctx)
			if err := pack(outPath, inputs, packOptions{
				compress: compress,
				level:    level,
				read:     ropts,
				write:    wopts,
				log:      log,
			}); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("packed archive", "path", outPath, "members", len(inputs))
			return nil
		},
	}
}

type packInput struct {
	name string
	path string
}

// parseInputs accepts "name=path" or a bare path, whose base name becomes
// the member name.
func parseInputs(args []string) ([]packInput, error) {
	inputs := make([]packInput, 0, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		if !ok {
			path, name = arg, filepath.Base(arg)
		}
		if name == "" || path == "" {
			return nil, fmt.Errorf("invalid input %q", arg)
		}
		inputs = append(inputs, packInput{name: name, path: path})
	}
	return inputs, nil
}

type packOptions struct {
	compress bool
	level    int
	read     []npy.ReadOption
	write    []npy.WriteOption
	log      logger.Logger
}

// pack writes every input into a new archive at out. On failure the
// partial archive is removed.
func pack(out string, inputs []packInput, opts packOptions) (err error) {
	w, err := npz.Create(out, npz.WithCompressionLevel(opts.level), npz.WithLogger(opts.log))
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, w.Abort(), os.Remove(out))
		}
	}()

	read := append([]npy.ReadOption{npy.WithLogger(opts.log)}, opts.read...)
	for _, in := range inputs {
		a, err := npy.LoadFile(in.path, read...)
		if err != nil {
			return err
		}
		if err := w.WriteArray(in.name, a, opts.compress, opts.write...); err != nil {
			return err
		}
	}
	return w.Close()
}
