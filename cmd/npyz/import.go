package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyz/internal/logger"
	"github.com/samcharles93/npyz/internal/safetensors"
	"github.com/samcharles93/npyz/pkg/npz"
)

func importCmd() *cli.Command {
	var (
		outPath  string
		compress bool
		level    int
		skip     bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "out",
			Aliases:     []string{"o"},
			Usage:       "archive to create",
			Required:    true,
			Destination: &outPath,
		},
		&cli.BoolFlag{
			Name:        "skip-unsupported",
			Usage:       "skip tensors whose dtype has no .npy equivalent instead of failing",
			Destination: &skip,
		},
	}
	flags = append(flags, compressFlags(&compress, &level)...)
	flags = append(flags, writeFlags()...)

	return &cli.Command{
		Name:      "import",
		Usage:     "Convert a .safetensors file into a .npz archive",
		ArgsUsage: "model.safetensors",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyWriteConfig(cmd, cfg)
			applyArchiveConfig(cmd, cfg, &compress, &level)
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: import needs exactly one .safetensors file", 1)
			}
			wopts, err := writeOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log := logger.FromContext(ctx)
			n, err := importSafetensors(cmd.Args().First(), outPath, importOptions{
				packOptions:     packOptions{compress: compress, level: level, write: wopts, log: log},
				skipUnsupported: skip,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("imported tensors", "path", outPath, "members", n)
			return nil
		},
	}
}

type importOptions struct {
	packOptions
	skipUnsupported bool
}

// importSafetensors writes every tensor of src into a new archive at out,
// named after the tensor. It returns the number of members written.
func importSafetensors(src, out string, opts importOptions) (n int, err error) {
	f, err := safetensors.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w, err := npz.Create(out, npz.WithCompressionLevel(opts.level), npz.WithLogger(opts.log))
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, w.Abort(), os.Remove(out))
		}
	}()

	for _, t := range f.Tensors() {
		a, err := f.ReadArray(t.Name)
		if errors.Is(err, safetensors.ErrUnsupportedDType) && opts.skipUnsupported {
			opts.log.Warn("skipping tensor", "name", t.Name, "dtype", t.DType)
			continue
		}
		if err != nil {
			return 0, err
		}
		if err := w.WriteArray(t.Name, a, opts.compress, opts.write...); err != nil {
			return 0, err
		}
		n++
	}
	return n, w.Close()
}
