package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyz/internal/logger"
	"github.com/samcharles93/npyz/pkg/npy"
)

func convertCmd() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Rewrite a .npy file with another byte order or format version",
		ArgsUsage: "<in.npy> <out.npy>",
		Flags:     append(readFlags(), writeFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyReadConfig(cmd, cfg)
			applyWriteConfig(cmd, cfg)
			if cmd.Args().Len() != 2 {
				return cli.Exit("error: convert takes an input and an output file", 1)
			}
			ropts, err := readOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			wopts, err := writeOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log := logger.FromContext(ctx)
			in, out := cmd.Args().Get(0), cmd.Args().Get(1)
			if err := convert(in, out, append(ropts, npy.WithLogger(log)), wopts); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("converted", "in", in, "out", out, "byte_order", byteOrder)
			return nil
		},
	}
}

func convert(in, out string, ropts []npy.ReadOption, wopts []npy.WriteOption) error {
	a, err := npy.LoadFile(in, ropts...)
	if err != nil {
		return err
	}
	return npy.SaveFile(out, a, wopts...)
}
