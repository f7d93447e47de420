package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyz/pkg/npz"
)

func listCmd() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List the member names of a .npz archive in directory order",
		ArgsUsage: "<archive>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: list takes exactly one archive", 1)
			}
			r, err := npz.Open(cmd.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open archive: %v", err), 1)
			}
			defer func() { _ = r.Close() }()

			out := cmd.Root().Writer
			for _, name := range r.Names() {
				if _, err := fmt.Fprintln(out, name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
