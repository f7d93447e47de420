package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyz/internal/logger"
	"github.com/samcharles93/npyz/internal/server"
	"github.com/samcharles93/npyz/pkg/npy"
	"github.com/samcharles93/npyz/pkg/npz"
)

func serveCmd() *cli.Command {
	var (
		archivePath string
		addr        string
		readTimeout time.Duration
		rps         float64
		burst       int
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the members of a .npz archive over HTTP",
		Flags: append(readFlags(),
			&cli.StringFlag{
				Name:        "archive",
				Aliases:     []string{"a"},
				Usage:       "path to .npz archive",
				Required:    true,
				Destination: &archivePath,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Float64Flag{
				Name:        "rate",
				Usage:       "requests per second across all clients (0 = unlimited)",
				Destination: &rps,
			},
			&cli.IntFlag{
				Name:        "burst",
				Usage:       "request burst allowed by --rate",
				Value:       10,
				Destination: &burst,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyReadConfig(cmd, cfg)
			applyServeConfig(cmd, cfg, &addr)
			log := logger.FromContext(ctx)

			policy, err := npy.ParseExcessPolicy(excessBytes)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			r, err := npz.Open(archivePath, npz.WithLogger(log))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open archive: %v", err), 1)
			}
			defer func() { _ = r.Close() }()

			srv := server.New(r, server.Config{
				MaxHeaderSize:     maxHeaderSize,
				ExcessPolicy:      policy,
				Logger:            log,
				RequestsPerSecond: rps,
				Burst:             burst,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			srv.Register(e)
			log.Info("starting server", "address", addr, "archive", archivePath, "members", len(r.Names()))
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(s *http.Server) error {
					s.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
