package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyz/pkg/npy"
	"github.com/samcharles93/npyz/pkg/npz"
)

type arrayInfo struct {
	Name           string `json:"name"`
	Version        string `json:"version,omitempty"`
	Descr          string `json:"descr,omitempty"`
	DType          string `json:"dtype,omitempty"`
	Shape          []int  `json:"shape"`
	FortranOrder   bool   `json:"fortran_order"`
	Elements       int    `json:"elements"`
	DataBytes      int    `json:"data_bytes"`
	Compressed     bool   `json:"compressed,omitempty"`
	Size           uint64 `json:"size,omitempty"`
	CompressedSize uint64 `json:"compressed_size,omitempty"`
	Error          string `json:"error,omitempty"`
}

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the header of a .npy file or of every member of a .npz archive",
		ArgsUsage: "<file>",
		Flags: append(readFlags(),
			&cli.BoolFlag{Name: "json", Usage: "emit JSON", Destination: &asJSON},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyReadConfig(cmd, cfg)
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: inspect takes exactly one file", 1)
			}
			infos, err := inspectPath(cmd.Args().First(), maxHeaderSize)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			out := cmd.Root().Writer
			if asJSON {
				return writeJSON(out, infos)
			}
			return writeInfoTable(out, infos)
		},
	}
}

// isArchive sniffs the zip local-file or end-of-directory signature.
func isArchive(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()
	var sig [4]byte
	if _, err := io.ReadFull(f, sig[:]); err != nil {
		return false, nil
	}
	s := string(sig[:])
	return s == "PK\x03\x04" || s == "PK\x05\x06", nil
}

func inspectPath(path string, maxHeader int) ([]arrayInfo, error) {
	archive, err := isArchive(path)
	if err != nil {
		return nil, err
	}
	if !archive {
		h, v, err := npy.LoadHeader(path, maxHeader)
		if err != nil {
			return nil, err
		}
		info := describe(path, h, v)
		if st, err := os.Stat(path); err == nil {
			info.Size = uint64(st.Size())
		}
		return []arrayInfo{info}, nil
	}

	r, err := npz.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	infos := make([]arrayInfo, 0, len(r.Entries()))
	for _, e := range r.Entries() {
		h, v, err := r.ReadHeader(e.Name, maxHeader)
		info := arrayInfo{Name: e.Name}
		if err != nil {
			if !npy.IsFormatError(err) {
				return nil, err
			}
			info.Error = err.Error()
		} else {
			info = describe(e.Name, h, v)
		}
		info.Compressed = e.Compressed
		info.Size = e.Size
		info.CompressedSize = e.CompressedSize
		infos = append(infos, info)
	}
	return infos, nil
}

func describe(name string, h npy.Header, v npy.Version) arrayInfo {
	info := arrayInfo{
		Name:         name,
		Version:      v.String(),
		Descr:        h.Descr.String(),
		Shape:        h.Shape,
		FortranOrder: h.FortranOrder,
	}
	if dt, err := h.Descr.DType(); err == nil {
		info.DType = dt.String()
	}
	if n, err := npy.NumElements(h.Shape); err == nil {
		info.Elements = n
	}
	if n, err := h.DataLen(); err == nil {
		info.DataBytes = n
	}
	return info
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func writeInfoTable(w io.Writer, infos []arrayInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tDESCR\tSHAPE\tORDER\tVERSION\tBYTES\tSTORED")
	for _, info := range infos {
		if info.Error != "" {
			_, _ = fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%d\t%s\n", info.Name, info.Size, info.Error)
			continue
		}
		order := "C"
		if info.FortranOrder {
			order = "F"
		}
		stored := "-"
		if info.CompressedSize > 0 {
			stored = strconv.FormatUint(info.CompressedSize, 10)
			if info.Compressed {
				stored += " (deflate)"
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			info.Name, info.Descr, formatShape(info.Shape), order, info.Version, info.DataBytes, stored)
	}
	return tw.Flush()
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
