// Package server exposes the members of an open archive over HTTP.
package server

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/npyz/internal/logger"
	"github.com/samcharles93/npyz/internal/version"
	"github.com/samcharles93/npyz/pkg/npy"
	"github.com/samcharles93/npyz/pkg/npz"
)

// Archive is the read side of an archive the server browses.
// *npz.Reader implements it.
type Archive interface {
	Entries() []npz.Entry
	Entry(name string) (npz.Entry, error)
	ReadHeader(name string, maxHeaderSize int) (npy.Header, npy.Version, error)
	ReadArray(name string, opts ...npy.ReadOption) (*npy.Dense, error)
	OpenEntry(name string) (io.ReadCloser, error)
}

var _ Archive = (*npz.Reader)(nil)

// Config controls request limits and how members are decoded.
type Config struct {
	MaxHeaderSize int
	ExcessPolicy  npy.ExcessPolicy
	Logger        logger.Logger

	// RequestsPerSecond caps the request rate across all clients; zero
	// disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// Server serves read-only views of one archive.
type Server struct {
	archive Archive
	cfg     Config
	log     logger.Logger
	limiter *rate.Limiter
}

// New returns a server over archive. A nil cfg.Logger discards logs.
func New(archive Archive, cfg Config) *Server {
	s := &Server{archive: archive, cfg: cfg, log: cfg.Logger}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	return s
}

// Register adds the server's routes to e. Member names may contain
// slashes: /v1/arrays/<name> returns the header summary and
// /v1/arrays/<name>/npy the member as a .npy file. A member whose own
// name ends in "/npy" is reached by escaping that slash as %2F.
func (s *Server) Register(e *echo.Echo) {
	var mw []echo.MiddlewareFunc
	if s.limiter != nil {
		mw = append(mw, rateLimit(s.limiter))
	}
	e.GET("/v1/version", s.handleVersion)
	e.GET("/v1/arrays", s.handleList, mw...)
	e.GET("/v1/arrays/*", s.handleArray, mw...)
}

func (s *Server) handleArray(c *echo.Context) error {
	raw := c.Param("*")
	if base, ok := strings.CutSuffix(raw, "/npy"); ok {
		return s.handleDownload(c, base)
	}
	return s.handleHeader(c, raw)
}

// ArraySummary describes one archive member. Members that are not valid
// containers carry Error instead of header fields.
type ArraySummary struct {
	Name           string `json:"name"`
	Compressed     bool   `json:"compressed"`
	Size           uint64 `json:"size"`
	CompressedSize uint64 `json:"compressed_size"`
	Version        string `json:"version,omitempty"`
	Descr          string `json:"descr,omitempty"`
	DType          string `json:"dtype,omitempty"`
	FortranOrder   bool   `json:"fortran_order"`
	Shape          []int  `json:"shape,omitempty"`
	Elements       int    `json:"elements"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) summarize(e npz.Entry) (ArraySummary, error) {
	out := ArraySummary{
		Name:           e.Name,
		Compressed:     e.Compressed,
		Size:           e.Size,
		CompressedSize: e.CompressedSize,
	}
	h, v, err := s.archive.ReadHeader(e.Name, s.cfg.MaxHeaderSize)
	if err != nil {
		return out, err
	}
	out.Version = v.String()
	out.Descr = h.Descr.String()
	if dt, err := h.Descr.DType(); err == nil {
		out.DType = dt.String()
	}
	out.FortranOrder = h.FortranOrder
	out.Shape = h.Shape
	if n, err := npy.NumElements(h.Shape); err == nil {
		out.Elements = n
	}
	return out, nil
}

func (s *Server) handleVersion(c *echo.Context) error {
	return c.JSON(http.StatusOK, version.Resolve())
}

func (s *Server) handleList(c *echo.Context) error {
	entries := s.archive.Entries()
	data := make([]ArraySummary, 0, len(entries))
	for _, e := range entries {
		sum, err := s.summarize(e)
		if err != nil {
			if !npy.IsFormatError(err) {
				return s.writeArchiveError(c, err)
			}
			sum.Error = err.Error()
		}
		data = append(data, sum)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

func (s *Server) handleHeader(c *echo.Context, raw string) error {
	name, err := entryName(raw)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	e, err := s.archive.Entry(name)
	if err != nil {
		return s.writeArchiveError(c, err)
	}
	sum, err := s.summarize(e)
	if err != nil {
		return s.writeArchiveError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

// handleDownload serves a member as a standalone .npy file. Without a
// byte_order query the member bytes are copied verbatim; with one the
// array is decoded and re-encoded in that order.
func (s *Server) handleDownload(c *echo.Context, raw string) error {
	name, err := entryName(raw)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	filename := strings.TrimSuffix(name[strings.LastIndex(name, "/")+1:], ".npy") + ".npy"

	if q := c.QueryParam("byte_order"); q != "" {
		order, ok := npy.ParseByteOrder(q)
		if !ok {
			return writeBadRequest(c, "byte_order must be native, little or big")
		}
		a, err := s.archive.ReadArray(name,
			npy.WithMaxHeaderSize(s.cfg.MaxHeaderSize),
			npy.WithExcessPolicy(s.cfg.ExcessPolicy),
			npy.WithLogger(s.log.With("entry", name)),
		)
		if err != nil {
			return s.writeArchiveError(c, err)
		}
		setDownloadHeaders(c.Response(), filename)
		c.Response().WriteHeader(http.StatusOK)
		return npy.Write(c.Response(), a, npy.WithByteOrder(order))
	}

	rc, err := s.archive.OpenEntry(name)
	if err != nil {
		return s.writeArchiveError(c, err)
	}
	defer func() { _ = rc.Close() }()
	setDownloadHeaders(c.Response(), filename)
	c.Response().WriteHeader(http.StatusOK)
	n, err := io.Copy(c.Response(), rc)
	if err != nil {
		// Headers are gone; all that is left is to log it.
		s.log.Warn("download interrupted", "entry", name, "bytes", n, "error", err)
	}
	return nil
}

func setDownloadHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	w.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
}

func entryName(raw string) (string, error) {
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", errors.New("missing array name")
	}
	return name, nil
}

func (s *Server) writeArchiveError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, npz.ErrEntryNotFound):
		return writeNotFound(c, err.Error())
	case npy.IsFormatError(err), errors.Is(err, npz.ErrCorruptMember):
		return writeError(c, http.StatusUnprocessableEntity, "invalid_array_error", err.Error())
	default:
		s.log.Error("archive read failed", "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}
