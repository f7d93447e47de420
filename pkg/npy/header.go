package npy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Header is the parsed dictionary at the start of a container.
type Header struct {
	Descr        Descriptor
	FortranOrder bool
	Shape        []int
}

func (h Header) String() string {
	return h.literal()
}

// literal renders the header dictionary without padding. Shape tuples always
// carry a trailing comma; a scalar shape is "()".
func (h Header) literal() string {
	var sb strings.Builder
	sb.WriteString("{'descr': ")
	sb.WriteString(quoteLiteral(h.Descr.String()))
	sb.WriteString(", 'fortran_order': ")
	if h.FortranOrder {
		sb.WriteString("True")
	} else {
		sb.WriteString("False")
	}
	sb.WriteString(", 'shape': (")
	for i, d := range h.Shape {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(d))
	}
	if len(h.Shape) > 0 {
		sb.WriteByte(',')
	}
	sb.WriteString(")}")
	return sb.String()
}

// Encode returns the full preamble for h: magic, version, header length and
// the padded header text. The version is the lowest one, not below
// minVersion, able to hold the header.
func (h Header) Encode(minVersion Version) ([]byte, Version, error) {
	if minVersion != 0 && !minVersion.Valid() {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, uint8(minVersion))
	}
	if _, err := h.Descr.DType(); err != nil {
		return nil, 0, err
	}
	for _, d := range h.Shape {
		if d < 0 {
			return nil, 0, fmt.Errorf("%w: negative dimension %d", ErrInvalidArray, d)
		}
	}
	payload := []byte(h.literal())
	v, err := selectVersion(payload, minVersion)
	if err != nil {
		return nil, 0, err
	}

	total := v.paddedLen(len(payload))
	out := make([]byte, total)
	copy(out, Magic)
	out[len(Magic)] = byte(v)
	out[len(Magic)+1] = 0
	headerLen := total - v.prefixLen()
	if v == Version1 {
		binary.LittleEndian.PutUint16(out[len(Magic)+versionLen:], uint16(headerLen))
	} else {
		binary.LittleEndian.PutUint32(out[len(Magic)+versionLen:], uint32(headerLen))
	}
	n := copy(out[v.prefixLen():], payload)
	for i := v.prefixLen() + n; i < total-1; i++ {
		out[i] = ' '
	}
	out[total-1] = '\n'
	return out, v, nil
}

// WriteTo writes the preamble for h using the lowest version that fits.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	b, _, err := h.Encode(0)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// ReadHeader reads and validates a container preamble. It returns the
// header, its version and the number of bytes consumed. maxHeaderSize caps
// the declared header length before anything is allocated for it;
// non-positive means DefaultMaxHeaderSize.
func ReadHeader(r io.Reader, maxHeaderSize int) (Header, Version, int, error) {
	if maxHeaderSize <= 0 {
		maxHeaderSize = DefaultMaxHeaderSize
	}

	var pre [len(Magic) + versionLen + 4]byte
	if err := readFull(r, pre[:len(Magic)+versionLen], "preamble"); err != nil {
		return Header{}, 0, 0, err
	}
	if string(pre[:len(Magic)]) != Magic {
		return Header{}, 0, 0, ErrBadMagic
	}
	major, minor := pre[len(Magic)], pre[len(Magic)+1]
	v := Version(major)
	if !v.Valid() || minor != 0 {
		return Header{}, 0, 0, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, major, minor)
	}

	field := pre[len(Magic)+versionLen : v.prefixLen()]
	if err := readFull(r, field, "header length"); err != nil {
		return Header{}, 0, 0, err
	}
	var headerLen uint64
	if v == Version1 {
		headerLen = uint64(binary.LittleEndian.Uint16(field))
	} else {
		headerLen = uint64(binary.LittleEndian.Uint32(field))
	}
	if headerLen > uint64(maxHeaderSize) {
		return Header{}, 0, 0, fmt.Errorf("%w: %d bytes exceeds limit %d", ErrHeaderTooLarge, headerLen, maxHeaderSize)
	}

	buf := make([]byte, headerLen)
	if err := readFull(r, buf, "header"); err != nil {
		return Header{}, 0, 0, err
	}
	if len(buf) == 0 || buf[len(buf)-1] != '\n' {
		return Header{}, 0, 0, fmt.Errorf("%w: missing final newline", ErrMalformedHeader)
	}
	text := buf[:len(buf)-1]
	switch v {
	case Version1, Version2:
		if !isASCII(text) {
			return Header{}, 0, 0, fmt.Errorf("%w: non-ASCII header in version %s", ErrInvalidHeaderEncoding, v)
		}
	default:
		if !utf8.Valid(text) {
			return Header{}, 0, 0, fmt.Errorf("%w: header is not valid UTF-8", ErrInvalidHeaderEncoding)
		}
	}

	h, err := ParseHeader(string(text))
	if err != nil {
		return Header{}, 0, 0, err
	}
	return h, v, v.prefixLen() + int(headerLen), nil
}

// ParseHeader parses the dictionary text of a header.
func ParseHeader(text string) (Header, error) {
	lit, err := parseLiteral(text)
	if err != nil {
		return Header{}, err
	}
	if lit.kind != litDict {
		return Header{}, fmt.Errorf("%w: header is a %s, not a dict", ErrMalformedHeader, lit.kind)
	}

	var (
		h                         Header
		seenDescr, seenF, seenDim bool
	)
	for i := 0; i < len(lit.items); i += 2 {
		key, val := lit.items[i], lit.items[i+1]
		if key.kind != litString {
			return Header{}, fmt.Errorf("%w: %s key", ErrMalformedHeader, key.kind)
		}
		switch key.str {
		case "descr":
			if seenDescr {
				return Header{}, fmt.Errorf("%w: duplicate key %q", ErrMalformedHeader, key.str)
			}
			seenDescr = true
			switch val.kind {
			case litString:
				d, err := ParseDescriptor(val.str)
				if err != nil {
					return Header{}, err
				}
				h.Descr = d
			case litList:
				return Header{}, fmt.Errorf("%w: structured descriptor", ErrUnsupportedDescriptor)
			default:
				return Header{}, fmt.Errorf("%w: descr is a %s", ErrMalformedHeader, val.kind)
			}
		case "fortran_order":
			if seenF {
				return Header{}, fmt.Errorf("%w: duplicate key %q", ErrMalformedHeader, key.str)
			}
			seenF = true
			if val.kind != litBool {
				return Header{}, fmt.Errorf("%w: fortran_order is a %s", ErrMalformedHeader, val.kind)
			}
			h.FortranOrder = val.b
		case "shape":
			if seenDim {
				return Header{}, fmt.Errorf("%w: duplicate key %q", ErrMalformedHeader, key.str)
			}
			seenDim = true
			shape, err := shapeFromLiteral(val)
			if err != nil {
				return Header{}, err
			}
			h.Shape = shape
		default:
			return Header{}, fmt.Errorf("%w: unknown key %q", ErrMalformedHeader, key.str)
		}
	}

	switch {
	case !seenDescr:
		return Header{}, fmt.Errorf("%w: missing key %q", ErrMalformedHeader, "descr")
	case !seenF:
		return Header{}, fmt.Errorf("%w: missing key %q", ErrMalformedHeader, "fortran_order")
	case !seenDim:
		return Header{}, fmt.Errorf("%w: missing key %q", ErrMalformedHeader, "shape")
	}
	return h, nil
}

func shapeFromLiteral(val literal) ([]int, error) {
	if val.kind != litTuple {
		return nil, fmt.Errorf("%w: shape is a %s, not a tuple", ErrMalformedHeader, val.kind)
	}
	shape := make([]int, 0, len(val.items))
	for _, item := range val.items {
		if item.kind != litInt {
			return nil, fmt.Errorf("%w: shape entry is a %s", ErrMalformedHeader, item.kind)
		}
		if item.neg && !(item.fits && item.num == 0) {
			return nil, fmt.Errorf("%w: negative dimension in shape", ErrMalformedHeader)
		}
		if !item.fits || item.num > math.MaxInt {
			return nil, fmt.Errorf("%w: dimension does not fit in int", ErrSizeOverflow)
		}
		shape = append(shape, int(item.num))
	}
	return shape, nil
}

// readFull reads len(p) bytes, reporting a short read as ErrUnexpectedEOF.
// Other reader errors are returned unchanged.
func readFull(r io.Reader, p []byte, what string) error {
	if _, err := io.ReadFull(r, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: reading %s", ErrUnexpectedEOF, what)
		}
		return err
	}
	return nil
}
