package npy

import (
	"fmt"
	"math"
	"strconv"
)

// Kind is the type-code character of a descriptor token.
type Kind byte

const (
	KindBool    Kind = 'b'
	KindInt     Kind = 'i'
	KindUint    Kind = 'u'
	KindFloat   Kind = 'f'
	KindComplex Kind = 'c'
)

// DType identifies a native element type.
// Keep these stable; add new values only.
type DType uint8

const (
	DTypeInvalid DType = iota
	DTypeBool
	DTypeInt8
	DTypeInt16
	DTypeInt32
	DTypeInt64
	DTypeUint8
	DTypeUint16
	DTypeUint32
	DTypeUint64
	DTypeFloat16
	DTypeFloat32
	DTypeFloat64
	DTypeComplex64
	DTypeComplex128
)

type dtypeInfo struct {
	name  string
	kind  Kind
	width int
}

var dtypes = [...]dtypeInfo{
	DTypeBool:       {"bool", KindBool, 1},
	DTypeInt8:       {"int8", KindInt, 1},
	DTypeInt16:      {"int16", KindInt, 2},
	DTypeInt32:      {"int32", KindInt, 4},
	DTypeInt64:      {"int64", KindInt, 8},
	DTypeUint8:      {"uint8", KindUint, 1},
	DTypeUint16:     {"uint16", KindUint, 2},
	DTypeUint32:     {"uint32", KindUint, 4},
	DTypeUint64:     {"uint64", KindUint, 8},
	DTypeFloat16:    {"float16", KindFloat, 2},
	DTypeFloat32:    {"float32", KindFloat, 4},
	DTypeFloat64:    {"float64", KindFloat, 8},
	DTypeComplex64:  {"complex64", KindComplex, 8},
	DTypeComplex128: {"complex128", KindComplex, 16},
}

// Valid reports whether dt names a supported element type.
func (dt DType) Valid() bool {
	return dt > DTypeInvalid && int(dt) < len(dtypes)
}

// Size returns the element width in bytes, or 0 for an invalid DType.
func (dt DType) Size() int {
	if !dt.Valid() {
		return 0
	}
	return dtypes[dt].width
}

// Kind returns the descriptor type code of dt.
func (dt DType) Kind() Kind {
	if !dt.Valid() {
		return 0
	}
	return dtypes[dt].kind
}

func (dt DType) String() string {
	if !dt.Valid() {
		return fmt.Sprintf("DType(%d)", uint8(dt))
	}
	return dtypes[dt].name
}

// Float16 is an IEEE 754 half-precision value held as its raw bits.
type Float16 uint16

// Float32 widens h to float32.
func (h Float16) Float32() float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
			break
		}
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3FF
		f = sign<<31 | e<<23 | frac<<13
	case 0x1F:
		f = sign<<31 | 0x7F800000 | frac<<13
	default:
		f = sign<<31 | (exp+127-15)<<23 | frac<<13
	}
	return math.Float32frombits(f)
}

// Descriptor is the parsed form of an on-disk descriptor token such as
// "<f8" or "|b1". Descriptors are comparable values.
type Descriptor struct {
	Order ByteOrder
	Kind  Kind
	Width int
}

// typeCodes holds the single-character NumPy type codes. 'l' and 'L'
// follow LP64.
var typeCodes = map[byte]Descriptor{
	'?': {OrderNotApplicable, KindBool, 1},
	'b': {OrderNotApplicable, KindInt, 1},
	'B': {OrderNotApplicable, KindUint, 1},
	'h': {OrderNative, KindInt, 2},
	'H': {OrderNative, KindUint, 2},
	'i': {OrderNative, KindInt, 4},
	'I': {OrderNative, KindUint, 4},
	'l': {OrderNative, KindInt, 8},
	'L': {OrderNative, KindUint, 8},
	'q': {OrderNative, KindInt, 8},
	'Q': {OrderNative, KindUint, 8},
	'e': {OrderNative, KindFloat, 2},
	'f': {OrderNative, KindFloat, 4},
	'd': {OrderNative, KindFloat, 8},
	'F': {OrderNative, KindComplex, 8},
	'D': {OrderNative, KindComplex, 16},
}

// DescriptorFor returns the canonical descriptor for dt: the machine's
// byte order for multi-byte types, not-applicable for single-byte types.
func DescriptorFor(dt DType) Descriptor {
	if !dt.Valid() {
		return Descriptor{}
	}
	info := dtypes[dt]
	d := Descriptor{Order: NativeOrder(), Kind: info.kind, Width: info.width}
	if d.Width == 1 {
		d.Order = OrderNotApplicable
	}
	return d
}

// ParseDescriptor parses a descriptor token. Tokens are either
// [<>=|]<kind><width> or a single-character type code, optionally prefixed
// with a byte-order character.
func ParseDescriptor(token string) (Descriptor, error) {
	s := token
	order := OrderNative
	if len(s) > 0 && ByteOrder(s[0]).valid() {
		order = ByteOrder(s[0])
		s = s[1:]
	}
	if len(s) == 1 {
		d, ok := typeCodes[s[0]]
		if !ok {
			return Descriptor{}, fmt.Errorf("%w: %q", ErrUnsupportedDescriptor, token)
		}
		if d.Width > 1 {
			d.Order = order
		}
		return d.normalize(token)
	}
	if len(s) < 2 {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnsupportedDescriptor, token)
	}
	kind := Kind(s[0])
	if kind == '?' {
		kind = KindBool
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Descriptor{}, fmt.Errorf("%w: %q", ErrUnsupportedDescriptor, token)
		}
	}
	width, err := strconv.Atoi(s[1:])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnsupportedDescriptor, token)
	}
	return Descriptor{Order: order, Kind: kind, Width: width}.normalize(token)
}

func (d Descriptor) normalize(token string) (Descriptor, error) {
	if _, err := d.DType(); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnsupportedDescriptor, token)
	}
	if d.Width == 1 {
		d.Order = OrderNotApplicable
	}
	return d, nil
}

// DType maps d to a native element type.
func (d Descriptor) DType() (DType, error) {
	for dt := DTypeBool; int(dt) < len(dtypes); dt++ {
		if dtypes[dt].kind == d.Kind && dtypes[dt].width == d.Width {
			return dt, nil
		}
	}
	return DTypeInvalid, fmt.Errorf("%w: kind %q width %d", ErrUnsupportedDescriptor, rune(d.Kind), d.Width)
}

// WithOrder returns d with its byte order replaced. Single-byte
// descriptors keep the not-applicable order.
func (d Descriptor) WithOrder(o ByteOrder) Descriptor {
	if d.Width <= 1 {
		d.Order = OrderNotApplicable
		return d
	}
	d.Order = o
	return d
}

// Concrete resolves native and not-applicable orders to the machine's
// order.
func (d Descriptor) Concrete() Descriptor {
	d.Order = d.Order.concrete()
	return d
}

// NeedsSwap reports whether element bytes in d's order must be swapped to
// be read on this machine.
func (d Descriptor) NeedsSwap() bool {
	return d.swapUnit() > 1 && d.Order.concrete() != NativeOrder()
}

// swapUnit is the width of each byte-swapped scalar; complex values swap
// their real and imaginary parts separately.
func (d Descriptor) swapUnit() int {
	if d.Kind == KindComplex {
		return d.Width / 2
	}
	return d.Width
}

// String returns the on-disk token.
func (d Descriptor) String() string {
	order := d.Order
	if order == 0 {
		order = OrderNative
	}
	return string([]byte{byte(order), byte(d.Kind)}) + strconv.Itoa(d.Width)
}
