package npy

import (
	"fmt"
	"slices"
	"unsafe"
)

// Order is the element order of an in-memory array. It is independent of
// byte order.
type Order uint8

const (
	// RowMajor stores the last index fastest (C order).
	RowMajor Order = iota
	// ColumnMajor stores the first index fastest (Fortran order).
	ColumnMajor
)

func (o Order) String() string {
	if o == ColumnMajor {
		return "F"
	}
	return "C"
}

// Array is the view of an n-dimensional array the codec needs to write it.
// Bytes returns the flattened elements in Order(), in native byte order.
type Array interface {
	DType() DType
	Shape() []int
	Order() Order
	Bytes() []byte
}

// Element lists the Go types that map onto a DType.
type Element interface {
	bool | int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		Float16 | float32 | float64 | complex64 | complex128
}

// DTypeOf returns the DType for T.
func DTypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case bool:
		return DTypeBool
	case int8:
		return DTypeInt8
	case int16:
		return DTypeInt16
	case int32:
		return DTypeInt32
	case int64:
		return DTypeInt64
	case uint8:
		return DTypeUint8
	case uint16:
		return DTypeUint16
	case uint32:
		return DTypeUint32
	case uint64:
		return DTypeUint64
	case Float16:
		return DTypeFloat16
	case float32:
		return DTypeFloat32
	case float64:
		return DTypeFloat64
	case complex64:
		return DTypeComplex64
	case complex128:
		return DTypeComplex128
	}
	return DTypeInvalid
}

// Dense is an owned array: a flat buffer plus shape and element order.
type Dense struct {
	dtype DType
	shape []int
	order Order
	data  []byte
}

var _ Array = (*Dense)(nil)

// NewDense wraps data without copying. len(data) must equal the element
// count times the element size.
func NewDense(dt DType, shape []int, order Order, data []byte) (*Dense, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArray, dt)
	}
	if order != RowMajor && order != ColumnMajor {
		return nil, fmt.Errorf("%w: order %d", ErrInvalidArray, order)
	}
	n, err := DataLen(shape, dt.Size())
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d bytes for shape %v of %s (want %d)", ErrInvalidArray, len(data), shape, dt, n)
	}
	return &Dense{dtype: dt, shape: slices.Clone(shape), order: order, data: data}, nil
}

// FromSlice views values as an array of the given shape. A nil shape means
// one dimension of len(values). The slice is not copied.
func FromSlice[T Element](values []T, shape []int, order Order) (*Dense, error) {
	if shape == nil {
		shape = []int{len(values)}
	}
	return NewDense(DTypeOf[T](), shape, order, sliceBytes(values))
}

// Values returns the elements of a as []T. It fails with ErrTypeMismatch
// when a does not hold T; no conversion is attempted. The result shares
// memory with a when the buffer is suitably aligned.
func Values[T Element](a Array) ([]T, error) {
	want := DTypeOf[T]()
	if a.DType() != want {
		return nil, fmt.Errorf("%w: array holds %s, not %s", ErrTypeMismatch, a.DType(), want)
	}
	data := a.Bytes()
	size := want.Size()
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrInvalidArray, len(data), size)
	}
	n := len(data) / size
	if n == 0 {
		return []T{}, nil
	}
	if uintptr(unsafe.Pointer(&data[0]))%unsafe.Alignof(*new(T)) != 0 {
		out := make([]T, n)
		copy(sliceBytes(out), data)
		return out, nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n), nil
}

func sliceBytes[T Element](s []T) []byte {
	if len(s) == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
}

func (a *Dense) DType() DType  { return a.dtype }
func (a *Dense) Order() Order  { return a.order }
func (a *Dense) Bytes() []byte { return a.data }

// Shape returns a copy of the array's dimensions.
func (a *Dense) Shape() []int { return slices.Clone(a.shape) }

// Len returns the number of elements.
func (a *Dense) Len() int {
	return len(a.data) / a.dtype.Size()
}

// Offset returns the flat element index of idx, honouring the array's
// element order.
func (a *Dense) Offset(idx ...int) (int, error) {
	if len(idx) != len(a.shape) {
		return 0, fmt.Errorf("npy: %d indices for %d dimensions", len(idx), len(a.shape))
	}
	off, stride := 0, 1
	for k := range idx {
		axis := k
		if a.order == RowMajor {
			axis = len(idx) - 1 - k
		}
		if idx[axis] < 0 || idx[axis] >= a.shape[axis] {
			return 0, fmt.Errorf("npy: index %d out of range for axis %d of size %d", idx[axis], axis, a.shape[axis])
		}
		off += idx[axis] * stride
		stride *= a.shape[axis]
	}
	return off, nil
}
