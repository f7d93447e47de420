package npy

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/npyz/internal/logger"
)

func foreignOrder() ByteOrder {
	if NativeOrder() == OrderBig {
		return OrderLittle
	}
	return OrderBig
}

func roundTrip[T Element](t *testing.T, values []T, shape []int, order Order, opts ...WriteOption) *Dense {
	t.Helper()
	a, err := FromSlice(values, shape, order)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a, opts...))
	assert.Zero(t, (buf.Len()-len(a.Bytes()))%HeaderAlign)

	got, err := ReadAs[T](bytes.NewReader(buf.Bytes()), WithLogger(logger.Discard()))
	require.NoError(t, err)
	assert.Equal(t, a.DType(), got.DType())
	assert.Equal(t, order, got.Order())
	assert.Equal(t, len(a.Shape()), len(got.Shape()))
	if len(shape) > 0 {
		assert.Equal(t, shape, got.Shape())
	}
	back, err := Values[T](got)
	require.NoError(t, err)
	assert.Equal(t, len(values), len(back))
	if len(values) > 0 {
		assert.Equal(t, values, back)
	}
	return got
}

func roundTripAllOrders[T Element](t *testing.T, values []T, shape []int) {
	t.Helper()
	for _, bo := range []ByteOrder{OrderNative, OrderLittle, OrderBig} {
		for _, order := range []Order{RowMajor, ColumnMajor} {
			roundTrip(t, values, shape, order, WithByteOrder(bo))
		}
	}
}

func TestRoundTripAllTypes(t *testing.T) {
	t.Parallel()
	shape := []int{2, 3}
	roundTripAllOrders(t, []bool{true, false, true, true, false, false}, shape)
	roundTripAllOrders(t, []int8{-1, 2, -3, 4, -128, 127}, shape)
	roundTripAllOrders(t, []int16{-1, 2, -300, 400, -32768, 32767}, shape)
	roundTripAllOrders(t, []int32{-1, 2, -70000, 80000, -1 << 31, 1<<31 - 1}, shape)
	roundTripAllOrders(t, []int64{-1, 2, -1 << 40, 1 << 40, -1 << 63, 1<<63 - 1}, shape)
	roundTripAllOrders(t, []uint8{0, 1, 2, 3, 254, 255}, shape)
	roundTripAllOrders(t, []uint16{0, 1, 2, 3, 0x1234, 0xFFFF}, shape)
	roundTripAllOrders(t, []uint32{0, 1, 2, 3, 0x12345678, 0xFFFFFFFF}, shape)
	roundTripAllOrders(t, []uint64{0, 1, 2, 3, 0x0102030405060708, 1<<64 - 1}, shape)
	roundTripAllOrders(t, []Float16{0x3C00, 0xC000, 0x3800, 0x7BFF, 0x0001, 0x8000}, shape)
	roundTripAllOrders(t, []float32{0, -1.5, 3.25, 1e30, -1e-30, 7}, shape)
	roundTripAllOrders(t, []float64{0, -1.5, 3.25, 1e300, -1e-300, 7}, shape)
	roundTripAllOrders(t, []complex64{1 + 2i, -3 - 4i, 0, 5i, 6, -7.5 + 0.25i}, shape)
	roundTripAllOrders(t, []complex128{1 + 2i, -3 - 4i, 0, 5i, 6, -7.5 + 0.25i}, shape)
}

func TestRoundTripShapes(t *testing.T) {
	t.Parallel()
	roundTripAllOrders(t, []float64{3.5}, []int{})
	roundTripAllOrders(t, []int16{}, []int{0})
	roundTripAllOrders(t, []int16{}, []int{3, 0, 2})
	roundTripAllOrders(t, []uint32{1, 2, 3, 4, 5}, []int{5})
	values := make([]float32, 2*3*4)
	for i := range values {
		values[i] = float32(i) / 4
	}
	roundTripAllOrders(t, values, []int{2, 3, 4})
}

func TestScalarHeader(t *testing.T) {
	t.Parallel()
	a, err := FromSlice([]int64{42}, []int{}, RowMajor)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a, WithByteOrder(OrderLittle)))
	h, _, _, err := ReadHeader(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, "{'descr': '<i8', 'fortran_order': False, 'shape': ()}", h.String())
}

func TestWriteBigEndianBytes(t *testing.T) {
	t.Parallel()
	a, err := FromSlice([]int32{1, 2}, nil, RowMajor)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a, WithByteOrder(OrderBig)))

	h, _, n, err := ReadHeader(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, ">i4", h.Descr.String())
	assert.Equal(t, []byte{0, 0, 0, 1, 0, 0, 0, 2}, buf.Bytes()[n:])

	c, err := FromSlice([]complex64{1 + 2i}, nil, RowMajor)
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, Write(&buf, c, WithByteOrder(OrderBig)))
	_, _, n, err = ReadHeader(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3F, 0x80, 0, 0, 0x40, 0, 0, 0}, buf.Bytes()[n:])
}

func TestWriteSmallChunks(t *testing.T) {
	t.Parallel()
	values := make([]uint64, 1000)
	for i := range values {
		values[i] = uint64(i) * 0x0101010101
	}
	for _, chunk := range []int{1, 7, 8, 24, 4096} {
		roundTrip(t, values, nil, RowMajor, WithByteOrder(foreignOrder()), WithChunkSize(chunk))
	}
}

func TestWriteMinVersion(t *testing.T) {
	t.Parallel()
	a, err := FromSlice([]float32{1, 2}, nil, RowMajor)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a, WithMinVersion(Version2)))
	_, v, _, err := ReadHeader(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, Version2, v)
}

func TestReadNumPyBytes(t *testing.T) {
	t.Parallel()
	data := []byte{0, 0, 0, 1, 0, 0, 0, 2, 0xFF, 0xFF, 0xFF, 0xFF}
	raw := rawContainer(1, 0, "{'descr': '>i4', 'fortran_order': True, 'shape': (3,), }", data)
	a, err := ReadAs[int32](bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, ColumnMajor, a.Order())
	v, err := Values[int32](a)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, -1}, v)
}

func TestReadTypeMismatch(t *testing.T) {
	t.Parallel()
	a, err := FromSlice([]float32{1, 2, 3}, nil, RowMajor)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a))

	_, err = ReadAs[int64](bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = ReadAs[float64](bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	got, err := Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	_, err = Values[int32](got)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestReadSizeOverflow(t *testing.T) {
	t.Parallel()
	h := Header{Descr: Descriptor{OrderLittle, KindFloat, 8}, Shape: []int{1 << 62, 1 << 62}}
	pre, _, err := h.Encode(0)
	require.NoError(t, err)
	_, err = Read(bytes.NewReader(pre))
	assert.ErrorIs(t, err, ErrSizeOverflow)

	// 2^61 elements of 8 bytes overflows int64 on its own.
	h.Shape = []int{1 << 61}
	pre, _, err = h.Encode(0)
	require.NoError(t, err)
	_, err = Read(bytes.NewReader(pre))
	assert.ErrorIs(t, err, ErrSizeOverflow)
}

func TestReadTruncated(t *testing.T) {
	t.Parallel()
	a, err := FromSlice([]float64{1, 2, 3, 4}, nil, RowMajor)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a))
	raw := buf.Bytes()[:buf.Len()-1]

	_, err = Read(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	// A reader that cannot report its length fails on the data read.
	_, err = Read(io.MultiReader(bytes.NewReader(raw)))
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	// A large declared shape with no data fails before allocating.
	h := Header{Descr: Descriptor{OrderLittle, KindFloat, 8}, Shape: []int{1 << 40}}
	pre, _, err := h.Encode(0)
	require.NoError(t, err)
	_, err = Read(bytes.NewReader(pre))
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestReadUnverifiedLengthDoesNotTrustShape(t *testing.T) {
	t.Parallel()
	h := Header{Descr: Descriptor{OrderNotApplicable, KindUint, 1}, Shape: []int{1 << 50}}
	pre, _, err := h.Encode(0)
	require.NoError(t, err)
	payload := bytes.Repeat([]byte{7}, 16)

	// Neither Len nor Seek is available.
	_, err = Read(io.MultiReader(bytes.NewReader(pre), bytes.NewReader(payload)))
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	// A frame size that overstates the content is not trusted either.
	lying := WithFraming(int64(len(pre)) + 1<<50)
	_, err = Read(io.MultiReader(bytes.NewReader(pre), bytes.NewReader(payload)), lying)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	// A seekable source caps the frame and fails before reading data.
	_, err = Read(bytes.NewReader(append(pre, payload...)), lying)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestReadUnknownLengthLargeArray(t *testing.T) {
	t.Parallel()
	values := make([]uint16, 3*DefaultChunkSize+5)
	for i := range values {
		values[i] = uint16(i)
	}
	a, err := FromSlice(values, nil, RowMajor)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a, WithByteOrder(foreignOrder())))

	got, err := ReadAs[uint16](io.MultiReader(&buf))
	require.NoError(t, err)
	vals, err := Values[uint16](got)
	require.NoError(t, err)
	assert.Equal(t, values, vals)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestReadPassesThroughIOErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk on fire")
	_, err := Read(errReader{boom})
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsFormatError(err))

	_, err = Read(bytes.NewReader([]byte("not a container at all")))
	assert.True(t, IsFormatError(err))
}

func TestReadSequential(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	for i := range 3 {
		a, err := FromSlice([]int16{int16(i), int16(i + 1)}, nil, RowMajor)
		require.NoError(t, err)
		require.NoError(t, Write(&buf, a))
	}
	r := bytes.NewReader(buf.Bytes())
	for i := range 3 {
		a, err := ReadAs[int16](r)
		require.NoError(t, err)
		v, err := Values[int16](a)
		require.NoError(t, err)
		assert.Equal(t, []int16{int16(i), int16(i + 1)}, v)
	}
	_, err := Read(r)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestReadExcessPolicy(t *testing.T) {
	t.Parallel()
	a, err := FromSlice([]uint8{1, 2, 3}, nil, RowMajor)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a))
	buf.WriteString("xyz")
	raw := buf.Bytes()
	frame := WithFraming(int64(len(raw)))

	_, err = Read(bytes.NewReader(raw), frame, WithExcessPolicy(ExcessError))
	assert.ErrorIs(t, err, ErrTrailingData)

	var logs bytes.Buffer
	got, err := Read(bytes.NewReader(raw), frame, WithLogger(logger.Text(&logs, slog.LevelWarn)))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got.Bytes())
	assert.Contains(t, logs.String(), "trailing bytes")
	assert.Contains(t, logs.String(), "excess=3")

	logs.Reset()
	_, err = Read(bytes.NewReader(raw), frame, WithExcessPolicy(ExcessIgnore), WithLogger(logger.Text(&logs, slog.LevelWarn)))
	require.NoError(t, err)
	assert.Zero(t, logs.Len())

	// Unframed reads leave the rest of the stream alone.
	r := bytes.NewReader(raw)
	_, err = Read(r, WithExcessPolicy(ExcessError))
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	// Framed reads drain the source.
	r = bytes.NewReader(raw)
	_, err = Read(r, frame, WithExcessPolicy(ExcessIgnore))
	require.NoError(t, err)
	assert.Zero(t, r.Len())
}

func TestExcessPolicyParse(t *testing.T) {
	t.Parallel()
	for _, p := range []ExcessPolicy{ExcessWarn, ExcessIgnore, ExcessError} {
		got, err := ParseExcessPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParseExcessPolicy("panic")
	assert.Error(t, err)
}

func TestReadInvalidBool(t *testing.T) {
	t.Parallel()
	a, err := NewDense(DTypeBool, []int{3}, RowMajor, []byte{0, 1, 2})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a))
	_, err = Read(bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestReadMaxHeaderSize(t *testing.T) {
	t.Parallel()
	a, err := FromSlice([]float64{1}, nil, RowMajor)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a))
	_, err = Read(bytes.NewReader(buf.Bytes()), WithMaxHeaderSize(32))
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

type badArray struct{}

func (badArray) DType() DType  { return DTypeFloat64 }
func (badArray) Shape() []int  { return []int{4} }
func (badArray) Order() Order  { return RowMajor }
func (badArray) Bytes() []byte { return make([]byte, 16) }

func TestWriteInvalidArray(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := Write(&buf, badArray{})
	assert.ErrorIs(t, err, ErrInvalidArray)
	assert.Zero(t, buf.Len())

	_, err = NewDense(DTypeInt32, []int{2}, RowMajor, make([]byte, 7))
	assert.ErrorIs(t, err, ErrInvalidArray)
	_, err = NewDense(DTypeInvalid, []int{2}, RowMajor, nil)
	assert.ErrorIs(t, err, ErrInvalidArray)
	_, err = NewDense(DTypeInt8, []int{-2}, RowMajor, nil)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestDataLen(t *testing.T) {
	t.Parallel()
	n, err := DataLen([]int{2, 3, 4}, 8)
	require.NoError(t, err)
	assert.Equal(t, 192, n)

	n, err = DataLen(nil, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = DataLen([]int{1 << 62, 1 << 62, 0}, 8)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = DataLen([]int{1 << 62, 4}, 1)
	assert.ErrorIs(t, err, ErrSizeOverflow)

	n, err = NumElements([]int{5, 5})
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestDenseOffset(t *testing.T) {
	t.Parallel()
	c, err := FromSlice(make([]int8, 6), []int{2, 3}, RowMajor)
	require.NoError(t, err)
	f, err := FromSlice(make([]int8, 6), []int{2, 3}, ColumnMajor)
	require.NoError(t, err)

	off, err := c.Offset(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, off)
	off, err = f.Offset(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, off)
	off, err = f.Offset(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, off)

	_, err = c.Offset(2, 0)
	assert.Error(t, err)
	_, err = c.Offset(0)
	assert.Error(t, err)
	assert.Equal(t, 6, c.Len())
}

func TestDenseShapeIsCopied(t *testing.T) {
	t.Parallel()
	shape := []int{2, 2}
	a, err := FromSlice([]float32{1, 2, 3, 4}, shape, RowMajor)
	require.NoError(t, err)
	shape[0] = 9
	got := a.Shape()
	assert.Equal(t, []int{2, 2}, got)
	got[1] = 7
	assert.Equal(t, []int{2, 2}, a.Shape())
}
