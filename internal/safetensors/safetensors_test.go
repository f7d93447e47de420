package safetensors

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/npyz/pkg/npy"
)

type testTensor struct {
	name  string
	dtype string
	shape []int
	data  []byte
}

// writeFile lays tensors out back to back in the given order.
func writeFile(t *testing.T, tensors []testTensor, meta map[string]string) string {
	t.Helper()
	header := map[string]any{}
	if meta != nil {
		header["__metadata__"] = meta
	}
	var data []byte
	for _, tt := range tensors {
		start := len(data)
		data = append(data, tt.data...)
		header[tt.name] = tensorHeader{DType: tt.dtype, Shape: tt.shape, DataOffsets: []int64{int64(start), int64(len(data))}}
	}
	hb, err := json.Marshal(header)
	require.NoError(t, err)

	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(hb)))
	buf = append(buf, hb...)
	buf = append(buf, data...)
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func f32le(vals ...float32) []byte {
	var out []byte
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func TestOpenListsTensorsInDataOrder(t *testing.T) {
	t.Parallel()
	path := writeFile(t, []testTensor{
		{name: "z.weight", dtype: "F32", shape: []int{2}, data: f32le(1, 2)},
		{name: "a.bias", dtype: "I8", shape: []int{3}, data: []byte{1, 2, 3}},
	}, map[string]string{"format": "pt"})

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	tensors := f.Tensors()
	require.Len(t, tensors, 2)
	assert.Equal(t, "z.weight", tensors[0].Name)
	assert.Equal(t, "a.bias", tensors[1].Name)
	assert.Equal(t, int64(8), tensors[1].Start)
	assert.Equal(t, "pt", f.Metadata["format"])

	_, ok := f.Tensor("missing")
	assert.False(t, ok)
}

func TestReadArray(t *testing.T) {
	t.Parallel()
	i16 := binary.LittleEndian.AppendUint16(nil, 0xfffe)
	i16 = binary.LittleEndian.AppendUint16(i16, 7)
	path := writeFile(t, []testTensor{
		{name: "w", dtype: "F32", shape: []int{2, 2}, data: f32le(1, -2, 3.5, 0)},
		{name: "idx", dtype: "I16", shape: []int{2}, data: i16},
		{name: "mask", dtype: "BOOL", shape: []int{3}, data: []byte{1, 0, 1}},
		{name: "empty", dtype: "F64", shape: []int{0, 4}, data: nil},
		{name: "scalar", dtype: "U8", shape: []int{}, data: []byte{9}},
	}, nil)

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := f.ReadArray("w")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, w.Shape())
	vals, err := npy.Values[float32](w)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2, 3.5, 0}, vals)

	idx, err := f.ReadArray("idx")
	require.NoError(t, err)
	ints, err := npy.Values[int16](idx)
	require.NoError(t, err)
	assert.Equal(t, []int16{-2, 7}, ints)

	mask, err := f.ReadArray("mask")
	require.NoError(t, err)
	bools, err := npy.Values[bool](mask)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, bools)

	empty, err := f.ReadArray("empty")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, npy.DTypeFloat64, empty.DType())

	scalar, err := f.ReadArray("scalar")
	require.NoError(t, err)
	assert.Empty(t, scalar.Shape())
	assert.Equal(t, []byte{9}, scalar.Bytes())
}

func TestReadArrayWidensBF16(t *testing.T) {
	t.Parallel()
	var raw []byte
	for _, v := range []float32{1, -0.5, 256} {
		raw = binary.LittleEndian.AppendUint16(raw, uint16(math.Float32bits(v)>>16))
	}
	path := writeFile(t, []testTensor{{name: "h", dtype: "BF16", shape: []int{3}, data: raw}}, nil)

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	a, err := f.ReadArray("h")
	require.NoError(t, err)
	vals, err := npy.Values[float32](a)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -0.5, 256}, vals)
}

func TestReadArrayErrors(t *testing.T) {
	t.Parallel()
	path := writeFile(t, []testTensor{
		{name: "f8", dtype: "F8_E4M3", shape: []int{2}, data: []byte{1, 2}},
		{name: "short", dtype: "F32", shape: []int{3}, data: f32le(1, 2)},
	}, nil)

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.ReadArray("nope")
	assert.ErrorIs(t, err, ErrTensorNotFound)
	_, err = f.ReadArray("f8")
	assert.ErrorIs(t, err, ErrUnsupportedDType)
	_, err = f.ReadArray("short")
	assert.ErrorIs(t, err, ErrInvalidDataOffset)
}

func TestOpenRejectsBadFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	write := func(name string, b []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, b, 0o644))
		return p
	}
	withHeader := func(h string, data int) []byte {
		b := binary.LittleEndian.AppendUint64(nil, uint64(len(h)))
		b = append(b, h...)
		return append(b, make([]byte, data)...)
	}

	_, err := Open(write("short", []byte{1, 2}))
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = Open(write("huge", binary.LittleEndian.AppendUint64(nil, 1<<40)))
	assert.ErrorIs(t, err, ErrHeaderTooLarge)

	_, err = Open(write("json", withHeader("{not json", 0)))
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = Open(write("offsets", withHeader(`{"w":{"dtype":"F32","shape":[1],"data_offsets":[0,8]}}`, 4)))
	assert.ErrorIs(t, err, ErrInvalidDataOffset)

	_, err = Open(write("reversed", withHeader(`{"w":{"dtype":"F32","shape":[1],"data_offsets":[4,0]}}`, 4)))
	assert.ErrorIs(t, err, ErrInvalidDataOffset)

	_, err = Open(filepath.Join(dir, "absent"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
