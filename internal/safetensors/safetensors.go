// Package safetensors reads .safetensors weight files so their tensors can
// be re-encoded as .npy arrays.
package safetensors

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/samcharles93/npyz/pkg/npy"
)

// MaxHeaderSize caps the JSON header read from a file.
const MaxHeaderSize = 100 << 20

var (
	ErrHeaderTooLarge    = errors.New("safetensors: header too large")
	ErrInvalidHeader     = errors.New("safetensors: invalid header")
	ErrTensorNotFound    = errors.New("safetensors: tensor not found")
	ErrUnsupportedDType  = errors.New("safetensors: unsupported dtype")
	ErrInvalidDataOffset = errors.New("safetensors: invalid data offsets")
)

// dtypes maps safetensors element types onto npy types. Data is always
// little-endian.
var dtypes = map[string]npy.DType{
	"BOOL": npy.DTypeBool,
	"U8":   npy.DTypeUint8,
	"I8":   npy.DTypeInt8,
	"U16":  npy.DTypeUint16,
	"I16":  npy.DTypeInt16,
	"U32":  npy.DTypeUint32,
	"I32":  npy.DTypeInt32,
	"U64":  npy.DTypeUint64,
	"I64":  npy.DTypeInt64,
	"F16":  npy.DTypeFloat16,
	"F32":  npy.DTypeFloat32,
	"F64":  npy.DTypeFloat64,
	"BF16": npy.DTypeFloat32, // widened on read
}

type TensorInfo struct {
	Name  string
	DType string
	Shape []int
	Start int64
	End   int64
}

// File is an open safetensors file. Tensors are listed in data order.
type File struct {
	f         *os.File
	size      int64
	dataStart int64
	tensors   []TensorInfo
	index     map[string]int
	Metadata  map[string]string
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	file, err := newFile(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

func newFile(f *os.File) (*File, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header length: %v", ErrInvalidHeader, err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	if headerLen > MaxHeaderSize || int64(headerLen) > st.Size()-8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	file := &File{
		f:         f,
		size:      st.Size(),
		dataStart: int64(8 + headerLen),
		index:     make(map[string]int, len(raw)),
	}
	if meta, ok := raw["__metadata__"]; ok {
		if err := json.Unmarshal(meta, &file.Metadata); err != nil {
			return nil, fmt.Errorf("%w: __metadata__: %v", ErrInvalidHeader, err)
		}
		delete(raw, "__metadata__")
	}

	dataLen := file.size - file.dataStart
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidHeader, name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[0] < 0 || th.DataOffsets[1] < th.DataOffsets[0] || th.DataOffsets[1] > dataLen {
			return nil, fmt.Errorf("%w: tensor %s", ErrInvalidDataOffset, name)
		}
		file.tensors = append(file.tensors, TensorInfo{
			Name:  name,
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		})
	}
	sort.Slice(file.tensors, func(i, j int) bool {
		if file.tensors[i].Start != file.tensors[j].Start {
			return file.tensors[i].Start < file.tensors[j].Start
		}
		return file.tensors[i].Name < file.tensors[j].Name
	})
	for i, t := range file.tensors {
		file.index[t.Name] = i
	}
	return file, nil
}

// Tensors returns tensor metadata ordered by data offset.
func (f *File) Tensors() []TensorInfo {
	return append([]TensorInfo(nil), f.tensors...)
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	i, ok := f.index[name]
	if !ok {
		return TensorInfo{}, false
	}
	return f.tensors[i], true
}

// ReadArray loads a tensor as an npy array. BF16 tensors are widened to
// float32 since the .npy format has no bfloat16 type.
func (f *File) ReadArray(name string) (*npy.Dense, error) {
	t, ok := f.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	dt, ok := dtypes[t.DType]
	if !ok {
		return nil, fmt.Errorf("%w: %s (tensor %s)", ErrUnsupportedDType, t.DType, name)
	}
	width := dt.Size()
	if t.DType == "BF16" {
		width = 2
	}
	want, err := npy.DataLen(t.Shape, width)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	if int64(want) != t.End-t.Start {
		return nil, fmt.Errorf("%w: tensor %s holds %d bytes, shape needs %d", ErrInvalidDataOffset, name, t.End-t.Start, want)
	}

	raw := make([]byte, want)
	if want > 0 {
		if _, err := f.f.ReadAt(raw, f.dataStart+t.Start); err != nil {
			return nil, fmt.Errorf("read tensor %s: %w", name, err)
		}
	}

	switch {
	case t.DType == "BF16":
		raw = widenBF16(raw)
	case width > 1 && npy.NativeOrder() == npy.OrderBig:
		// Decode through a little-endian container so the codec swaps it.
		return decodeLittle(dt, t.Shape, raw)
	}
	return npy.NewDense(dt, t.Shape, npy.RowMajor, raw)
}

func decodeLittle(dt npy.DType, shape []int, raw []byte) (*npy.Dense, error) {
	h := npy.Header{Descr: npy.DescriptorFor(dt).WithOrder(npy.OrderLittle), Shape: shape}
	pre, _, err := h.Encode(npy.Version1)
	if err != nil {
		return nil, err
	}
	return npy.Read(io.MultiReader(bytes.NewReader(pre), bytes.NewReader(raw)))
}

// widenBF16 converts little-endian bfloat16 values to native float32 bytes.
func widenBF16(raw []byte) []byte {
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
	}
	b, _ := npy.FromSlice(out, nil, npy.RowMajor)
	return b.Bytes()
}

func (f *File) Close() error {
	return f.f.Close()
}
