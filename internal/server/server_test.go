package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zip"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/npyz/pkg/npy"
	"github.com/samcharles93/npyz/pkg/npz"
)

func testArchive(t *testing.T) *npz.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	addArray := func(name string, a npy.Array, opts ...npy.WriteOption) {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		require.NoError(t, npy.Write(fw, a, opts...))
	}

	a, err := npy.FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3}, npy.RowMajor)
	require.NoError(t, err)
	addArray("weights.npy", a, npy.WithByteOrder(npy.OrderLittle))

	b, err := npy.FromSlice([]int16{7}, []int{}, npy.ColumnMajor)
	require.NoError(t, err)
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: "bias", Method: zip.Store})
	require.NoError(t, err)
	require.NoError(t, npy.Write(fw, b))

	fw, err = zw.Create("README")
	require.NoError(t, err)
	_, err = fw.Write([]byte("hello"))
	require.NoError(t, err)

	c, err := npy.FromSlice([]uint8{4, 5}, nil, npy.RowMajor)
	require.NoError(t, err)
	addArray("layers/0/w.npy", c)
	require.NoError(t, zw.Close())

	r, err := npz.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return r
}

func newTestEcho(t *testing.T, cfg Config) *echo.Echo {
	t.Helper()
	e := echo.New()
	New(testArchive(t), cfg).Register(e)
	return e
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListArrays(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, Config{})
	rec := get(e, "/v1/arrays")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Object string         `json:"object"`
		Data   []ArraySummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "list", body.Object)
	require.Len(t, body.Data, 4)

	assert.Equal(t, "weights.npy", body.Data[0].Name)
	assert.Equal(t, "<f4", body.Data[0].Descr)
	assert.Equal(t, "float32", body.Data[0].DType)
	assert.Equal(t, []int{2, 3}, body.Data[0].Shape)
	assert.Equal(t, 6, body.Data[0].Elements)
	assert.True(t, body.Data[0].Compressed)
	assert.Equal(t, "1.0", body.Data[0].Version)

	assert.Equal(t, "bias", body.Data[1].Name)
	assert.True(t, body.Data[1].FortranOrder)
	assert.Equal(t, 1, body.Data[1].Elements)
	assert.False(t, body.Data[1].Compressed)

	assert.Equal(t, "README", body.Data[2].Name)
	assert.NotEmpty(t, body.Data[2].Error)

	assert.Equal(t, "layers/0/w.npy", body.Data[3].Name)
}

func TestGetHeader(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, Config{})

	rec := get(e, "/v1/arrays/weights.npy")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum ArraySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "<f4", sum.Descr)

	rec = get(e, "/v1/arrays/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found_error")

	rec = get(e, "/v1/arrays/README")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_array_error")
}

func TestDownloadRaw(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, Config{})
	rec := get(e, "/v1/arrays/weights.npy/npy")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, echo.MIMEOctetStream, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="weights.npy"`)

	a, err := npy.ReadAs[float32](bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	v, err := npy.Values[float32](a)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, v)

	rec = get(e, "/v1/arrays/nope/npy")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNestedMemberNames(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, Config{})

	rec := get(e, "/v1/arrays/layers/0/w.npy")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum ArraySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "layers/0/w.npy", sum.Name)
	assert.Equal(t, []int{2}, sum.Shape)

	rec = get(e, "/v1/arrays/layers/0/w.npy/npy")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="w.npy"`)
	a, err := npy.ReadAs[uint8](bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, a.Bytes())

	rec = get(e, "/v1/arrays/layers/1/w.npy")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadReencoded(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, Config{})
	rec := get(e, "/v1/arrays/weights.npy/npy?byte_order=big")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	h, _, _, err := npy.ReadHeader(bytes.NewReader(rec.Body.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, ">f4", h.Descr.String())

	a, err := npy.ReadAs[float32](bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	v, err := npy.Values[float32](a)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, v)

	rec = get(e, "/v1/arrays/bias/npy?byte_order=sideways")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(e, "/v1/arrays/README/npy?byte_order=little")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, Config{RequestsPerSecond: 0.001, Burst: 1})
	assert.Equal(t, http.StatusOK, get(e, "/v1/arrays").Code)
	rec := get(e, "/v1/arrays")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate_limit_error")

	// Version is not limited.
	assert.Equal(t, http.StatusOK, get(e, "/v1/version").Code)
}

func TestVersion(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, Config{})
	rec := get(e, "/v1/version")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"format":"3.0"`)
}
