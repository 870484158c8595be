package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"go.ngs.io/hptrack/internal/adapter/zarr/blosc"
	"go.ngs.io/hptrack/internal/domain"
)

// GridShape returns the number of chunks along each dimension.
func GridShape(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey returns the key of the chunk at grid position idx. A 0-d array
// has the single chunk "0".
func ChunkKey(idx []int, sep string) string {
	if len(idx) == 0 {
		return "0"
	}
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, sep)
}

// encodeElements serialises values little-endian as dtype. NaN becomes zero
// in integer types.
func encodeElements(values []float64, dtype domain.DType) ([]byte, error) {
	size := dtype.Size()
	buf := make([]byte, len(values)*size)
	le := binary.LittleEndian
	for i, v := range values {
		b := buf[i*size:]
		switch dtype {
		case domain.Float16:
			le.PutUint16(b, float32ToHalf(float32(v)))
		case domain.Float32:
			le.PutUint32(b, math.Float32bits(float32(v)))
		case domain.Float64:
			le.PutUint64(b, math.Float64bits(v))
		case domain.Int8:
			b[0] = byte(int8(intOrZero(v)))
		case domain.Uint8:
			b[0] = byte(intOrZero(v))
		case domain.Int16:
			le.PutUint16(b, uint16(int16(intOrZero(v))))
		case domain.Uint16:
			le.PutUint16(b, uint16(intOrZero(v)))
		case domain.Int32:
			le.PutUint32(b, uint32(int32(intOrZero(v))))
		case domain.Uint32:
			le.PutUint32(b, uint32(intOrZero(v)))
		case domain.Int64:
			le.PutUint64(b, uint64(intOrZero(v)))
		case domain.Uint64:
			le.PutUint64(b, uint64(intOrZero(v)))
		default:
			return nil, fmt.Errorf("unsupported dtype %q", dtype)
		}
	}
	return buf, nil
}

func intOrZero(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(v)
}

// decodeElements parses n elements of dtype.
func decodeElements(b []byte, dtype domain.DType, order binary.ByteOrder, n int) ([]float64, error) {
	size := dtype.Size()
	if len(b) < n*size {
		return nil, fmt.Errorf("chunk has %d bytes, want %d", len(b), n*size)
	}
	out := make([]float64, n)
	for i := range out {
		e := b[i*size:]
		switch dtype {
		case domain.Float16:
			out[i] = float64(halfToFloat32(order.Uint16(e)))
		case domain.Float32:
			out[i] = float64(math.Float32frombits(order.Uint32(e)))
		case domain.Float64:
			out[i] = math.Float64frombits(order.Uint64(e))
		case domain.Int8:
			out[i] = float64(int8(e[0]))
		case domain.Uint8:
			out[i] = float64(e[0])
		case domain.Int16:
			out[i] = float64(int16(order.Uint16(e)))
		case domain.Uint16:
			out[i] = float64(order.Uint16(e))
		case domain.Int32:
			out[i] = float64(int32(order.Uint32(e)))
		case domain.Uint32:
			out[i] = float64(order.Uint32(e))
		case domain.Int64:
			out[i] = float64(int64(order.Uint64(e)))
		case domain.Uint64:
			out[i] = float64(order.Uint64(e))
		default:
			return nil, fmt.Errorf("unsupported dtype %q", dtype)
		}
	}
	return out, nil
}

// halfToFloat32 converts an IEEE 754 binary16 value.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff
	switch {
	case exp == 0 && frac == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal.
		v := float32(frac) / 1024 * float32(math.Pow(2, -14))
		if sign != 0 {
			return -v
		}
		return v
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
}

// float32ToHalf converts to binary16 with round-to-nearest-even.
func float32ToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	frac := bits & 0x7fffff

	switch {
	case bits&0x7fffffff > 0x7f800000:
		return sign | 0x7e00
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		frac |= 0x800000
		shift := uint32(14 - exp)
		half := frac >> shift
		rem := frac & (1<<shift - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || (rem == mid && half&1 == 1) {
			half++
		}
		return sign | uint16(half)
	}
	half := uint32(exp)<<10 | frac>>13
	rem := frac & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && half&1 == 1) {
		half++
	}
	return sign | uint16(half)
}

// compress applies the array compressor to a raw chunk.
func compress(c *Compressor, raw []byte, typesize int) ([]byte, error) {
	if c == nil {
		return raw, nil
	}
	switch c.ID {
	case "blosc":
		return blosc.Compress(raw, typesize, blosc.Options{
			Codec:   blosc.Codec(c.Cname),
			Level:   c.Clevel,
			Shuffle: blosc.Shuffle(c.Shuffle),
		})
	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.Level)))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case "zlib":
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, c.Level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported compressor %q", c.ID)
}

// decompress reverses compress and also reads gzip chunks.
func decompress(c *Compressor, data []byte) ([]byte, error) {
	if c == nil {
		return data, nil
	}
	switch c.ID {
	case "blosc":
		return blosc.Decompress(data)
	case "zstd":
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case "zlib":
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return nil, fmt.Errorf("unsupported compressor %q", c.ID)
}
