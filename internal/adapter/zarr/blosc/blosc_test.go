package blosc

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float32Bytes(n int) []byte {
	buf := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		v := float32(math.Sin(float64(i)/50) * 10)
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func TestCompress_RoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"smooth floats":     float32Bytes(4096),
		"odd element count": float32Bytes(1003),
		"single element":    float32Bytes(1),
		"empty":             {},
	}
	for name, src := range inputs {
		for _, codec := range []Codec{Zstd, Zlib, LZ4} {
			for _, sh := range []Shuffle{NoShuffle, ByteShuffle, BitShuffle} {
				frame, err := Compress(src, 4, Options{Codec: codec, Level: 5, Shuffle: sh})
				require.NoError(t, err, "%s %s %d", name, codec, sh)

				h, err := ReadHeader(frame)
				require.NoError(t, err)
				assert.Equal(t, len(src), h.NBytes)
				assert.Equal(t, len(frame), h.CBytes)
				assert.Equal(t, 4, h.TypeSize)

				got, err := Decompress(frame)
				require.NoError(t, err, "%s %s %d", name, codec, sh)
				assert.Equal(t, src, got, "%s %s %d", name, codec, sh)
			}
		}
	}
}

func TestCompress_SmallerWithShuffle(t *testing.T) {
	src := float32Bytes(1 << 14)
	frame, err := Compress(src, 4, Options{Codec: Zstd, Level: 5, Shuffle: BitShuffle})
	require.NoError(t, err)
	assert.Less(t, len(frame), len(src))

	h, err := ReadHeader(frame)
	require.NoError(t, err)
	assert.Zero(t, h.Flags&flagMemcpyed)
	assert.NotZero(t, h.Flags&flagBitShuffle)
	c, err := h.Codec()
	require.NoError(t, err)
	assert.Equal(t, Zstd, c)
}

func TestCompress_IncompressibleIsMemcpyed(t *testing.T) {
	src := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(src)

	frame, err := Compress(src, 8, Options{Codec: Zstd, Level: 5, Shuffle: ByteShuffle})
	require.NoError(t, err)
	assert.Len(t, frame, headerSize+len(src))

	h, err := ReadHeader(frame)
	require.NoError(t, err)
	assert.NotZero(t, h.Flags&flagMemcpyed)

	got, err := Decompress(frame)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestCompress_UnknownCodec(t *testing.T) {
	_, err := Compress([]byte{1}, 1, Options{Codec: "snappy"})
	assert.Error(t, err)
}

// TestDecompress_SplitRawStreams decodes a hand-built frame with two
// blocks, the first split per byte plane and stored raw.
func TestDecompress_SplitRawStreams(t *testing.T) {
	const typesize = 2
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	blocksize := 8

	block0 := shuffle(typesize, src[:blocksize])
	block1 := shuffle(typesize, src[blocksize:])

	var frame []byte
	frame = append(frame, make([]byte, headerSize+8)...)
	start0 := len(frame)
	for s := 0; s < typesize; s++ {
		frame = binary.LittleEndian.AppendUint32(frame, uint32(blocksize/typesize))
		frame = append(frame, block0[s*4:(s+1)*4]...)
	}
	start1 := len(frame)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(block1)))
	frame = append(frame, block1...)

	writeHeader(frame, flagShuffle|codecFormats[Zstd]<<5, typesize, len(src), blocksize, len(frame))
	binary.LittleEndian.PutUint32(frame[headerSize:], uint32(start0))
	binary.LittleEndian.PutUint32(frame[headerSize+4:], uint32(start1))

	got, err := Decompress(frame)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestDecompress_Corrupt(t *testing.T) {
	_, err := Decompress([]byte{2, 1, 0})
	assert.True(t, errors.Is(err, ErrCorrupt))

	frame, err := Compress(float32Bytes(1024), 4, Options{Codec: Zstd, Level: 5, Shuffle: BitShuffle})
	require.NoError(t, err)
	_, err = Decompress(frame[:len(frame)-10])
	assert.Error(t, err)
}

func TestShuffle(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6, 7}
	got := shuffle(2, src)
	assert.Equal(t, []byte{1, 3, 5, 2, 4, 6, 7}, got)

	back := make([]byte, len(src))
	unshuffle(2, got, back)
	assert.Equal(t, src, back)
}

func TestBitShuffle(t *testing.T) {
	src := []byte{1, 0, 0, 0, 0, 0, 0, 0}
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, bitshuffle(1, src))

	src = []byte{0xff, 0, 0, 0, 0, 0, 0, 0x80}
	assert.Equal(t, []byte{1, 1, 1, 1, 1, 1, 1, 0x81}, bitshuffle(1, src))

	data := float32Bytes(37)
	back := make([]byte, len(data))
	bitunshuffle(4, bitshuffle(4, data), back)
	assert.Equal(t, data, back)
}

func TestCompress_LZ4Stream(t *testing.T) {
	src := float32Bytes(1 << 12)
	frame, err := Compress(src, 4, Options{Codec: LZ4, Level: 5, Shuffle: ByteShuffle})
	require.NoError(t, err)
	assert.Less(t, len(frame), len(src))

	h, err := ReadHeader(frame)
	require.NoError(t, err)
	assert.Zero(t, h.Flags&flagMemcpyed)
	c, err := h.Codec()
	require.NoError(t, err)
	assert.Equal(t, LZ4, c)

	got, err := Decompress(frame)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}
