// Package blosc reads and writes Blosc1 compressed frames as produced by
// numcodecs.Blosc.
package blosc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Shuffle selects the pre-compression filter.
type Shuffle int

// Shuffle modes, numbered like numcodecs.
const (
	NoShuffle   Shuffle = 0
	ByteShuffle Shuffle = 1
	BitShuffle  Shuffle = 2
)

// Codec identifies the inner compressor.
type Codec string

// Supported inner compressors.
const (
	LZ4  Codec = "lz4"
	Zlib Codec = "zlib"
	Zstd Codec = "zstd"
)

const (
	headerSize    = 16
	formatVersion = 2

	flagShuffle    = 0x01
	flagMemcpyed   = 0x02
	flagBitShuffle = 0x04
	flagNoSplit    = 0x10

	maxSplits = 16
)

var codecFormats = map[Codec]byte{
	LZ4:  1,
	Zlib: 3,
	Zstd: 4,
}

// ErrCorrupt is returned for frames that cannot be decoded.
var ErrCorrupt = errors.New("blosc: corrupt frame")

// Options configures Compress.
type Options struct {
	Codec   Codec
	Level   int
	Shuffle Shuffle
}

var (
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func zstdDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil)
	})
	return decoder, decoderErr
}

// Compress encodes src as a single-block Blosc1 frame. typesize is the
// element width used by the shuffle filters.
func Compress(src []byte, typesize int, opts Options) ([]byte, error) {
	if typesize < 1 || typesize > 255 {
		typesize = 1
	}
	format, ok := codecFormats[opts.Codec]
	if !ok {
		return nil, fmt.Errorf("blosc: unsupported codec %q", opts.Codec)
	}

	flags := byte(flagNoSplit) | format<<5
	block := src
	switch opts.Shuffle {
	case ByteShuffle:
		flags |= flagShuffle
		if typesize > 1 {
			block = shuffle(typesize, src)
		}
	case BitShuffle:
		flags |= flagBitShuffle
		if len(src) >= typesize {
			block = bitshuffle(typesize, src)
		}
	}

	compressed, err := encode(opts.Codec, opts.Level, block)
	if err != nil {
		return nil, err
	}

	nbytes := len(src)
	if len(src) == 0 || len(compressed) >= nbytes {
		out := make([]byte, headerSize+nbytes)
		writeHeader(out, flags|flagMemcpyed, typesize, nbytes, nbytes, len(out))
		copy(out[headerSize:], src)
		return out, nil
	}

	// Header, one block start, one stream size, stream.
	out := make([]byte, headerSize+4+4+len(compressed))
	writeHeader(out, flags, typesize, nbytes, nbytes, len(out))
	binary.LittleEndian.PutUint32(out[headerSize:], uint32(headerSize+4))
	binary.LittleEndian.PutUint32(out[headerSize+4:], uint32(len(compressed)))
	copy(out[headerSize+8:], compressed)
	return out, nil
}

func writeHeader(dst []byte, flags byte, typesize, nbytes, blocksize, cbytes int) {
	dst[0] = formatVersion
	dst[1] = 1
	dst[2] = flags
	dst[3] = byte(typesize)
	binary.LittleEndian.PutUint32(dst[4:], uint32(nbytes))
	binary.LittleEndian.PutUint32(dst[8:], uint32(blocksize))
	binary.LittleEndian.PutUint32(dst[12:], uint32(cbytes))
}

func encode(codec Codec, level int, src []byte) ([]byte, error) {
	switch codec {
	case Zstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("blosc: zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(src, nil), nil
	case Zlib:
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, fmt.Errorf("blosc: zlib encoder: %w", err)
		}
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case LZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		var c lz4.Compressor
		n, err := c.CompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("blosc: lz4: %w", err)
		}
		if n == 0 {
			// Incompressible: signal with an oversized result.
			return make([]byte, len(src)), nil
		}
		return dst[:n], nil
	}
	return nil, fmt.Errorf("blosc: unsupported codec %q", codec)
}

// Header describes a Blosc1 frame.
type Header struct {
	Flags     byte
	TypeSize  int
	NBytes    int
	BlockSize int
	CBytes    int
}

// Codec returns the inner compressor of the frame.
func (h Header) Codec() (Codec, error) {
	format := h.Flags >> 5
	for c, f := range codecFormats {
		if f == format {
			return c, nil
		}
	}
	return "", fmt.Errorf("blosc: unsupported compressor format %d", format)
}

// ReadHeader parses the fixed-size frame header.
func ReadHeader(src []byte) (Header, error) {
	if len(src) < headerSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(src))
	}
	h := Header{
		Flags:     src[2],
		TypeSize:  int(src[3]),
		NBytes:    int(binary.LittleEndian.Uint32(src[4:])),
		BlockSize: int(binary.LittleEndian.Uint32(src[8:])),
		CBytes:    int(binary.LittleEndian.Uint32(src[12:])),
	}
	if src[0] > 3 {
		return Header{}, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, src[0])
	}
	if h.CBytes > len(src) {
		return Header{}, fmt.Errorf("%w: header claims %d bytes, have %d", ErrCorrupt, h.CBytes, len(src))
	}
	return h, nil
}

// Decompress decodes a Blosc1 frame.
func Decompress(src []byte) ([]byte, error) {
	h, err := ReadHeader(src)
	if err != nil {
		return nil, err
	}
	out := make([]byte, h.NBytes)
	if h.NBytes == 0 {
		return out, nil
	}
	if h.Flags&flagMemcpyed != 0 {
		if len(src) < headerSize+h.NBytes {
			return nil, fmt.Errorf("%w: truncated memcpyed frame", ErrCorrupt)
		}
		copy(out, src[headerSize:headerSize+h.NBytes])
		return out, nil
	}
	if h.BlockSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d", ErrCorrupt, h.BlockSize)
	}
	codec, err := h.Codec()
	if err != nil {
		return nil, err
	}

	typesize := max(h.TypeSize, 1)
	nblocks := (h.NBytes + h.BlockSize - 1) / h.BlockSize
	if len(src) < headerSize+4*nblocks {
		return nil, fmt.Errorf("%w: truncated block table", ErrCorrupt)
	}
	for b := 0; b < nblocks; b++ {
		start := int(binary.LittleEndian.Uint32(src[headerSize+4*b:]))
		bsize := min(h.BlockSize, h.NBytes-b*h.BlockSize)
		leftover := bsize < h.BlockSize
		dst := out[b*h.BlockSize : b*h.BlockSize+bsize]
		if err := decodeBlock(dst, src, start, codec, h.Flags, typesize, leftover); err != nil {
			return nil, fmt.Errorf("block %d: %w", b, err)
		}
	}
	return out, nil
}

func decodeBlock(dst, src []byte, pos int, codec Codec, flags byte, typesize int, leftover bool) error {
	nsplits := 1
	if flags&flagNoSplit == 0 && !leftover && typesize <= maxSplits && len(dst)%typesize == 0 {
		nsplits = typesize
	}
	neblock := len(dst) / nsplits

	tmp := make([]byte, len(dst))
	for s := 0; s < nsplits; s++ {
		if pos+4 > len(src) {
			return fmt.Errorf("%w: truncated stream header", ErrCorrupt)
		}
		csize := int(binary.LittleEndian.Uint32(src[pos:]))
		pos += 4
		if csize < 0 || pos+csize > len(src) {
			return fmt.Errorf("%w: stream of %d bytes overruns frame", ErrCorrupt, csize)
		}
		part := tmp[s*neblock : (s+1)*neblock]
		stream := src[pos : pos+csize]
		pos += csize
		if csize == neblock {
			copy(part, stream)
			continue
		}
		if err := decode(codec, part, stream); err != nil {
			return err
		}
	}

	switch {
	case flags&flagShuffle != 0 && typesize > 1:
		unshuffle(typesize, tmp, dst)
	case flags&flagBitShuffle != 0 && len(dst) >= typesize:
		bitunshuffle(typesize, tmp, dst)
	default:
		copy(dst, tmp)
	}
	return nil
}

func decode(codec Codec, dst, stream []byte) error {
	switch codec {
	case Zstd:
		dec, err := zstdDecoder()
		if err != nil {
			return fmt.Errorf("zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(stream, dst[:0])
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		if len(out) != len(dst) {
			return fmt.Errorf("%w: zstd produced %d bytes, want %d", ErrCorrupt, len(out), len(dst))
		}
	case LZ4:
		n, err := lz4.UncompressBlock(stream, dst)
		if err != nil {
			return fmt.Errorf("lz4: %w", err)
		}
		if n != len(dst) {
			return fmt.Errorf("%w: lz4 produced %d bytes, want %d", ErrCorrupt, n, len(dst))
		}
	case Zlib:
		r, err := zlib.NewReader(bytes.NewReader(stream))
		if err != nil {
			return fmt.Errorf("zlib: %w", err)
		}
		defer r.Close()
		if _, err := io.ReadFull(r, dst); err != nil {
			return fmt.Errorf("zlib: %w", err)
		}
	default:
		return fmt.Errorf("blosc: unsupported codec %q", codec)
	}
	return nil
}
