package zarr

import (
	"go.ngs.io/hptrack/internal/domain"
)

// Chunk lengths of HEALPix level stores.
const (
	TimeChunk         = 24
	CellChunk         = 4096 // 4^6
	CellChunkWithLev  = 1024 // 4^5
	LevelChunk        = 4
	ChunkKeySeparator = "/"
)

// VarEncoding controls how one variable is stored.
type VarEncoding struct {
	DType      domain.DType
	Chunks     []int
	Compressor *Compressor
}

// Encoding maps variable names to their storage settings. Variables
// without an entry are stored as a single uncompressed chunk in their own
// dtype.
type Encoding map[string]VarEncoding

// DataCompressor is the compressor of data variables: zstd inside Blosc
// with bit shuffle.
func DataCompressor() *Compressor {
	return &Compressor{ID: "blosc", Cname: "zstd", Clevel: 5, Shuffle: 2}
}

// CoordCompressor is the compressor of dimension coordinates.
func CoordCompressor() *Compressor {
	return &Compressor{ID: "blosc", Cname: "zstd", Clevel: 5, Shuffle: 1}
}

// EncodingFor returns the storage settings of a HEALPix level dataset.
//
// Data variables are stored as float32 when floating, else in their own
// dtype, chunked time=24 and cell=4^6, or time=24, cell=4^5 and level=4 when
// the dataset has a level dimension. Other dimensions are stored whole.
// Dimension coordinates are a single chunk.
func EncodingFor(ds *domain.Dataset) Encoding {
	cellChunk := CellChunk
	if ds.HasDim("level") {
		cellChunk = CellChunkWithLev
	}

	enc := Encoding{}
	for _, v := range ds.Vars() {
		shape, err := ds.Shape(v)
		if err != nil {
			continue
		}
		if ds.IsCoord(v.Name) {
			enc[v.Name] = VarEncoding{
				DType:      v.DType,
				Chunks:     fullChunks(shape),
				Compressor: CoordCompressor(),
			}
			continue
		}

		dtype := v.DType
		if dtype.IsFloat() {
			dtype = domain.Float32
		}
		chunks := make([]int, len(v.Dims))
		for i, d := range v.Dims {
			switch d {
			case "time":
				chunks[i] = TimeChunk
			case "cell":
				chunks[i] = cellChunk
			case "level":
				chunks[i] = LevelChunk
			default:
				chunks[i] = max(shape[i], 1)
			}
		}
		enc[v.Name] = VarEncoding{DType: dtype, Chunks: chunks, Compressor: DataCompressor()}
	}
	return enc
}

func fullChunks(shape []int) []int {
	chunks := make([]int, len(shape))
	for i, n := range shape {
		chunks[i] = max(n, 1)
	}
	return chunks
}
