package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"

	"go.ngs.io/hptrack/internal/adapter/zarr"
	"go.ngs.io/hptrack/internal/healpix"
)

var (
	// ErrStoreNotFound is returned for names that are not a level store
	// under the data directory.
	ErrStoreNotFound = errors.New("store not found")

	// ErrInvalidQuery is returned for lookups that cannot be answered
	// from the request parameters.
	ErrInvalidQuery = errors.New("invalid query")
)

var storeName = regexp.MustCompile(`^(.*)_all_hp(\d+)_v(\d+)\.zarr$`)

// StoreInfo describes one level store.
type StoreInfo struct {
	Name    string `json:"name"`
	Prefix  string `json:"prefix"`
	Level   int    `json:"level"`
	Version int    `json:"version"`
	Nside   int64  `json:"nside"`
	Cells   int64  `json:"cells"`
}

// ParseStoreName extracts the prefix, level and version of a store name.
func ParseStoreName(name string) (StoreInfo, bool) {
	m := storeName.FindStringSubmatch(name)
	if m == nil {
		return StoreInfo{}, false
	}
	level, err := strconv.Atoi(m[2])
	if err != nil || healpix.CheckZoom(level) != nil {
		return StoreInfo{}, false
	}
	version, err := strconv.Atoi(m[3])
	if err != nil {
		return StoreInfo{}, false
	}
	return StoreInfo{
		Name:    name,
		Prefix:  m[1],
		Level:   level,
		Version: version,
		Nside:   healpix.Nside(level),
		Cells:   healpix.Npix(level),
	}, true
}

// StoreBrowser serves read-only views of the level stores in a directory.
type StoreBrowser struct {
	dataDir string
}

// NewStoreBrowser creates a browser over dataDir.
func NewStoreBrowser(dataDir string) *StoreBrowser {
	return &StoreBrowser{dataDir: dataDir}
}

// List returns the stores under the data directory ordered by prefix,
// version and level.
func (b *StoreBrowser) List() ([]StoreInfo, error) {
	entries, err := os.ReadDir(b.dataDir)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	var out []StoreInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if info, ok := ParseStoreName(e.Name()); ok {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b StoreInfo) int {
		switch {
		case a.Prefix != b.Prefix:
			if a.Prefix < b.Prefix {
				return -1
			}
			return 1
		case a.Version != b.Version:
			return a.Version - b.Version
		}
		return a.Level - b.Level
	})
	return out, nil
}

func (b *StoreBrowser) open(name string) (*zarr.DirStore, StoreInfo, error) {
	info, ok := ParseStoreName(name)
	if !ok || filepath.Base(name) != name {
		return nil, StoreInfo{}, fmt.Errorf("%q: %w", name, ErrStoreNotFound)
	}
	store, err := zarr.OpenDirStore(filepath.Join(b.dataDir, name))
	if err != nil {
		return nil, StoreInfo{}, fmt.Errorf("%q: %w", name, ErrStoreNotFound)
	}
	return store, info, nil
}

// Key returns the raw bytes of one key of a store.
func (b *StoreBrowser) Key(ctx context.Context, name, key string) ([]byte, error) {
	store, _, err := b.open(name)
	if err != nil {
		return nil, err
	}
	clean, err := zarr.CleanKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return store.Get(ctx, clean)
}

// Metadata returns the consolidated metadata document of a store.
func (b *StoreBrowser) Metadata(ctx context.Context, name string) ([]byte, error) {
	return b.Key(ctx, name, zarr.KeyConsolidated)
}

// ValueRequest selects one element of a level store by position.
type ValueRequest struct {
	Store string
	Var   string
	Lat   float64
	Lon   float64

	// Index gives positions along dimensions other than cell. Missing
	// dimensions default to 0.
	Index map[string]int
}

// ValueResult is the element found for a ValueRequest.
type ValueResult struct {
	Store string         `json:"store"`
	Var   string         `json:"var"`
	Level int            `json:"level"`
	Cell  int64          `json:"cell"`
	Index map[string]int `json:"index"`
	Value *float64       `json:"value"`
}

// Value looks up the variable at the cell holding (lat, lon) at the
// store's level. A missing value is reported as a nil Value.
func (b *StoreBrowser) Value(ctx context.Context, req ValueRequest) (*ValueResult, error) {
	if req.Lat < -90 || req.Lat > 90 {
		return nil, fmt.Errorf("%w: latitude %v", ErrInvalidQuery, req.Lat)
	}
	store, info, err := b.open(req.Store)
	if err != nil {
		return nil, err
	}
	g, err := zarr.Open(ctx, store, req.Var, CellDim)
	if err != nil {
		return nil, err
	}
	arr, ok := g.Arrays[req.Var]
	if !ok {
		return nil, fmt.Errorf("variable %q: %w", req.Var, zarr.ErrNotFound)
	}
	if !slices.Contains(arr.Dims, CellDim) {
		return nil, fmt.Errorf("%w: variable %q has no %s dimension", ErrInvalidQuery, req.Var, CellDim)
	}

	pix := healpix.Pixel(info.Level, req.Lon, req.Lat)
	pos := int(pix)
	if cells, ok := g.Arrays[CellDim]; ok {
		coord, err := cells.Read(ctx, store)
		if err != nil {
			return nil, err
		}
		pos = sort.SearchFloat64s(coord, float64(pix))
		if pos == len(coord) || coord[pos] != float64(pix) {
			return nil, fmt.Errorf("cell %d: %w", pix, zarr.ErrNotFound)
		}
	}

	res := &ValueResult{Store: req.Store, Var: req.Var, Level: info.Level, Cell: pix, Index: map[string]int{}}
	index := make([]int, len(arr.Dims))
	for i, d := range arr.Dims {
		if d == CellDim {
			index[i] = pos
			continue
		}
		index[i] = req.Index[d]
		res.Index[d] = index[i]
		if index[i] < 0 || index[i] >= arr.Meta.Shape[i] {
			return nil, fmt.Errorf("%w: %s index %d outside [0, %d)", ErrInvalidQuery, d, index[i], arr.Meta.Shape[i])
		}
	}
	v, err := arr.ValueAt(ctx, store, index)
	if err != nil {
		return nil, err
	}
	if !math.IsNaN(v) {
		res.Value = &v
	}
	return res, nil
}
