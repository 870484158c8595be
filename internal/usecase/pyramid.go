package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jonboulle/clockwork"

	"go.ngs.io/hptrack/internal/adapter/zarr"
	"go.ngs.io/hptrack/internal/domain"
	"go.ngs.io/hptrack/internal/healpix"
	"go.ngs.io/hptrack/internal/observability"
)

// CoarsenFactor is the number of child cells of a nested HEALPix cell.
const CoarsenFactor = 4

// Persister writes one level dataset to path.
type Persister interface {
	Persist(ctx context.Context, ds *domain.Dataset, path string) error
}

// ZarrPersister writes consolidated Zarr v2 directory stores. It refuses
// to write over an existing path.
type ZarrPersister struct{}

// Persist implements Persister.
func (ZarrPersister) Persist(ctx context.Context, ds *domain.Dataset, path string) error {
	store, err := zarr.CreateDirStore(path)
	if err != nil {
		return err
	}
	return zarr.Write(ctx, store, ds, zarr.EncodingFor(ds))
}

// LevelResult reports the write of one resolution level.
type LevelResult struct {
	Level    int
	Path     string
	Err      error
	Duration time.Duration
}

// Pyramid writes a dataset at its finest level and every coarser level
// down to 0.
type Pyramid struct {
	Coarsener Coarsener
	Persister Persister
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics

	// SkipFinest leaves the finest level unwritten; it is still coarsened.
	SkipFinest bool
	Prefix     string
	Version    int
}

// NewPyramid returns a pyramid writing Zarr stores named after prefix.
func NewPyramid(prefix string, version int, logger *slog.Logger, metrics *observability.Metrics) *Pyramid {
	return &Pyramid{
		Coarsener: MeanCoarsener{},
		Persister: ZarrPersister{},
		Clock:     clockwork.NewRealClock(),
		Logger:    logger,
		Metrics:   metrics,
		Prefix:    prefix,
		Version:   version,
	}
}

// Run folds over levels zoom, zoom-1, ..., 0. ds is the level zoom dataset.
// A failed write is reported in its LevelResult and the fold continues;
// coarsening errors and cancellation end the run.
func (p *Pyramid) Run(ctx context.Context, ds *domain.Dataset, zoom int) ([]LevelResult, error) {
	if err := healpix.CheckZoom(zoom); err != nil {
		return nil, err
	}
	results := make([]LevelResult, 0, zoom+1)
	current := ds
	for level := zoom; level >= 0; level-- {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if level < zoom {
			next, err := p.Coarsener.Coarsen(current, CellDim, CoarsenFactor)
			if err != nil {
				return results, fmt.Errorf("level %d: %w", level, err)
			}
			current = nil
			debug.FreeOSMemory()
			current, err = withNside(next, level)
			if err != nil {
				return results, fmt.Errorf("level %d: %w", level, err)
			}
		}
		if level == zoom && p.SkipFinest {
			p.Logger.Debug("skipping finest level", "zoom", level)
			continue
		}
		results = append(results, p.persist(ctx, current, level))
	}
	return results, nil
}

func (p *Pyramid) persist(ctx context.Context, ds *domain.Dataset, level int) LevelResult {
	start := p.Clock.Now()
	out := ds.Copy()
	out.Attrs["date_created"] = start.UTC().Format(time.RFC3339)
	path := LevelPath(p.Prefix, level, p.Version)

	p.Logger.Info("writing level", "zoom", level, "path", path)
	err := p.Persister.Persist(ctx, out, path)
	res := LevelResult{Level: level, Path: path, Err: err, Duration: p.Clock.Since(start)}
	if p.Metrics != nil {
		if err != nil {
			p.Metrics.LevelsFailed.Inc()
		} else {
			p.Metrics.LevelsWritten.Inc()
		}
		p.Metrics.LevelWriteDuration.Observe(res.Duration.Seconds())
	}
	return res
}

// withNside updates the crs variable, if any, to describe level.
func withNside(ds *domain.Dataset, level int) (*domain.Dataset, error) {
	crs, ok := ds.Var(CRSVar)
	if !ok {
		return ds, nil
	}
	nv := crs.With(crs.Values)
	nv.Attrs["healpix_nside"] = healpix.Nside(level)
	if err := ds.SetVar(nv); err != nil {
		return nil, err
	}
	return ds, nil
}
