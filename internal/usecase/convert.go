package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jonboulle/clockwork"

	"go.ngs.io/hptrack/internal/domain"
	"go.ngs.io/hptrack/internal/observability"
)

// Converter runs a lat/lon dataset through coordinate normalization,
// nearest-neighbour resampling onto HEALPix cells and the level pyramid.
type Converter struct {
	Tiling    Tiling
	Resampler Resampler
	Pyramid   *Pyramid
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics

	// Roll shifts longitudes into [0, 360) before resampling.
	Roll bool
}

// PrepareSource drops text variables, renames latitude/longitude to
// lat/lon, applies CF decoding and adds index coordinates to dimensions that
// have none.
func PrepareSource(ds *domain.Dataset) (*domain.Dataset, error) {
	var text []string
	for _, v := range ds.Vars() {
		if v.DType.IsText() {
			text = append(text, v.Name)
		}
	}
	if len(text) > 0 {
		ds = ds.DropVars(text...)
	}
	ds, err := domain.RenameLatLon(ds)
	if err != nil {
		return nil, err
	}
	ds, err = domain.DecodeCF(ds)
	if err != nil {
		return nil, err
	}
	return ds.EnsureIndexCoords(), nil
}

// Convert resamples ds onto every cell at zoom and writes levels zoom..0.
// Per-level write failures are returned in the results, not as the error.
func (c *Converter) Convert(ctx context.Context, ds *domain.Dataset, zoom int) ([]LevelResult, error) {
	var fixed *domain.Dataset
	err := c.stage("fix", func() error {
		var err error
		fixed, err = domain.FixCoords(ds, domain.FixOptions{Roll: c.Roll})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fix coordinates: %w", err)
	}

	lon, _ := fixed.Var("lon")
	signed := slices.ContainsFunc(lon.Values, func(x float64) bool { return x < 0 })
	target := NewTargetGrid(c.Tiling, zoom, signed)

	var (
		gridded *domain.Dataset
		stats   ResampleStats
	)
	err = c.stage("resample", func() error {
		var err error
		gridded, stats, err = c.Resampler.Resample(fixed, target)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	c.Logger.Info("resampled",
		"zoom", zoom,
		"cells", stats.Cells,
		"masked", stats.Masked,
		"signed_lon", signed,
	)
	if c.Metrics != nil {
		c.Metrics.CellsResampled.Add(float64(stats.Cells))
		c.Metrics.MaskedCellRatio.Set(stats.MaskedRatio())
	}

	var results []LevelResult
	err = c.stage("pyramid", func() error {
		var err error
		results, err = c.Pyramid.Run(ctx, gridded, zoom)
		return err
	})
	return results, err
}

func (c *Converter) stage(name string, fn func() error) error {
	start := c.Clock.Now()
	err := fn()
	if c.Metrics != nil {
		c.Metrics.StageDuration.WithLabelValues(name).Observe(c.Clock.Since(start).Seconds())
	}
	return err
}

// LogResults logs every level result and returns the number of failures.
func LogResults(logger *slog.Logger, results []LevelResult) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("level write failed", "zoom", r.Level, "path", r.Path, "error", r.Err)
			continue
		}
		logger.Info("wrote level", "zoom", r.Level, "path", r.Path, "duration", r.Duration)
	}
	return failed
}
