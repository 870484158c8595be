package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"go.ngs.io/hptrack/internal/adapter/catalog"
	"go.ngs.io/hptrack/internal/config"
	"go.ngs.io/hptrack/internal/domain"
	"go.ngs.io/hptrack/internal/healpix"
	"go.ngs.io/hptrack/internal/observability"
	"go.ngs.io/hptrack/internal/usecase"
)

// run resamples a prepared dataset and writes its level stores.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, job string, ds *domain.Dataset) error {
	zoom, err := resolveZoom(ctx, cfg, logger)
	if err != nil {
		return err
	}
	version := cfg.Version
	if version == 0 {
		version, err = usecase.NextVersion(usecase.VersionDir(cfg.Out))
		if err != nil {
			return err
		}
	}
	logger.Info("converting", "zoom", zoom, "version", version, "out", cfg.Out)

	pyramid := usecase.NewPyramid(cfg.Out, version, logger, metrics)
	pyramid.SkipFinest = cfg.SkipFinest
	conv := &usecase.Converter{
		Tiling:    healpix.Nested{},
		Resampler: usecase.NearestResampler{},
		Pyramid:   pyramid,
		Clock:     clockwork.NewRealClock(),
		Logger:    logger,
		Metrics:   metrics,
		Roll:      cfg.Roll,
	}
	results, err := conv.Convert(ctx, ds, zoom)
	failed := usecase.LogResults(logger, results)
	if failed > 0 {
		logger.Warn("some levels were not written", "failed", failed, "total", len(results))
	}

	if cfg.PushgatewayURL != "" {
		if perr := observability.Push(ctx, cfg.PushgatewayURL, job, metrics); perr != nil {
			logger.Warn("metrics push failed", "error", perr)
		}
	}
	return err
}

// resolveZoom returns the configured zoom or the highest zoom allowed by
// the catalog entry.
func resolveZoom(ctx context.Context, cfg *config.Config, logger *slog.Logger) (int, error) {
	if cfg.Zoom >= 0 {
		return cfg.Zoom, nil
	}
	entry, err := catalog.NewClient().Lookup(ctx, cfg.CatalogURL, cfg.CatalogLocation, cfg.CatalogSource)
	if err != nil {
		return 0, fmt.Errorf("resolve zoom: %w", err)
	}
	zoom, err := entry.MaxZoom()
	if err != nil {
		return 0, fmt.Errorf("resolve zoom: %w", err)
	}
	logger.Info("zoom from catalog", "source", entry.Name, "zoom", zoom)
	return zoom, healpix.CheckZoom(zoom)
}
