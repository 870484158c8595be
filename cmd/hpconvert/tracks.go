package main

import (
	"github.com/spf13/cobra"

	"go.ngs.io/hptrack/internal/adapter/store/native"
	"go.ngs.io/hptrack/internal/adapter/store/netcdf"
	"go.ngs.io/hptrack/internal/config"
	"go.ngs.io/hptrack/internal/domain"
	"go.ngs.io/hptrack/internal/observability"
	"go.ngs.io/hptrack/internal/usecase"
)

func newTracksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tracks FILE",
		Short: "Convert a lat/lon netCDF file, such as atmospheric river tracks",
		Long: `tracks reads a netCDF file with lat/lon (or latitude/longitude)
coordinates, applies CF decoding and writes HEALPix level stores.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, catalogFlags)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg)
			metrics := observability.NewMetrics()

			read := native.Read
			if cfg.Reader == config.ReaderNetCDF {
				read = netcdf.Read
			}
			logger.Info("reading", "path", args[0], "reader", cfg.Reader)
			var ds *domain.Dataset
			ds, err = read(args[0])
			if err != nil {
				return err
			}
			ds, err = usecase.PrepareSource(ds)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, logger, metrics, "hpconvert_tracks", ds)
		},
	}
}
