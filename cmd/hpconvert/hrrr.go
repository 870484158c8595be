package main

import (
	"maps"

	"github.com/spf13/cobra"

	"go.ngs.io/hptrack/internal/adapter/hrrr"
	"go.ngs.io/hptrack/internal/adapter/objstore"
	"go.ngs.io/hptrack/internal/observability"
	"go.ngs.io/hptrack/internal/usecase"
)

// hrrrFlags maps configuration keys to the flags of the hrrr command.
func hrrrFlags() map[string]string {
	m := map[string]string{
		"hrrr.bucket":    "bucket",
		"hrrr.region":    "region",
		"hrrr.start":     "start",
		"hrrr.hours":     "hours",
		"hrrr.grid-step": "grid-step",
	}
	maps.Copy(m, catalogFlags)
	return m
}

func newHRRRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hrrr",
		Short: "Convert HRRR analyses from the public S3 archive",
		Long: `hrrr fetches hourly HRRR surface analyses, derives wind speed,
regrids them from the Lambert conformal grid to a regular lat/lon grid and
writes HEALPix level stores.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, hrrrFlags())
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg)
			metrics := observability.NewMetrics()
			ctx := cmd.Context()

			store, err := objstore.NewAnonymousS3(cfg.HRRRBucket, cfg.HRRRRegion)
			if err != nil {
				return err
			}
			times := hrrr.HourlyTimes(cfg.HRRRStart, cfg.HRRRHours)
			logger.Info("loading HRRR", "bucket", cfg.HRRRBucket, "start", cfg.HRRRStart, "hours", cfg.HRRRHours)
			loader := &hrrr.Loader{Store: store, Logger: logger}
			ds, err := loader.Load(ctx, times)
			if err != nil {
				return err
			}

			regridder, err := hrrr.NewRegridder()
			if err != nil {
				return err
			}
			regridder.Step = cfg.HRRRGridStep
			ds, err = regridder.Regrid(ds)
			if err != nil {
				return err
			}
			ds, err = usecase.PrepareSource(ds)
			if err != nil {
				return err
			}
			return run(ctx, cfg, logger, metrics, "hpconvert_hrrr", ds)
		},
	}

	f := cmd.Flags()
	f.String("bucket", objstore.HRRRBucket, "S3 bucket of the HRRR archive")
	f.String("region", objstore.HRRRRegion, "AWS region of the bucket")
	f.String("start", "2019-08-14T00:00:00Z", "first analysis hour (RFC 3339)")
	f.Int("hours", 24, "number of hourly analyses")
	f.Float64("grid-step", hrrr.GridStep, "spacing in degrees of the intermediate lat/lon grid")
	return cmd
}
