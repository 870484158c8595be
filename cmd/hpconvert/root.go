package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.ngs.io/hptrack/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hpconvert",
		Short: "Convert gridded datasets to HEALPix Zarr stores",
		Long: `hpconvert resamples lat/lon gridded data onto nested HEALPix cells and
writes one Zarr store per resolution level, from the finest level down to 0.
Stores are named {out}_all_hp{level}_v{version}.zarr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.String("config", "", "configuration file (YAML or TOML)")
	f.String("log-level", "info", "log level: debug, info, warn or error")
	f.String("log-format", "json", "log format: json or text")
	f.String("pushgateway-url", "", "Prometheus Pushgateway to push run metrics to")
	f.String("out", "./", "output prefix of the level stores")
	f.Int("zoom", -1, "finest HEALPix zoom level; -1 takes the highest zoom of the catalog entry")
	f.Int("version", 0, "store version; 0 uses one more than the highest version found next to out")
	f.Bool("roll", false, "shift longitudes into [0, 360) before resampling")
	f.Bool("skip-finest", false, "write levels zoom-1..0 only")
	f.String("catalog-url", "", "intake catalog consulted when zoom is -1")
	f.String("catalog-location", "", "catalog location entry")
	f.String("catalog-source", "", "catalog source entry")

	root.AddCommand(newTracksCmd(), newHRRRCmd(), newVersionCmd())
	return root
}

// loadConfig builds the configuration from the flags of cmd. aliases maps
// configuration keys to flag names that differ from them.
func loadConfig(cmd *cobra.Command, aliases map[string]string) (*config.Config, error) {
	v, err := config.New(cmd.Flags())
	if err != nil {
		return nil, err
	}
	for key, name := range aliases {
		if err := bindFlag(v, cmd.Flags(), key, name); err != nil {
			return nil, err
		}
	}
	return config.Load(v)
}

func bindFlag(v *viper.Viper, flags *pflag.FlagSet, key, name string) error {
	f := flags.Lookup(name)
	if f == nil {
		return fmt.Errorf("unknown flag %q", name)
	}
	return v.BindPFlag(key, f)
}

var catalogFlags = map[string]string{
	"catalog.url":      "catalog-url",
	"catalog.location": "catalog-location",
	"catalog.source":   "catalog-source",
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hpconvert",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hpconvert v%s\n", version)
		},
	}
}
