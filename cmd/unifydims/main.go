// Package main provides unifydims, which replaces a duplicate dimension of
// a netCDF file with its twin, e.g. ncol with cell.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"go.ngs.io/hptrack/internal/adapter/store/native"
	"go.ngs.io/hptrack/internal/adapter/store/netcdf"
	"go.ngs.io/hptrack/internal/config"
	"go.ngs.io/hptrack/internal/domain"
	"go.ngs.io/hptrack/internal/observability"
)

// tempName is the file the input is moved to while it is rewritten in place.
const tempName = "temp.nc"

type options struct {
	input    string
	output   string
	newDim   string
	oldDim   string
	dropVars []string
}

func main() {
	if err := newCmd().Execute(); err != nil {
		slog.Error("unifydims failed", "error", err)
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "unifydims --input_file FILE [flags] [DROP_VAR...]",
		Short: "Replace a duplicate dimension of a netCDF file",
		Long: `unifydims rewrites every variable indexed by old_dim to use new_dim
instead. The two dimensions are expected to describe the same positions.
Variables that do not use old_dim can be dropped with --drop_vars; extra
arguments are dropped too. Without --output_file the input is rewritten.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts.dropVars = append(opts.dropVars, args...)
			return unify(observability.NewLogger(cfg), cfg.Reader, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.input, "input_file", "", "input netCDF file")
	f.StringVar(&opts.output, "output_file", "", "output netCDF file (default: rewrite the input)")
	f.StringVar(&opts.newDim, "new_dim", "cell", "dimension to use across variables")
	f.StringVar(&opts.oldDim, "old_dim", "ncol", "dimension to purge")
	f.StringSliceVar(&opts.dropVars, "drop_vars", nil, "variables to drop")
	f.String("reader", config.ReaderNative, "netCDF reader: native or netcdf")
	f.String("log-level", "info", "log level: debug, info, warn or error")
	f.String("log-format", "text", "log format: json or text")
	_ = cmd.MarkFlagRequired("input_file")
	return cmd
}

// loadConfig reads the reader and logging settings from the flags of cmd
// and HPTRACK_* environment variables.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.New(cmd.Flags())
	if err != nil {
		return nil, err
	}
	v.SetDefault("log-format", "text")
	return config.Load(v)
}

func unify(logger *slog.Logger, reader string, opts options) (err error) {
	read := native.Read
	switch reader {
	case config.ReaderNative:
	case config.ReaderNetCDF:
		read = netcdf.Read
	default:
		return fmt.Errorf("invalid reader %q", reader)
	}

	input, output := opts.input, opts.output
	if output == "" {
		output = input
		input = filepath.Join(filepath.Dir(opts.input), tempName)
		if err := os.Rename(output, input); err != nil {
			return fmt.Errorf("move input aside: %w", err)
		}
		defer func() {
			if err != nil {
				// Put the original back.
				err = errors.Join(err, os.Rename(input, output))
				return
			}
			err = os.Remove(input)
		}()
	}

	ds, err := read(input)
	if err != nil {
		return err
	}
	out, err := domain.UnifyDimensions(ds, opts.newDim, opts.oldDim, opts.dropVars)
	if err != nil {
		return err
	}
	if err := netcdf.Write(output, out); err != nil {
		return err
	}
	logger.Info("wrote", "path", output, "new_dim", opts.newDim, "old_dim", opts.oldDim, "dropped", opts.dropVars)
	return nil
}
