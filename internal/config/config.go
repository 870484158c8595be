// Package config loads settings for the conversion commands from flags,
// HPTRACK_* environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.ngs.io/hptrack/internal/adapter/catalog"
	"go.ngs.io/hptrack/internal/adapter/objstore"
	"go.ngs.io/hptrack/internal/healpix"
)

// EnvPrefix prefixes every environment variable, e.g. HPTRACK_LOG_LEVEL.
const EnvPrefix = "HPTRACK"

// Readers of netCDF input.
const (
	ReaderNative = "native"
	ReaderNetCDF = "netcdf"
)

// Config holds the settings shared by the conversion commands.
type Config struct {
	LogLevel       string
	LogFormat      string
	PushgatewayURL string

	// Out is the output prefix; stores are written as
	// {Out}_all_hp{level}_v{version}.zarr.
	Out        string
	Zoom       int // -1 asks the catalog.
	Version    int // 0 scans the output directory.
	Roll       bool
	SkipFinest bool
	Reader     string

	CatalogURL      string
	CatalogLocation string
	CatalogSource   string

	HRRRBucket   string
	HRRRRegion   string
	HRRRStart    time.Time
	HRRRHours    int
	HRRRGridStep float64
}

var defaults = map[string]any{
	"log-level":        "info",
	"log-format":       "json",
	"pushgateway-url":  "",
	"out":              "./",
	"zoom":             -1,
	"version":          0,
	"roll":             false,
	"skip-finest":      false,
	"reader":           ReaderNative,
	"catalog.url":      catalog.DefaultURL,
	"catalog.location": "NERSC",
	"catalog.source":   "scream2D_hrly",
	"hrrr.bucket":      objstore.HRRRBucket,
	"hrrr.region":      objstore.HRRRRegion,
	"hrrr.start":       "2019-08-14T00:00:00Z",
	"hrrr.hours":       24,
	"hrrr.grid-step":   0.03,
}

// New returns a viper instance with defaults, environment binding and the
// given flags bound by name. A "config" flag names a YAML or TOML file.
func New(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

// Load reads and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	start, err := cast.ToTimeE(v.Get("hrrr.start"))
	if err != nil {
		return nil, fmt.Errorf("invalid hrrr.start: %w", err)
	}
	cfg := &Config{
		LogLevel:        v.GetString("log-level"),
		LogFormat:       v.GetString("log-format"),
		PushgatewayURL:  v.GetString("pushgateway-url"),
		Out:             v.GetString("out"),
		Zoom:            v.GetInt("zoom"),
		Version:         v.GetInt("version"),
		Roll:            v.GetBool("roll"),
		SkipFinest:      v.GetBool("skip-finest"),
		Reader:          v.GetString("reader"),
		CatalogURL:      v.GetString("catalog.url"),
		CatalogLocation: v.GetString("catalog.location"),
		CatalogSource:   v.GetString("catalog.source"),
		HRRRBucket:      v.GetString("hrrr.bucket"),
		HRRRRegion:      v.GetString("hrrr.region"),
		HRRRStart:       start.UTC(),
		HRRRHours:       v.GetInt("hrrr.hours"),
		HRRRGridStep:    v.GetFloat64("hrrr.grid-step"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Out == "":
		return errors.New("out is required")
	case c.Zoom < -1 || c.Zoom > healpix.MaxZoom:
		return fmt.Errorf("zoom %d out of range [-1, %d]", c.Zoom, healpix.MaxZoom)
	case c.Version < 0:
		return fmt.Errorf("invalid version %d", c.Version)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("invalid log-format %q", c.LogFormat)
	case c.Reader != ReaderNative && c.Reader != ReaderNetCDF:
		return fmt.Errorf("invalid reader %q", c.Reader)
	case c.HRRRHours <= 0:
		return fmt.Errorf("invalid hrrr.hours %d", c.HRRRHours)
	case c.HRRRGridStep <= 0:
		return fmt.Errorf("invalid hrrr.grid-step %g", c.HRRRGridStep)
	}
	if c.Zoom == -1 && (c.CatalogURL == "" || c.CatalogSource == "") {
		return errors.New("zoom is unset and no catalog is configured")
	}
	return nil
}
