package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.Int("zoom", -1, "")
	fs.String("out", "./", "")
	fs.Bool("roll", false, "")
	require.NoError(t, fs.Parse(args))
	v, err := New(fs)
	if err != nil {
		return nil, err
	}
	return Load(v)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, -1, cfg.Zoom)
	assert.Equal(t, 0, cfg.Version)
	assert.Equal(t, ReaderNative, cfg.Reader)
	assert.Equal(t, "NERSC", cfg.CatalogLocation)
	assert.Equal(t, "scream2D_hrly", cfg.CatalogSource)
	assert.Equal(t, "hrrrzarr", cfg.HRRRBucket)
	assert.Equal(t, 24, cfg.HRRRHours)
	assert.Equal(t, time.Date(2019, 8, 14, 0, 0, 0, 0, time.UTC), cfg.HRRRStart)
	assert.InDelta(t, 0.03, cfg.HRRRGridStep, 1e-12)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HPTRACK_LOG_LEVEL", "debug")
	t.Setenv("HPTRACK_ZOOM", "7")
	t.Setenv("HPTRACK_HRRR_HOURS", "3")
	t.Setenv("HPTRACK_CATALOG_LOCATION", "online")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.Zoom)
	assert.Equal(t, 3, cfg.HRRRHours)
	assert.Equal(t, "online", cfg.CatalogLocation)
}

func TestLoad_FlagsBeatEnv(t *testing.T) {
	t.Setenv("HPTRACK_ZOOM", "7")
	cfg, err := load(t, "--zoom=5", "--roll", "--out=/tmp/ar")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Zoom)
	assert.True(t, cfg.Roll)
	assert.Equal(t, "/tmp/ar", cfg.Out)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hptrack.yaml")
	body := "zoom: 8\nskip-finest: true\nhrrr:\n  start: 2020-01-02T06:00:00Z\n  hours: 6\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := load(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Zoom)
	assert.True(t, cfg.SkipFinest)
	assert.Equal(t, 6, cfg.HRRRHours)
	assert.Equal(t, time.Date(2020, 1, 2, 6, 0, 0, 0, time.UTC), cfg.HRRRStart)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "zoom too large", args: []string{"--zoom=30"}},
		{name: "zoom below -1", args: []string{"--zoom=-2"}},
		{name: "bad log format", env: map[string]string{"HPTRACK_LOG_FORMAT": "xml"}},
		{name: "bad reader", env: map[string]string{"HPTRACK_READER": "hdf"}},
		{name: "bad start", env: map[string]string{"HPTRACK_HRRR_START": "yesterday"}},
		{name: "no hours", env: map[string]string{"HPTRACK_HRRR_HOURS": "0"}},
		{name: "empty out", args: []string{"--out="}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_ZoomNeedsCatalog(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	cfg.CatalogURL = ""
	assert.Error(t, cfg.Validate())
	cfg.Zoom = 4
	assert.NoError(t, cfg.Validate())
}
