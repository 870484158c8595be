package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/hptrack/internal/adapter/store/netcdf"
	"go.ngs.io/hptrack/internal/domain"
)

func writeFixture(t *testing.T, path string) {
	t.Helper()
	ds := domain.NewDataset()
	require.NoError(t, ds.AddDim("cell", 3))
	require.NoError(t, ds.AddDim("ncol", 3))
	require.NoError(t, ds.AddDim("time", 2))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "cell", Dims: []string{"cell"}, DType: domain.Int64, Values: []float64{0, 1, 2}}))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "time", Dims: []string{"time"}, DType: domain.Float64, Values: []float64{0, 1}}))
	require.NoError(t, ds.SetVar(&domain.Variable{
		Name: "pr", Dims: []string{"time", "ncol"}, DType: domain.Float32,
		Values: []float64{1, 2, 3, 4, 5, 6}, Attrs: map[string]any{"units": "mm/h"},
	}))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "area", Dims: []string{"cell"}, DType: domain.Float64, Values: []float64{1, 1, 1}}))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "hyam", Dims: []string{"time"}, DType: domain.Float64, Values: []float64{7, 8}}))
	require.NoError(t, ds.AddDim("chars", 8))
	require.NoError(t, ds.SetVar(&domain.Variable{
		Name: "date_written", Dims: []string{"time", "chars"}, DType: domain.Char,
		Raw: []byte("08/14/1908/15/19"),
	}))
	ds.Attrs["title"] = "scream"
	ds.Attrs["ne"] = int32(1024)
	require.NoError(t, netcdf.Write(path, ds))
}

func TestUnify_InPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scream.nc")
	writeFixture(t, path)

	cmd := newCmd()
	cmd.SetArgs([]string{"--input_file", path, "--reader", "netcdf", "--drop_vars", "hyam"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(filepath.Join(dir, tempName))
	assert.True(t, os.IsNotExist(err))

	ds, err := netcdf.Read(path)
	require.NoError(t, err)
	assert.False(t, ds.HasDim("ncol"))
	pr, ok := ds.Var("pr")
	require.True(t, ok)
	assert.Equal(t, []string{"time", "cell"}, pr.Dims)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, pr.Values)
	assert.Equal(t, "mm/h", pr.Attrs["units"])
	_, ok = ds.Var("hyam")
	assert.False(t, ok)
	_, ok = ds.Var("area")
	assert.True(t, ok)
	assert.Equal(t, "scream", ds.Attrs["title"])
	assert.Equal(t, int32(1024), ds.Attrs["ne"])

	dw, ok := ds.Var("date_written")
	require.True(t, ok)
	assert.Equal(t, domain.Char, dw.DType)
	assert.Equal(t, []byte("08/14/1908/15/19"), dw.Raw)
}

func TestUnify_NativeReaderKeepsCharVariables(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.nc")
	out := filepath.Join(dir, "out.nc")
	writeFixture(t, in)

	cmd := newCmd()
	cmd.SetArgs([]string{"--input_file", in, "--output_file", out})
	require.NoError(t, cmd.Execute())

	ds, err := netcdf.Read(out)
	require.NoError(t, err)
	assert.Subset(t, ds.VarNames(), []string{"cell", "time", "pr", "area", "hyam", "date_written"})
	pr, _ := ds.Var("pr")
	assert.Equal(t, []string{"time", "cell"}, pr.Dims)
	dw, ok := ds.Var("date_written")
	require.True(t, ok)
	assert.Equal(t, domain.Char, dw.DType)
	assert.Equal(t, []byte("08/14/1908/15/19"), dw.Raw)
}

func TestUnify_OutputFileAndPositionalDrops(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.nc")
	out := filepath.Join(dir, "out.nc")
	writeFixture(t, in)

	cmd := newCmd()
	cmd.SetArgs([]string{"--input_file", in, "--output_file", out, "--reader", "netcdf", "area", "hyam", "date_written"})
	require.NoError(t, cmd.Execute())

	ds, err := netcdf.Read(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"cell", "time", "pr"}, ds.VarNames())

	_, err = os.Stat(in)
	assert.NoError(t, err)
}

func TestUnify_FailureRestoresInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scream.nc")
	writeFixture(t, path)

	err := unify(slog.New(slog.NewTextHandler(io.Discard, nil)), "netcdf", options{
		input: path, newDim: "missing", oldDim: "ncol",
	})
	require.Error(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, tempName))
	assert.True(t, os.IsNotExist(err))
}

func TestUnify_MissingInputFlag(t *testing.T) {
	cmd := newCmd()
	cmd.SetArgs(nil)
	require.Error(t, cmd.Execute())
}

func TestLoadConfig_LoggingFromEnvAndFlags(t *testing.T) {
	cmd := newCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "native", cfg.Reader)

	t.Setenv("HPTRACK_LOG_LEVEL", "debug")
	t.Setenv("HPTRACK_LOG_FORMAT", "json")
	cmd = newCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--reader", "netcdf"}))
	cfg, err = loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "netcdf", cfg.Reader)

	cmd = newCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "error"}))
	cfg, err = loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)

	cmd = newCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--reader", "hdf"}))
	_, err = loadConfig(cmd)
	assert.Error(t, err)
}
