package usecase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoreName(t *testing.T) {
	tests := []struct {
		name string
		want StoreInfo
		ok   bool
	}{
		{"ar_all_hp9_v1.zarr", StoreInfo{Name: "ar_all_hp9_v1.zarr", Prefix: "ar", Level: 9, Version: 1, Nside: 512, Cells: 12 * 512 * 512}, true},
		{"hrrr_2019_all_hp0_v12.zarr", StoreInfo{Name: "hrrr_2019_all_hp0_v12.zarr", Prefix: "hrrr_2019", Level: 0, Version: 12, Nside: 1, Cells: 12}, true},
		{"_all_hp3_v2.zarr", StoreInfo{Name: "_all_hp3_v2.zarr", Level: 3, Version: 2, Nside: 8, Cells: 768}, true},
		{"ar_all_hp30_v1.zarr", StoreInfo{}, false},
		{"ar_v1.zarr", StoreInfo{}, false},
		{"ar_all_hp1_v1.nc", StoreInfo{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseStoreName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStoreBrowser_List(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_all_hp1_v1.zarr", "a_all_hp2_v1.zarr", "a_all_hp1_v2.zarr", "a_all_hp1_v1.zarr", "scratch"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c_all_hp1_v1.zarr"), nil, 0o644))

	stores, err := NewStoreBrowser(dir).List()
	require.NoError(t, err)
	var names []string
	for _, s := range stores {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"a_all_hp1_v1.zarr", "a_all_hp2_v1.zarr", "a_all_hp1_v2.zarr", "b_all_hp1_v1.zarr"}, names)
}

func TestStoreBrowser_RejectsOtherNames(t *testing.T) {
	b := NewStoreBrowser(t.TempDir())
	_, err := b.Metadata(t.Context(), "../etc_all_hp1_v1.zarr")
	require.ErrorIs(t, err, ErrStoreNotFound)
	_, err = b.Metadata(t.Context(), "absent_all_hp1_v1.zarr")
	require.ErrorIs(t, err, ErrStoreNotFound)
}
