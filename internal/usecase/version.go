package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

var versionPattern = regexp.MustCompile(`_v(\d+)\.zarr$`)

// NextVersion returns one more than the highest store version found in
// dir, or 1 when there is none. A missing directory has no versions.
func NextVersion(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scan versions: %w", err)
	}
	highest := 0
	for _, e := range entries {
		m := versionPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		highest = max(highest, v)
	}
	return highest + 1, nil
}

// VersionDir returns the directory holding stores written with prefix.
func VersionDir(prefix string) string {
	return filepath.Dir(prefix)
}

// LevelPath returns the store path of one level.
func LevelPath(prefix string, level, version int) string {
	return fmt.Sprintf("%s_all_hp%d_v%d.zarr", prefix, level, version)
}
