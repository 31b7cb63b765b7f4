package orchestrator

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// freeBytes reports the free space available on the filesystem holding
// path, via a direct statfs(2) call rather than shelling out to df.
func freeBytes(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
