package journal

import (
	"fmt"
	"os"
)

// Prune removes the oldest journal files in dir, keeping the newest
// keep files. It returns the number of files removed.
func Prune(dir string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	files := listFiles(dir)
	if len(files) <= keep {
		return 0, nil
	}

	victims := files[:len(files)-keep]
	if err := removeFiles(victims); err != nil {
		return 0, err
	}
	return len(victims), nil
}

// PruneStats describes what a prune removed.
type PruneStats struct {
	FilesRemoved int
	BytesFreed   int64
}

// PruneWithStats removes old files and reports what went away.
func PruneWithStats(dir string, keep int) (PruneStats, error) {
	if keep < 0 {
		keep = 0
	}

	files := listFiles(dir)
	if len(files) <= keep {
		return PruneStats{}, nil
	}

	victims := files[:len(files)-keep]
	stats := PruneStats{
		FilesRemoved: len(victims),
		BytesFreed:   totalSize(victims),
	}

	err := removeFiles(victims)
	return stats, err
}

func totalSize(files []string) int64 {
	var total int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err == nil {
			total += info.Size()
		}
	}
	return total
}

func removeFiles(files []string) error {
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to remove %s: %w", file, err)
		}
	}
	return nil
}
