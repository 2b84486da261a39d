package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientSpace is returned when a folder's filesystem is below the required free space.
var ErrInsufficientSpace = errors.New("insufficient free disk space")

// DiskSpace describes the filesystem holding a path.
type DiskSpace struct {
	Path        string
	TotalMB     uint64
	FreeMB      uint64
	UsedPercent float64
}

// GetDiskSpace returns usage for the filesystem that holds path
func GetDiskSpace(path string) (DiskSpace, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskSpace{}, fmt.Errorf("failed to get disk usage for %s: %w", path, err)
	}
	return DiskSpace{
		Path:        path,
		TotalMB:     usage.Total / (1024 * 1024),
		FreeMB:      usage.Free / (1024 * 1024),
		UsedPercent: usage.UsedPercent,
	}, nil
}

// CheckFreeSpace fails with ErrInsufficientSpace when the filesystem holding
// path has less than minFreeMB available. A zero minimum disables the check.
func CheckFreeSpace(path string, minFreeMB uint64) (DiskSpace, error) {
	if minFreeMB == 0 {
		return DiskSpace{Path: path}, nil
	}
	space, err := GetDiskSpace(path)
	if err != nil {
		return space, err
	}
	if space.FreeMB < minFreeMB {
		return space, fmt.Errorf("%w: %d MB free at %s, need %d MB", ErrInsufficientSpace, space.FreeMB, path, minFreeMB)
	}
	return space, nil
}

// EnsurePath creates the directory structure if it doesn't exist
func EnsurePath(basePath string, subDirs ...string) (string, error) {
	fullPath := filepath.Join(append([]string{basePath}, subDirs...)...)
	if err := os.MkdirAll(fullPath, 0755); err != nil {
		return "", err
	}
	return fullPath, nil
}
