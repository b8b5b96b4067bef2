// Package runinfo reports the capacity of the filesystem backing an output
// destination, so export failures from full disks are visible up front.
package runinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// Report describes the filesystem behind a path.
type Report struct {
	Path       string
	Device     string
	Mountpoint string
	TotalBytes uint64
	FreeBytes  uint64
}

// ForPath resolves the partition holding path (walking up to the nearest
// existing ancestor for paths that are yet to be created) and returns its
// usage numbers.
func ForPath(path string) (Report, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Report{}, err
	}

	probe := absPath
	for {
		if _, err := os.Stat(probe); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return Report{}, err
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}

	usage, err := disk.Usage(probe)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read disk usage for %s: %w", probe, err)
	}

	device, mountpoint := findPartition(probe)

	return Report{
		Path:       absPath,
		Device:     device,
		Mountpoint: mountpoint,
		TotalBytes: usage.Total,
		FreeBytes:  usage.Free,
	}, nil
}

// findPartition returns the device and mount point with the longest mount
// prefix of path.
func findPartition(path string) (string, string) {
	partitions, err := disk.Partitions(true)
	if err != nil {
		return "", ""
	}

	var device, mountpoint string
	for _, p := range partitions {
		if strings.HasPrefix(path, p.Mountpoint) && len(p.Mountpoint) > len(mountpoint) {
			device = p.Device
			mountpoint = p.Mountpoint
		}
	}
	return device, mountpoint
}

// Fields renders the report for structured logging.
func (r Report) Fields() logrus.Fields {
	return logrus.Fields{
		"path":        r.Path,
		"device":      r.Device,
		"mountpoint":  r.Mountpoint,
		"total_bytes": r.TotalBytes,
		"free_bytes":  r.FreeBytes,
	}
}
