package device

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/disk"
)

var getParts = disk.Partitions
var getUsage = disk.Usage
var getSerial = disk.GetDiskSerialNumber

// Device describes the mount point backing a path, for preflight space
// checks and status display
type Device struct {
	MountPoint     string
	DeviceSerial   string
	AvailableSpace uint64
	TotalSpace     uint64
}

// ForPath resolves the partition holding the given path and reports its free
// space. The longest mount point covering the path wins, so nested mounts
// resolve to the innermost device.
func ForPath(path string) (Device, error) {
	parts, err := getParts(false)
	if err != nil {
		return Device{}, fmt.Errorf("Failed to get partitions: %v", err)
	}

	best := -1
	for partIndex, part := range parts {
		if !mountCovers(path, part.Mountpoint) {
			continue
		}
		if best == -1 || len(part.Mountpoint) > len(parts[best].Mountpoint) {
			best = partIndex
		}
	}

	if best == -1 {
		return Device{}, fmt.Errorf("No device found for %s", path)
	}

	usage, err := getUsage(parts[best].Mountpoint)
	if err != nil {
		return Device{}, fmt.Errorf("Failed to get disk usage: %v", err)
	}

	return Device{
		parts[best].Mountpoint,
		getSerial(parts[best].Device),
		usage.Free,
		usage.Total,
	}, nil
}

// mountCovers reports whether mount is the path itself or one of its
// ancestors, without treating /mnt/foo as an ancestor of /mnt/foobar
func mountCovers(path, mount string) bool {
	if mount == "/" {
		return strings.HasPrefix(path, "/")
	}

	return path == mount || strings.HasPrefix(path, mount+"/")
}
