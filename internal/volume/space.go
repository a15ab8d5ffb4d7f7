package volume

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/disk"
)

var diskUsage = disk.Usage

type Space struct {
	Total uint64
	Free  uint64
}

func (s Space) String() string {
	return fmt.Sprintf("%s of %s free", humanize.IBytes(s.Free), humanize.IBytes(s.Total))
}

// FreeSpace reports the capacity of the mounted file system.
func (v *Volume) FreeSpace() (Space, error) {
	if v.state != Mounted {
		return Space{}, fmt.Errorf("%w: volume not mounted but %s", ErrIllegalTransition, v.state)
	}
	usage, err := diskUsage(v.settings.MountPoint)
	if err != nil {
		return Space{}, fmt.Errorf("determining free space on %s: %w", v.settings.MountPoint, err)
	}
	return Space{Total: usage.Total, Free: usage.Free}, nil
}
