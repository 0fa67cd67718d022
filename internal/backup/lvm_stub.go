//go:build !linux

package backup

// LVM snapshot orchestration is Linux-only (it shells out to lvdisplay,
// vgdisplay, lvcreate, mount); on other platforms snapshotting is always
// reported unavailable so callers fall back to plain archiving.

// MountPoint mirrors the Linux type's shape so callers compile unchanged.
type MountPoint struct {
	Device     string
	DeviceName string
	Path       string
	FS         string
	Options    string
}

// LV is a stand-in with no behavior outside Linux.
type LV struct {
	Path      string
	UUID      string
	MountPoint MountPoint
}

type commandRunner interface {
	Run(name string, args ...string) (status int, output string, err error)
}

type execRunner struct{}

func (execRunner) Run(name string, args ...string) (int, string, error) { return -1, "", nil }

// FindMountPoint always reports no suitable mount point on non-Linux
// platforms.
func FindMountPoint(mountsFile string, backup []string) (MountPoint, bool, error) {
	return MountPoint{}, false, nil
}

// DetectLV always reports no LVM device on non-Linux platforms.
func DetectLV(run commandRunner, mp MountPoint) (LV, bool, error) {
	return LV{}, false, nil
}

func (lv *LV) CreateSnapshot(run commandRunner, sizePercent float64, suffix string) error {
	return SnapshotFailure(nil, "LVM snapshots are not supported on this platform")
}

func (lv *LV) Mount(run commandRunner, dir string) error {
	return SnapshotFailure(nil, "LVM snapshots are not supported on this platform")
}

func (lv *LV) SnapshotDir() string { return "" }

func (lv *LV) Mounted() bool { return false }

func (lv *LV) Unmount(run commandRunner, removeDir bool) error { return nil }

func (lv *LV) RemoveSnapshot(run commandRunner) error { return nil }

func (lv *LV) Corrupted(run commandRunner) (bool, error) { return false, nil }
