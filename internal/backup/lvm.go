//go:build linux

package backup

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// MountPoint describes one line of /proc/mounts.
//
// Grounded on original_source/wasp_backup/pybackup.py's MountPoint class.
type MountPoint struct {
	Device     string
	DeviceName string
	Path       string
	FS         string
	Options    string
}

func parseMountLine(line string) (MountPoint, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return MountPoint{}, false
	}
	return MountPoint{
		Device:     fields[0],
		DeviceName: filepath.Base(fields[0]),
		Path:       fields[1],
		FS:         fields[2],
		Options:    fields[3],
	}, true
}

// readMounts parses /proc/mounts, collapsing entries whose path is a
// prefix of a later entry's path — the later (more specific) mount wins,
// matching MountPoint.current_mounts in pybackup.py.
func readMounts(path string) ([]MountPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, IOFailure(err, "opening %q", path)
	}
	defer f.Close()

	var result []MountPoint
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		mp, ok := parseMountLine(scanner.Text())
		if !ok {
			continue
		}
		filtered := result[:0:0]
		for _, prev := range result {
			if strings.HasPrefix(mp.Path, prev.Path) {
				continue
			}
			filtered = append(filtered, prev)
		}
		result = append(filtered, mp)
	}
	if err := scanner.Err(); err != nil {
		return nil, IOFailure(err, "reading %q", path)
	}
	return result, nil
}

// FindMountPoint locates the single mount point that covers every path in
// backup, or returns (MountPoint{}, false, nil) if the inputs span
// multiple mounts or no mount covers them — in which case the caller
// should proceed without a snapshot. Grounded on
// B4cku9LVMTarArchiver.mount_point in pybackup.py.
func FindMountPoint(mountsFile string, backup []string) (MountPoint, bool, error) {
	mounts, err := readMounts(mountsFile)
	if err != nil {
		return MountPoint{}, false, err
	}

	byPath := make(map[string]MountPoint, len(mounts))
	points := make([]string, 0, len(mounts))
	for _, m := range mounts {
		byPath[m.Path] = m
		points = append(points, m.Path)
	}
	sort.Slice(points, func(i, j int) bool { return len(points[i]) > len(points[j]) })

	var checkPoint string
	for _, single := range backup {
		abs, err := filepath.Abs(single)
		if err != nil {
			return MountPoint{}, false, IOFailure(err, "resolving %q", single)
		}
		var current string
		for i, p := range points {
			if !strings.HasPrefix(abs, p) {
				continue
			}
			if current == "" {
				current = p
				for j := 0; j < i; j++ {
					if strings.HasPrefix(points[j], abs) {
						return MountPoint{}, false, nil
					}
				}
			}
		}
		if current == "" {
			return MountPoint{}, false, nil
		}
		if checkPoint == "" {
			checkPoint = current
		} else if current != checkPoint {
			return MountPoint{}, false, nil
		}
	}
	if checkPoint == "" {
		return MountPoint{}, false, nil
	}
	return byPath[checkPoint], true, nil
}

// LV holds the fields parsed from `lvdisplay -c` plus its owning VG. Field
// order and meaning follow pybackup.py's colon-separated parse exactly.
type LV struct {
	Path              string
	ShortName         string
	VGName            string
	Access            string
	Status            string
	InternalNumber    string
	Opens             string
	Size              string
	Extents           int64
	AllocatedExtents  string
	AllocationPolicy  string
	ReadAhead         string
	DevMajor          string
	DevMinor          string
	UUID              string
	MountPoint        MountPoint
	VG                VG

	snapshotSuffix string
	snapshotDir    string
	mounted        bool
}

// VG holds the fields parsed from `vgdisplay -c`.
type VG struct {
	Name                string
	Access              string
	Status              string
	InternalNumber      string
	MaxLV               string
	CurrentLV           string
	OpenedLV            string
	MaxLVSize           string
	MaxPhysicalVolumes  string
	CurrentPhysicalVols string
	ActualPhysicalVols  string
	Size                string
	ExtentSize          int64
	TotalExtents        string
	AllocatedExtents    string
	FreeExtents         string
	UUID                string
}

// commandRunner abstracts process execution so tests can substitute a
// fake without invoking real LVM tools.
type commandRunner interface {
	Run(name string, args ...string) (status int, output string, err error)
}

type execRunner struct{}

func (execRunner) Run(name string, args ...string) (int, string, error) {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	status := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			status = exitErr.ExitCode()
		} else {
			return -1, string(out), err
		}
	}
	return status, strings.TrimRight(string(out), "\n"), nil
}

func devMapperPath(lvName string) string {
	return fmt.Sprintf("/dev/mapper/%s", lvName)
}

// DetectLV inspects the block device backing mp and returns the LV it
// belongs to, or ok=false if mp is not an LVM logical volume. Grounded on
// B4cku9LVMTarArchiver.lv_device in pybackup.py.
func DetectLV(run commandRunner, mp MountPoint) (LV, bool, error) {
	uuidFile := fmt.Sprintf("/sys/block/%s/dm/uuid", mp.DeviceName)
	nameFile := fmt.Sprintf("/sys/block/%s/dm/name", mp.DeviceName)

	uuidBytes, err := os.ReadFile(uuidFile)
	if err != nil {
		return LV{}, false, nil
	}
	lvUUID := strings.TrimSpace(string(uuidBytes))
	if !strings.HasPrefix(lvUUID, "LVM-") {
		return LV{}, false, nil
	}

	nameBytes, err := os.ReadFile(nameFile)
	if err != nil {
		return LV{}, false, nil
	}
	lvName := strings.TrimSpace(string(nameBytes))

	dmPath, err := filepath.EvalSymlinks(mp.Device)
	if err != nil {
		return LV{}, false, nil
	}
	lvPath, err := filepath.EvalSymlinks(devMapperPath(lvName))
	if err != nil {
		return LV{}, false, nil
	}
	if dmPath != lvPath {
		return LV{}, false, SnapshotFailure(nil, "LVM device detection sanity check failed (original: %s, detected: %s)", dmPath, lvPath)
	}

	lv, err := loadLV(run, mp, lvName, lvUUID)
	if err != nil {
		return LV{}, false, err
	}
	return lv, true, nil
}

func loadLV(run commandRunner, mp MountPoint, lvName, lvUUID string) (LV, error) {
	status, out, err := run.Run("lvdisplay", "-c", devMapperPath(lvName))
	if err != nil {
		return LV{}, SnapshotFailure(err, "invoking lvdisplay")
	}
	if status != 0 {
		return LV{}, SnapshotFailure(nil, "lvdisplay exited with status %d", status)
	}
	fields := strings.Split(strings.TrimSpace(out), ":")
	if len(fields) < 13 {
		return LV{}, SnapshotFailure(nil, "unexpected lvdisplay output: %q", out)
	}

	extents, err := strconv.ParseInt(fields[7], 10, 64)
	if err != nil {
		return LV{}, SnapshotFailure(err, "parsing lv extents from %q", fields[7])
	}

	lv := LV{
		Path:             fields[0],
		ShortName:        filepath.Base(fields[0]),
		VGName:           fields[1],
		Access:           fields[2],
		Status:           fields[3],
		InternalNumber:   fields[4],
		Opens:            fields[5],
		Size:             fields[6],
		Extents:          extents,
		AllocatedExtents: fields[8],
		AllocationPolicy: fields[9],
		ReadAhead:        fields[10],
		DevMajor:         fields[11],
		DevMinor:         fields[12],
		UUID:             lvUUID,
		MountPoint:       mp,
	}

	vg, err := loadVG(run, lv.VGName)
	if err != nil {
		return LV{}, err
	}
	lv.VG = vg
	return lv, nil
}

func loadVG(run commandRunner, vgName string) (VG, error) {
	status, out, err := run.Run("vgdisplay", "-c", vgName)
	if err != nil {
		return VG{}, SnapshotFailure(err, "invoking vgdisplay")
	}
	if status != 0 {
		return VG{}, SnapshotFailure(nil, "vgdisplay exited with status %d", status)
	}
	fields := strings.Split(strings.TrimSpace(out), ":")
	if len(fields) < 17 {
		return VG{}, SnapshotFailure(nil, "unexpected vgdisplay output: %q", out)
	}

	extentSize, err := strconv.ParseInt(fields[12], 10, 64)
	if err != nil {
		return VG{}, SnapshotFailure(err, "parsing vg extent size from %q", fields[12])
	}

	return VG{
		Name:                fields[0],
		Access:              fields[1],
		Status:              fields[2],
		InternalNumber:      fields[3],
		MaxLV:               fields[4],
		CurrentLV:           fields[5],
		OpenedLV:            fields[6],
		MaxLVSize:           fields[7],
		MaxPhysicalVolumes:  fields[8],
		CurrentPhysicalVols: fields[9],
		ActualPhysicalVols:  fields[10],
		Size:                fields[11],
		ExtentSize:          extentSize,
		TotalExtents:        fields[13],
		AllocatedExtents:    fields[14],
		FreeExtents:         fields[15],
		UUID:                fields[16],
	}, nil
}

// CreateSnapshot creates a read-only LVM snapshot of lv sized as a
// percentage of the source volume, per create_snapshot in pybackup.py.
func (lv *LV) CreateSnapshot(run commandRunner, sizePercent float64, suffix string) error {
	size := int64(float64(lv.Extents) * float64(lv.VG.ExtentSize) * (sizePercent / 100))
	name := lv.ShortName + suffix

	status, out, err := run.Run("lvcreate", "-L", fmt.Sprintf("%dK", size), "-s", "-n", name, "-p", "r", lv.Path)
	if err != nil {
		return SnapshotFailure(err, "invoking lvcreate")
	}
	if status != 0 {
		return SnapshotFailure(nil, "lvcreate failed (status %d): %s", status, out)
	}
	lv.snapshotSuffix = suffix
	return nil
}

func (lv *LV) snapshotName() string { return lv.Path + lv.snapshotSuffix }

// Mount mounts the snapshot read-only at dir, or a fresh temp directory if
// dir is empty.
func (lv *LV) Mount(run commandRunner, dir string) error {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "wasp-backup-"+strings.TrimPrefix(lv.snapshotSuffix, "-"))
		if err != nil {
			return SnapshotFailure(err, "creating temporary mount directory")
		}
		dir = tmp
	}
	lv.snapshotDir = dir

	status, out, err := run.Run("mount", "-o", "ro", lv.snapshotName(), lv.snapshotDir)
	if err != nil {
		return SnapshotFailure(err, "invoking mount")
	}
	if status != 0 {
		return SnapshotFailure(nil, "mount failed (status %d): %s", status, out)
	}
	lv.mounted = true
	return nil
}

// SnapshotDir returns the directory the snapshot is mounted at.
func (lv *LV) SnapshotDir() string { return lv.snapshotDir }

// Mounted reports whether the snapshot is currently mounted.
func (lv *LV) Mounted() bool { return lv.mounted }

// Unmount unmounts the snapshot. removeDir controls whether the mount
// directory itself is removed afterward (mirrors pybackup.py's behavior
// of removing only directories it created itself).
func (lv *LV) Unmount(run commandRunner, removeDir bool) error {
	if !lv.mounted {
		return nil
	}
	status, out, err := run.Run("umount", lv.snapshotDir)
	if err != nil || status != 0 {
		return SnapshotFailure(err, "umount failed (status %d): %s", status, out)
	}
	lv.mounted = false
	if removeDir {
		os.Remove(lv.snapshotDir)
	}
	return nil
}

// RemoveSnapshot removes the snapshot LV. A no-op if no snapshot was
// created.
func (lv *LV) RemoveSnapshot(run commandRunner) error {
	if lv.snapshotSuffix == "" {
		return nil
	}
	status, out, err := run.Run("lvremove", "-f", lv.snapshotName())
	if err != nil || status != 0 {
		return SnapshotFailure(err, "lvremove failed (status %d): %s", status, out)
	}
	return nil
}

// snapshotCorruptionThreshold is the snap_percent value at or above which
// a snapshot is considered to have overflowed its reserved space and is no
// longer trustworthy, per snapshot_corrupted in pybackup.py.
const snapshotCorruptionThreshold = 99.0

// Corrupted checks the snapshot's allocation percentage via `lvs`. A
// false negative (status error) is treated as "unknown, assume fine" to
// match pybackup.py's degrade-to-warning behavior.
func (lv *LV) Corrupted(run commandRunner) (bool, error) {
	status, out, err := run.Run("lvs", lv.snapshotName(), "-o", "snap_percent", "--noheadings")
	if err != nil || status != 0 {
		return false, nil
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(out), ",", ".")
	pct, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return false, nil
	}
	return pct >= snapshotCorruptionThreshold, nil
}
