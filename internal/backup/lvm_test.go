//go:build linux

package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	responses map[string]fakeResponse
	calls     []string
}

type fakeResponse struct {
	status int
	output string
	err    error
}

func (f *fakeRunner) Run(name string, args ...string) (int, string, error) {
	f.calls = append(f.calls, name)
	key := name
	if resp, ok := f.responses[key]; ok {
		return resp.status, resp.output, resp.err
	}
	return 0, "", nil
}

func writeMountsFile(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mounts")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFindMountPointSingleCoveringMount(t *testing.T) {
	path := writeMountsFile(t,
		"/dev/mapper/vg0-data /data ext4 rw,relatime 0 0",
		"/dev/sda1 / ext4 rw,relatime 0 0",
	)

	mp, ok, err := FindMountPoint(path, []string{"/data/backups/db"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/data", mp.Path)
	require.Equal(t, "vg0-data", mp.DeviceName)
}

func TestFindMountPointNoCoverageReturnsNotFound(t *testing.T) {
	path := writeMountsFile(t, "/dev/sdb1 /mnt/data ext4 rw,relatime 0 0")

	_, ok, err := FindMountPoint(path, []string{"/nonexistent/mnt/x"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFindMountPointSpanningMultipleMountsFails(t *testing.T) {
	path := writeMountsFile(t,
		"/dev/sda1 / ext4 rw,relatime 0 0",
		"/dev/mapper/vg0-data /data ext4 rw,relatime 0 0",
		"/dev/mapper/vg0-other /other ext4 rw,relatime 0 0",
	)

	_, ok, err := FindMountPoint(path, []string{"/data/a", "/other/b"})
	require.NoError(t, err)
	require.False(t, ok, "inputs spanning two distinct mounts must fall back to plain archive")
}

func TestFindMountPointCollapsesNestedMounts(t *testing.T) {
	path := writeMountsFile(t,
		"/dev/sda1 / ext4 rw,relatime 0 0",
		"/dev/mapper/vg0-data /data ext4 rw,relatime 0 0",
		"/dev/mapper/vg0-nested /data/nested ext4 rw,relatime 0 0",
	)

	mp, ok, err := FindMountPoint(path, []string{"/data/nested/file"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/data/nested", mp.Path, "the more specific, later mount should win")
}

func TestLoadLVParsesColonSeparatedFields(t *testing.T) {
	run := &fakeRunner{responses: map[string]fakeResponse{
		"lvdisplay": {status: 0, output: "/dev/vg0/data:vg0:w:rw:-:1:2:1000:100:inherit:256:253:0"},
		"vgdisplay": {status: 0, output: "vg0:r/w:772:0:1:1:0:100:1:1:1:40960000:4096:10000:9500:500:uuid-vg"},
	}}

	lv, err := loadLV(run, MountPoint{Path: "/data", Device: "/dev/mapper/vg0-data"}, "vg0-data", "LVM-abc")
	require.NoError(t, err)
	require.Equal(t, "/dev/vg0/data", lv.Path)
	require.Equal(t, "vg0", lv.VGName)
	require.Equal(t, int64(1000), lv.Extents)
	require.Equal(t, "253", lv.DevMajor)
	require.Equal(t, "vg0", lv.VG.Name)
	require.Equal(t, int64(4096), lv.VG.ExtentSize)
	require.Equal(t, "uuid-vg", lv.VG.UUID)
}

func TestLoadLVRejectsMalformedOutput(t *testing.T) {
	run := &fakeRunner{responses: map[string]fakeResponse{
		"lvdisplay": {status: 0, output: "too:few:fields"},
	}}
	_, err := loadLV(run, MountPoint{}, "vg0-data", "LVM-abc")
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindSnapshotFailure, kind)
}

func TestCorruptedParsesCommaDecimal(t *testing.T) {
	lv := &LV{snapshotSuffix: "-snap", Path: "/dev/vg0/data"}
	run := &fakeRunner{responses: map[string]fakeResponse{
		"lvs": {status: 0, output: "99,5"},
	}}
	corrupted, err := lv.Corrupted(run)
	require.NoError(t, err)
	require.True(t, corrupted)
}

func TestCorruptedBelowThresholdIsFine(t *testing.T) {
	lv := &LV{snapshotSuffix: "-snap", Path: "/dev/vg0/data"}
	run := &fakeRunner{responses: map[string]fakeResponse{
		"lvs": {status: 0, output: "12.0"},
	}}
	corrupted, err := lv.Corrupted(run)
	require.NoError(t, err)
	require.False(t, corrupted)
}

func TestCreateSnapshotSizesFromExtents(t *testing.T) {
	lv := &LV{ShortName: "data", Path: "/dev/vg0/data", Extents: 1000, VG: VG{ExtentSize: 4096}}
	run := &fakeRunner{responses: map[string]fakeResponse{
		"lvcreate": {status: 0, output: ""},
	}}
	require.NoError(t, lv.CreateSnapshot(run, 10, "-wasp-snap"))
	require.Equal(t, "-wasp-snap", lv.snapshotSuffix)
}
