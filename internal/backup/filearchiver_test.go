package backup

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileArchiverWalksAndOrdersDeterministically(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	writeTestFile(t, filepath.Join(dir, "b.txt"), "second")
	writeTestFile(t, filepath.Join(dir, "a.txt"), "first")
	writeTestFile(t, filepath.Join(dir, "sub", "c.txt"), "nested")

	a := NewFileArchiver([]string{dir}, false)
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, a.Archive(tw))
	require.NoError(t, tw.Close())

	tr := tar.NewReader(&buf)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	require.True(t, sort.StringsAreSorted(names), "entries must be written in sorted order: %v", names)
	require.NotEmpty(t, a.LastFile())
}

func TestFileArchiverRejectsMissingInput(t *testing.T) {
	a := NewFileArchiver([]string{"/path/does/not/exist-xyz"}, false)
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := a.Archive(tw)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindInput, kind)
}

func TestFileArchiverStoresAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "f.txt"), "content")

	a := NewFileArchiver([]string{filepath.Join(dir, "f.txt")}, true)
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, a.Archive(tw))
	require.NoError(t, tw.Close())

	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(hdr.Name), "expected absolute name, got %q", hdr.Name)
}

func TestFileArchiverStoresSymlinksWithoutFollowing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	writeTestFile(t, target, "target content")
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	a := NewFileArchiver([]string{link}, false)
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, a.Archive(tw))
	require.NoError(t, tw.Close())

	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	require.NoError(t, err)
	require.Equal(t, byte(tar.TypeSymlink), hdr.Typeflag)
	require.Equal(t, target, hdr.Linkname)
}
