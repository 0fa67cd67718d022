package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileConfigEmptyPathReturnsZeroValue(t *testing.T) {
	cfg, err := LoadFileConfig("")
	require.NoError(t, err)
	require.Equal(t, FileConfig{}, cfg)
}

func TestLoadFileConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
input:
  - /var/data
output: /backups/out.tar
compression: gzip
snapshot_volume_size: 0.2
upload_url: s3://bucket/key
upload_access_key_id: AKIAEXAMPLE
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFileConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"/var/data"}, cfg.Input)
	require.Equal(t, "/backups/out.tar", cfg.Output)
	require.Equal(t, "gzip", cfg.Compression)
	require.InDelta(t, 0.2, cfg.SnapshotVolumeSize, 0.0001)
	require.Equal(t, "s3://bucket/key", cfg.UploadURL)
	require.Equal(t, "AKIAEXAMPLE", cfg.UploadAccessKeyID)
}

func TestLoadFileConfigRejectsMissingFile(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindInput, kind)
}

func TestLoadFileConfigRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: ["), 0o644))

	_, err := LoadFileConfig(path)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindInput, kind)
}
