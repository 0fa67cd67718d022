package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestArchiver() *Archiver {
	return NewArchiver(zerolog.Nop())
}

func TestArchiverCreatePlainArchiveVerifiesClean(t *testing.T) {
	srcDir := t.TempDir()
	writeTestFile(t, filepath.Join(srcDir, "hello.txt"), "hello, world")

	outDir := t.TempDir()
	out := filepath.Join(outDir, "out.tar")

	a := newTestArchiver()
	opts := CreateOptions{
		Inputs:   []string{srcDir},
		Output:   out,
		HashAlgo: HashSHA256,
		Snapshot: SnapshotDisabled,
	}

	meta, err := a.Create(context.Background(), opts)
	require.NoError(t, err)
	require.NotEmpty(t, meta.HashValue)
	require.Equal(t, "archive.tar", meta.InsideFilename)

	result := Verify(out)
	require.Equal(t, VerifyPass, result.Status, result.Reason)
}

func TestArchiverCreateWithCompressionAndEncryption(t *testing.T) {
	srcDir := t.TempDir()
	writeTestFile(t, filepath.Join(srcDir, "data.txt"), "some content to compress and encrypt")

	outDir := t.TempDir()
	out := filepath.Join(outDir, "out.tar")

	cipherSpec, err := ParseCipherName("AES-256-CBC")
	require.NoError(t, err)

	a := newTestArchiver()
	opts := CreateOptions{
		Inputs:         []string{srcDir},
		Output:         out,
		Compression:    CompressionGzip,
		HashAlgo:       HashMD5,
		CipherSpec:     &cipherSpec,
		CipherPassword: []byte("correct horse battery staple"),
		PBKDF2Iters:    10000,
		Snapshot:       SnapshotDisabled,
	}

	meta, err := a.Create(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, "AES-256-CBC", meta.CipherAlgorithm)
	require.NotNil(t, meta.CompressionMode)
	require.Equal(t, "gz", *meta.CompressionMode)

	result := Verify(out)
	require.Equal(t, VerifyPass, result.Status, result.Reason)
}

func TestArchiverCreateWithRateLimitRecordsMeta(t *testing.T) {
	srcDir := t.TempDir()
	writeTestFile(t, filepath.Join(srcDir, "f.txt"), "small file")

	outDir := t.TempDir()
	out := filepath.Join(outDir, "out.tar")

	a := newTestArchiver()
	opts := CreateOptions{
		Inputs:       []string{srcDir},
		Output:       out,
		HashAlgo:     HashMD5,
		RateLimitBPS: 1 << 20,
		Snapshot:     SnapshotDisabled,
	}

	meta, err := a.Create(context.Background(), opts)
	require.NoError(t, err)
	require.NotNil(t, meta.IOWriteRate)
	require.Equal(t, int64(1<<20), *meta.IOWriteRate)
}

func TestArchiverCreateRejectsMutuallyExclusiveInputs(t *testing.T) {
	a := newTestArchiver()
	_, err := a.Create(context.Background(), CreateOptions{
		Inputs:     []string{"/tmp"},
		ProgramCmd: []string{"echo", "hi"},
		Output:     filepath.Join(t.TempDir(), "out.tar"),
	})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindInput, kind)
}

func TestArchiverCreateRejectsNoInputs(t *testing.T) {
	a := newTestArchiver()
	_, err := a.Create(context.Background(), CreateOptions{
		Output: filepath.Join(t.TempDir(), "out.tar"),
	})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindInput, kind)
}

func TestArchiverCreateDiscardsPartialOutputOnFailure(t *testing.T) {
	a := newTestArchiver()
	out := filepath.Join(t.TempDir(), "out.tar")

	_, err := a.Create(context.Background(), CreateOptions{
		Inputs:   []string{"/path/does/not/exist-xyz"},
		Output:   out,
		HashAlgo: HashMD5,
		Snapshot: SnapshotDisabled,
	})
	require.Error(t, err)

	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr), "partial archive file must be removed on failure")
}

func TestArchiverCompressedPayloadIsGenuineGzip(t *testing.T) {
	srcDir := t.TempDir()
	writeTestFile(t, filepath.Join(srcDir, "f.txt"), "content")
	out := filepath.Join(t.TempDir(), "out.tar")

	a := newTestArchiver()
	_, err := a.Create(context.Background(), CreateOptions{
		Inputs:      []string{srcDir},
		Output:      out,
		Compression: CompressionGzip,
		HashAlgo:    HashMD5,
		Snapshot:    SnapshotDisabled,
	})
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	tr := tar.NewReader(f)
	hdr, err := tr.Next()
	require.NoError(t, err)
	require.Equal(t, "archive.tar.gz", hdr.Name)

	gz, err := gzip.NewReader(tr)
	require.NoError(t, err)
	defer gz.Close()
	gz.Multistream(false)
	inner, err := io.ReadAll(gz)
	require.NoError(t, err)

	innerTar := tar.NewReader(bytes.NewReader(inner))
	innerHdr, err := innerTar.Next()
	require.NoError(t, err)
	require.Contains(t, innerHdr.Name, "f.txt")
}
