package backup

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSanitizeMemberName(t *testing.T) {
	require.Equal(t, "pg_dump", sanitizeMemberName("/usr/bin/pg_dump"))
	require.Equal(t, "my_program", sanitizeMemberName("my program"))
	require.Equal(t, "stdout", sanitizeMemberName(""))
}

func TestProgramArchiverCapturesStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX shell")
	}
	a := NewProgramArchiver([]string{"/bin/sh", "-c", "printf hello-world"}, zerolog.Nop())
	require.Equal(t, "sh", a.MemberName())

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, a.Archive(context.Background(), tw))
	require.NoError(t, tw.Close())

	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	require.NoError(t, err)
	require.Equal(t, "sh", hdr.Name)

	content, err := io.ReadAll(tr)
	require.NoError(t, err)
	require.Equal(t, "hello-world", string(content))
}

func TestProgramArchiverFailsOnNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX shell")
	}
	a := NewProgramArchiver([]string{"/bin/sh", "-c", "exit 3"}, zerolog.Nop())

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := a.Archive(context.Background(), tw)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindIOFailure, kind)
}

func TestProgramArchiverRejectsEmptyCommand(t *testing.T) {
	a := NewProgramArchiver(nil, zerolog.Nop())
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := a.Archive(context.Background(), tw)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindInput, kind)
}
