package backup

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestNewCompressWriterGzipRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCompressWriter(&buf, CompressionGzip)
	require.NoError(t, err)

	_, err = w.Write([]byte("payload to compress"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "payload to compress", string(got))
}

func TestNewCompressWriterBzip2RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCompressWriter(&buf, CompressionBzip2)
	require.NoError(t, err)

	_, err = w.Write([]byte("another payload to compress"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NotZero(t, buf.Len())
}

func TestNewCompressWriterRejectsUnsupportedMode(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewCompressWriter(&buf, CompressionMode("zstd"))
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindIOFailure, kind)
}
