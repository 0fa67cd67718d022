package backup

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
)

// TarPatcher is the lowest-level file writer in the chain. It writes a
// placeholder tar member header for insideFilename at offset 0 with
// size=0, then lets upstream links stream payload bytes from offset 512
// onward. On Patch, it rewrites the header with the true padded size and
// appends the meta.json member and tar end-of-archive padding, per
// spec.md §4.6. Directly adapted from the teacher's two-pass tar member
// technique in create.go (placeholder header, later overwrite), but here
// applied to a single payload-plus-metadata container rather than arkiv's
// multi-member content-addressed layout.
type TarPatcher struct {
	path           string
	insideFilename string
	f              *os.File
	closed         bool
	written        int64
}

// NewTarPatcher creates (or truncates) the archive file at path and writes
// the placeholder header for insideFilename.
func NewTarPatcher(path string, insideFilename string) (*TarPatcher, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, IOFailure(err, "creating archive file %q", path)
	}
	p := &TarPatcher{path: path, insideFilename: insideFilename, f: f}
	if err := p.writePlaceholderHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return p, nil
}

func (p *TarPatcher) writePlaceholderHeader() error {
	hdr := &tar.Header{
		Name:    p.insideFilename,
		Mode:    archiveFileMode,
		Size:    0,
		ModTime: nowFunc(),
	}
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(hdr); err != nil {
		return IOFailure(err, "writing placeholder tar header")
	}
	// tar.Writer buffers only the header block for a zero-size entry;
	// Close would append end-of-archive padding we don't want here, so we
	// take just the first 512-byte header block.
	if buf.Len() < tarBlockSize {
		return IOFailure(nil, "unexpected short tar header")
	}
	if _, err := p.f.WriteAt(buf.Bytes()[:tarBlockSize], 0); err != nil {
		return IOFailure(err, "writing placeholder tar header to file")
	}
	if _, err := p.f.Seek(tarBlockSize, io.SeekStart); err != nil {
		return IOFailure(err, "seeking past placeholder header")
	}
	return nil
}

// Write implements WriterLink as the chain's sink: it streams payload
// bytes starting at offset 512.
func (p *TarPatcher) Write(b []byte) (int, error) {
	n, err := p.f.Write(b)
	p.written += int64(n)
	if err != nil {
		return n, IOFailure(err, "writing archive payload")
	}
	return n, nil
}

// PayloadSize returns the exact number of payload bytes written so far,
// i.e. exactly what the hash stage has seen — distinct from the file's
// current size, which may already include trailing alignment padding
// added by Close. Close's padding is not counted, so the value is the
// same before and after Close.
func (p *TarPatcher) PayloadSize() int64 { return p.written }

func (p *TarPatcher) Flush() error {
	return nil
}

// Close pads the payload region to a 512-byte boundary with NUL bytes.
// Idempotent.
func (p *TarPatcher) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	size, err := p.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return IOFailure(err, "seeking archive file")
	}
	payloadSize := size - tarBlockSize
	pad := (tarBlockSize - payloadSize%tarBlockSize) % tarBlockSize
	if pad > 0 {
		if _, err := p.f.Write(make([]byte, pad)); err != nil {
			return IOFailure(err, "padding archive payload")
		}
	}
	return nil
}

func (p *TarPatcher) Meta() map[string]any { return map[string]any{"inside_filename": p.insideFilename} }
func (p *TarPatcher) Status() string       { return "" }

// Patch rewrites the placeholder header with the true padded payload size
// and recomputed checksum, appends the meta.json member, tar
// end-of-archive padding, and pads the whole file to a 10240-byte record
// boundary, per spec.md §4.6 steps 1-7. The file must already be closed to
// payload writes (Close called) before Patch runs.
func (p *TarPatcher) Patch(meta Meta) error {
	info, err := p.f.Stat()
	if err != nil {
		return IOFailure(err, "stat archive file")
	}
	payloadSize := info.Size() - tarBlockSize
	// Member 1's declared size is rounded to a 20480-byte boundary (two tar
	// records), per spec.md §4.6 step 2 — distinct from the 10240-byte
	// whole-archive-file boundary applied in step 7 below.
	paddedPayload := ceilToMultiple(payloadSize, memberSizeGranularity)

	hdr := &tar.Header{
		Name:    p.insideFilename,
		Mode:    archiveFileMode,
		Size:    paddedPayload,
		ModTime: nowFunc(),
	}
	var hbuf bytes.Buffer
	tw := tar.NewWriter(&hbuf)
	if err := tw.WriteHeader(hdr); err != nil {
		return IOFailure(err, "writing final tar header")
	}
	if hbuf.Len() < tarBlockSize {
		return IOFailure(nil, "unexpected short tar header")
	}
	if _, err := p.f.WriteAt(hbuf.Bytes()[:tarBlockSize], 0); err != nil {
		return IOFailure(err, "patching tar header")
	}

	// Step 4: pad so the payload region is exactly paddedPayload bytes.
	extraPad := paddedPayload - payloadSize
	if extraPad > 0 {
		if _, err := p.f.Seek(0, io.SeekEnd); err != nil {
			return IOFailure(err, "seeking to end of payload")
		}
		if _, err := p.f.Write(make([]byte, extraPad)); err != nil {
			return IOFailure(err, "padding payload to record boundary")
		}
	}

	// Step 5: append meta.json as a tar member.
	metaBytes, err := meta.Encode()
	if err != nil {
		return IOFailure(err, "encoding meta.json")
	}
	metaHdr := &tar.Header{
		Name:    metaFilename,
		Mode:    archiveFileMode,
		Size:    int64(len(metaBytes)),
		ModTime: nowFunc(),
	}
	var metaBuf bytes.Buffer
	mtw := tar.NewWriter(&metaBuf)
	if err := mtw.WriteHeader(metaHdr); err != nil {
		return IOFailure(err, "writing meta.json tar header")
	}
	if _, err := metaBuf.Write(metaBytes); err != nil {
		return IOFailure(err, "buffering meta.json payload")
	}
	metaPad := (tarBlockSize - len(metaBytes)%tarBlockSize) % tarBlockSize
	metaBuf.Write(make([]byte, metaPad))

	if _, err := p.f.Seek(0, io.SeekEnd); err != nil {
		return IOFailure(err, "seeking to end for meta.json")
	}
	if _, err := p.f.Write(metaBuf.Bytes()); err != nil {
		return IOFailure(err, "writing meta.json member")
	}

	// Step 6: tar end-of-archive padding (two zero blocks).
	if _, err := p.f.Write(make([]byte, 2*tarBlockSize)); err != nil {
		return IOFailure(err, "writing end-of-archive padding")
	}

	// Step 7: pad the whole file to a 10240-byte record boundary.
	finalInfo, err := p.f.Stat()
	if err != nil {
		return IOFailure(err, "stat archive file before final padding")
	}
	finalPad := (tarRecordSize - finalInfo.Size()%tarRecordSize) % tarRecordSize
	if finalPad > 0 {
		if _, err := p.f.Write(make([]byte, finalPad)); err != nil {
			return IOFailure(err, "padding archive to record boundary")
		}
	}

	return p.f.Close()
}

// Discard closes and deletes the archive file, used on every failure or
// cancellation path.
func (p *TarPatcher) Discard() error {
	p.f.Close()
	return os.Remove(p.path)
}

func ceilToMultiple(n, m int64) int64 {
	if n <= 0 {
		return 0
	}
	return ((n + m - 1) / m) * m
}
