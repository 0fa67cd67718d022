package backup

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
)

// VerifyStatus is the PASS/FAIL outcome of a verification run, per
// spec.md §4.10.
type VerifyStatus string

const (
	VerifyPass VerifyStatus = "PASS"
	VerifyFail VerifyStatus = "FAIL"
)

// VerifyResult reports the outcome of verifying one archive.
type VerifyResult struct {
	Status VerifyStatus
	Reason string
	Meta   Meta
}

// Verify opens the archive at path, parses the tar header at offset 0 to
// discover member 1's name and declared size, streams the payload through
// the hash algorithm recorded in meta.json, parses meta.json from member
// 2, and reports whether the recomputed digest matches hash_value. It
// never mutates the archive.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Status: VerifyFail, Reason: "cannot open archive: " + err.Error()}
	}
	defer f.Close()

	tr := tar.NewReader(f)

	payloadHdr, err := tr.Next()
	if err != nil {
		return VerifyResult{Status: VerifyFail, Reason: "truncated archive: missing payload member"}
	}

	payloadBytes, err := io.ReadAll(tr)
	if err != nil {
		return VerifyResult{Status: VerifyFail, Reason: "truncated archive: reading payload member"}
	}

	metaHdr, err := tr.Next()
	if err != nil || metaHdr.Name != metaFilename {
		return VerifyResult{Status: VerifyFail, Reason: "missing meta.json member"}
	}
	metaBytes, err := io.ReadAll(tr)
	if err != nil {
		return VerifyResult{Status: VerifyFail, Reason: "truncated archive: reading meta.json"}
	}

	meta, err := DecodeMeta(metaBytes)
	if err != nil {
		return VerifyResult{Status: VerifyFail, Reason: "malformed meta.json: " + err.Error()}
	}

	if meta.HashAlgorithm == "" || meta.HashValue == "" {
		return VerifyResult{Status: VerifyFail, Reason: "meta.json missing hash fields", Meta: meta}
	}

	hashSpan := payloadBytes
	if meta.PayloadSize > 0 && meta.PayloadSize <= int64(len(payloadBytes)) {
		hashSpan = payloadBytes[:meta.PayloadSize]
	} else if meta.PayloadSize > int64(len(payloadBytes)) {
		return VerifyResult{Status: VerifyFail, Reason: "truncated archive: declared payload_size exceeds member length", Meta: meta}
	}

	if payloadHdr.Name != meta.InsideFilename {
		return VerifyResult{
			Status: VerifyFail,
			Reason: "payload member name does not match inside_filename recorded in meta.json",
			Meta:   meta,
		}
	}

	algo, ok := normalizeHashAlgorithm(meta.HashAlgorithm)
	if !ok {
		return VerifyResult{Status: VerifyFail, Reason: "unsupported hash algorithm " + meta.HashAlgorithm, Meta: meta}
	}

	if err := verifyDigest(bytes.NewReader(hashSpan), algo, meta.HashValue); err != nil {
		return VerifyResult{Status: VerifyFail, Reason: err.Error(), Meta: meta}
	}

	return VerifyResult{Status: VerifyPass, Meta: meta}
}

func normalizeHashAlgorithm(s string) (HashAlgorithm, bool) {
	switch HashAlgorithm(s) {
	case HashMD5:
		return HashMD5, true
	case HashSHA256:
		return HashSHA256, true
	default:
		return "", false
	}
}
