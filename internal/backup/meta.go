package backup

import "encoding/json"

// Meta is the trailing JSON metadata record embedded as the archive's
// second tar member (meta.json), per spec.md §3. Field names are the
// stable string keys from the original wasp_backup.core.WBackupMeta
// enumeration (WBackupMeta.Archive.MetaOptions).
type Meta struct {
	InsideFilename  string   `json:"inside_filename"`
	ArchivedFiles   []string `json:"archived_files,omitempty"`
	ArchivedProgram string   `json:"archived_program,omitempty"`
	CompressionMode *string  `json:"compression_mode"`

	HashAlgorithm string `json:"hash_algorithm"`
	HashValue     string `json:"hash_value"`

	CipherAlgorithm       string `json:"cipher_algorithm,omitempty"`
	PBKDF2Salt            string `json:"pbkdf2_salt,omitempty"`
	PBKDF2PRF             string `json:"pbkdf2_prf,omitempty"`
	PBKDF2IterationsCount int    `json:"pbkdf2_iterations_count,omitempty"`

	SnapshotUsed    bool   `json:"snapshot_used"`
	OriginalLVUUID  string `json:"original_lv_uuid"`
	IOWriteRate     *int64 `json:"io_write_rate"`

	// PayloadSize is the exact byte count the hash stage saw for member 1,
	// i.e. the prefix of the tar-declared (record-padded) size that
	// hash_value actually covers — the remainder is NUL alignment padding
	// added after hashing closes. An additive key beyond the ones spec.md
	// §3 names; older/foreign readers ignore it per the "extra keys are
	// preserved and ignored" rule.
	PayloadSize int64 `json:"payload_size,omitempty"`

	// Extra carries any additional/unknown keys read back from an existing
	// archive. Per spec.md §6, "extra keys MUST be preserved by the
	// verifier and ignored."
	Extra map[string]json.RawMessage `json:"-"`
}

// metaKnownKeys lists the JSON keys this struct understands, so that
// unmarshalling can stash everything else into Extra.
var metaKnownKeys = map[string]bool{
	"inside_filename":         true,
	"archived_files":          true,
	"archived_program":        true,
	"compression_mode":        true,
	"hash_algorithm":          true,
	"hash_value":              true,
	"cipher_algorithm":        true,
	"pbkdf2_salt":             true,
	"pbkdf2_prf":              true,
	"pbkdf2_iterations_count": true,
	"snapshot_used":           true,
	"original_lv_uuid":        true,
	"io_write_rate":           true,
	"payload_size":            true,
}

// MarshalJSON emits the known fields plus any preserved Extra keys, merged
// into a single flat JSON object.
func (m Meta) MarshalJSON() ([]byte, error) {
	type alias Meta
	base, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, known := metaKnownKeys[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields and preserves everything else in
// Extra, so that round-tripping an archive's metadata never drops fields a
// newer writer may have added.
func (m *Meta) UnmarshalJSON(data []byte) error {
	type alias Meta
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Meta(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !metaKnownKeys[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		m.Extra = extra
	}
	return nil
}

// Encode serializes the metadata record to its canonical JSON bytes.
func (m Meta) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMeta parses a metadata record from its JSON bytes.
func DecodeMeta(data []byte) (Meta, error) {
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, IntegrityFailure(err, "malformed meta.json")
	}
	return m, nil
}

// InsideArchiveFilename computes the canonical payload member name for a
// given compression mode and whether the payload is encrypted. New writers
// include the extension; spec.md §9 notes that readers MUST rely on
// meta.json's inside_filename instead of parsing this name.
func InsideArchiveFilename(mode CompressionMode, encrypted bool) string {
	name := baseArchiveName
	switch mode {
	case CompressionGzip:
		name += ".gz"
	case CompressionBzip2:
		name += ".bz2"
	}
	if encrypted {
		name += ".aes"
	}
	return name
}

func compressionModeJSON(mode CompressionMode) *string {
	if mode == CompressionNone {
		return nil
	}
	s := string(mode)
	return &s
}
