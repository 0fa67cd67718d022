// Package backup implements the wasp-backup archive pipeline: a composable
// write chain (tar -> compress -> cancel check -> encrypt -> hash ->
// throttle -> file), the
// in-archive metadata patching scheme, LVM snapshot orchestration, and
// archive verification.
package backup

import "time"

// CompressionMode selects the payload compression codec. The zero value
// means "no compression".
type CompressionMode string

const (
	CompressionNone  CompressionMode = ""
	CompressionGzip  CompressionMode = "gz"
	CompressionBzip2 CompressionMode = "bz2"
)

// SnapshotPolicy controls whether LVMOrchestrator attempts to snapshot the
// inputs before archiving.
type SnapshotPolicy string

const (
	SnapshotAuto     SnapshotPolicy = "auto"
	SnapshotForced   SnapshotPolicy = "forced"
	SnapshotDisabled SnapshotPolicy = "disabled"
)

// tar record/block sizes, per POSIX tar.
const (
	tarBlockSize  = 512
	tarRecordSize = 20 * tarBlockSize // 10240

	// memberSizeGranularity is the boundary to which the payload member's
	// declared tar size is rounded, per spec.md §4.6 step 2. It is twice
	// the tar record size (2 x 10240 = 20480).
	memberSizeGranularity = 2 * tarRecordSize
)

// archiveFileMode is the mode used for both tar member headers written by
// this package, matching spec.md's "mode 0o660" requirement.
const archiveFileMode = 0o660

// metaFilename is the name of the trailing JSON metadata member.
const metaFilename = "meta.json"

// baseArchiveName is the payload member's base name before any compression
// or encryption suffixes are appended.
const baseArchiveName = "archive.tar"

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now
