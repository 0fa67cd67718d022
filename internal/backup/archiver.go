package backup

import (
	"archive/tar"
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// CreateOptions configures a single archive creation run. It mirrors the
// flag set described by spec.md §6.
type CreateOptions struct {
	Inputs     []string
	ProgramCmd []string
	Output     string

	Compression CompressionMode
	HashAlgo    HashAlgorithm

	CipherSpec     *CipherSpec
	CipherPassword []byte
	PBKDF2Iters    int

	RateLimitBPS int64

	Snapshot           SnapshotPolicy
	SnapshotVolumeSize float64
	SnapshotMountDir   string
	Sudo               bool

	Cancel *CancelFlag
}

// Archiver is the composition root tying FileArchiver/ProgramArchiver,
// the WriterChain pipeline, optional compression, and LVMOrchestrator
// together into the end-to-end create-archive operation, per spec.md
// §4.9's "model as composition" redesign note.
type Archiver struct {
	log zerolog.Logger
}

// NewArchiver builds an Archiver that logs through log.
func NewArchiver(log zerolog.Logger) *Archiver {
	return &Archiver{log: log}
}

// Create runs one archive operation end to end: optional snapshot setup,
// tar emission through the write pipeline, metadata patching, and always
// the full cleanup path (snapshot teardown, partial-file unlink) on every
// exit, per spec.md §4.9 and §5.
func (a *Archiver) Create(ctx context.Context, opts CreateOptions) (meta Meta, err error) {
	if len(opts.Inputs) == 0 && len(opts.ProgramCmd) == 0 {
		return Meta{}, InputError(nil, "no inputs and no program command given")
	}
	if len(opts.Inputs) > 0 && len(opts.ProgramCmd) > 0 {
		return Meta{}, InputError(nil, "inputs and program command are mutually exclusive")
	}
	if len(opts.Inputs) == 0 && opts.Snapshot == SnapshotForced {
		return Meta{}, PreconditionFailure(nil, "forced snapshot requires at least one input path")
	}

	var orch *LVMOrchestrator
	inputs := opts.Inputs
	snapshotAbsolute := true
	var snapshotRoot string

	if len(opts.Inputs) > 0 {
		orch = NewLVMOrchestrator(opts.Inputs, opts.Snapshot, opts.SnapshotVolumeSize, opts.SnapshotMountDir, opts.Sudo, a.log)
		rewritten, root, perr := orch.Prepare()
		if perr != nil {
			return Meta{}, perr
		}
		inputs = rewritten
		if root != "" {
			snapshotRoot = root
			snapshotAbsolute = false
		}
	}

	teardown := func() {
		if orch == nil {
			return
		}
		if terr := orch.Teardown(); terr != nil && err == nil {
			err = terr
		}
	}

	var chdirBack func()
	if snapshotRoot != "" {
		cwd, cerr := os.Getwd()
		if cerr != nil {
			teardown()
			return Meta{}, IOFailure(cerr, "getting current directory")
		}
		if cerr := os.Chdir(snapshotRoot); cerr != nil {
			teardown()
			return Meta{}, SnapshotFailure(cerr, "chdir into snapshot root %q", snapshotRoot)
		}
		chdirBack = func() { os.Chdir(cwd) }
	}

	meta, err = a.archivePayload(ctx, opts, inputs, snapshotAbsolute, orch)
	wrote := err == nil

	if chdirBack != nil {
		chdirBack()
	}
	teardown()

	if err != nil {
		if wrote {
			UnlinkOnFailure(opts.Output)
		}
		return Meta{}, err
	}

	if orch != nil {
		meta.SnapshotUsed = orch.SnapshotUsed()
		meta.OriginalLVUUID = orch.OriginalLVUUID()
	}
	return meta, nil
}

// archivePayload builds the write pipeline in spec.md §4.1's canonical
// order [tar_file_sink, throttle, hash, cipher, cancel] (Write enters at
// the outermost/last-built link), optionally wraps it with a compressor
// sitting above the chain entirely, drives the tar.Writer into that
// destination, and finally patches the resulting metadata. On any failure
// the partially written archive file is unlinked, per spec.md §4.6/§5.
func (a *Archiver) archivePayload(ctx context.Context, opts CreateOptions, inputs []string, absolute bool, orch *LVMOrchestrator) (Meta, error) {
	encrypted := opts.CipherSpec != nil
	insideName := InsideArchiveFilename(opts.Compression, encrypted)

	patcher, err := NewTarPatcher(opts.Output, insideName)
	if err != nil {
		return Meta{}, err
	}

	links := []WriterLink{patcher}

	var outer WriterLink = patcher
	if opts.RateLimitBPS > 0 {
		outer = NewThrottleLink(outer, opts.RateLimitBPS)
		links = append(links, outer)
	}

	hashLink, err := NewHashLink(outer, opts.HashAlgo)
	if err != nil {
		patcher.Discard()
		return Meta{}, err
	}
	outer = hashLink
	links = append(links, outer)

	if encrypted {
		cipherLink, err := NewCipherLink(outer, *opts.CipherSpec, opts.CipherPassword, opts.PBKDF2Iters)
		if err != nil {
			patcher.Discard()
			return Meta{}, err
		}
		outer = cipherLink
		links = append(links, outer)
	}

	if opts.Cancel != nil {
		outer = NewCancelLink(outer, opts.Cancel)
		links = append(links, outer)
	}

	chain := NewWriterChain(links...)

	var payloadDest io.Writer = chain
	var compressor compressWriteCloser
	if opts.Compression != CompressionNone {
		compressor, err = NewCompressWriter(chain, opts.Compression)
		if err != nil {
			patcher.Discard()
			return Meta{}, err
		}
		payloadDest = compressor
	}

	tw := tar.NewWriter(payloadDest)

	archiveErr := a.writeEntries(ctx, opts, tw, inputs, absolute)

	if archiveErr == nil {
		archiveErr = tw.Close()
	}
	if archiveErr == nil && compressor != nil {
		archiveErr = compressor.Close()
	}
	if archiveErr == nil {
		archiveErr = chain.Flush()
	}
	if closeErr := chain.Close(); archiveErr == nil {
		archiveErr = closeErr
	}

	if archiveErr != nil {
		patcher.Discard()
		return Meta{}, archiveErr
	}

	// Captured after Close: for an encrypted archive, CipherLink.Close
	// flushes the final PKCS7-padded block during the close cascade, and
	// that block is real hashed ciphertext, not alignment padding.
	// TarPatcher.Close only grows the on-disk file past this point (its
	// own trailing NUL padding), never p.written, so the value read here
	// is exactly the span HashLink digested.
	payloadSize := patcher.PayloadSize()

	m := Meta{InsideFilename: insideName, PayloadSize: payloadSize}
	for k, v := range chain.Meta() {
		assignMetaField(&m, k, v)
	}
	if len(opts.Inputs) > 0 {
		m.ArchivedFiles = opts.Inputs
	}
	if len(opts.ProgramCmd) > 0 {
		m.ArchivedProgram = joinCommand(opts.ProgramCmd)
	}
	m.CompressionMode = compressionModeJSON(opts.Compression)
	if opts.RateLimitBPS > 0 && m.IOWriteRate == nil {
		rate := opts.RateLimitBPS
		m.IOWriteRate = &rate
	}
	if orch != nil {
		m.SnapshotUsed = orch.SnapshotUsed()
		m.OriginalLVUUID = orch.OriginalLVUUID()
	}

	if err := patcher.Patch(m); err != nil {
		patcher.Discard()
		return Meta{}, err
	}
	return m, nil
}

func joinCommand(cmd []string) string {
	out := ""
	for i, c := range cmd {
		if i > 0 {
			out += " "
		}
		out += c
	}
	return out
}

// assignMetaField copies a single WriterChain.Meta() entry into its typed
// field on m.
func assignMetaField(m *Meta, key string, value any) {
	switch key {
	case "hash_algorithm":
		m.HashAlgorithm, _ = value.(string)
	case "hash_value":
		m.HashValue, _ = value.(string)
	case "cipher_algorithm":
		m.CipherAlgorithm, _ = value.(string)
	case "pbkdf2_salt":
		m.PBKDF2Salt, _ = value.(string)
	case "pbkdf2_prf":
		m.PBKDF2PRF, _ = value.(string)
	case "pbkdf2_iterations_count":
		m.PBKDF2IterationsCount, _ = value.(int)
	case "io_write_rate":
		if v, ok := value.(int64); ok {
			m.IOWriteRate = &v
		}
	}
}

// writeEntries drives either the file-path walker or the external-program
// streamer into tw, depending on which input mode was configured.
func (a *Archiver) writeEntries(ctx context.Context, opts CreateOptions, tw *tar.Writer, inputs []string, absolute bool) error {
	if len(opts.ProgramCmd) > 0 {
		pa := NewProgramArchiver(opts.ProgramCmd, a.log)
		return pa.Archive(ctx, tw)
	}
	fa := NewFileArchiver(inputs, absolute)
	return fa.Archive(tw)
}
