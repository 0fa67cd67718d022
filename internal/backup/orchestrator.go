package backup

import (
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LVMOrchestrator, when possible, snapshots the logical volume backing a
// set of inputs before archiving so the source can keep being written to
// with point-in-time consistency. Modeled as composition rather than
// inheritance: Archiver runs the orchestrator around a plain FileArchiver
// and copies the orchestrator's snapshot_used/original_lv_uuid into the
// metadata.
type LVMOrchestrator struct {
	inputs       []string
	policy       SnapshotPolicy
	sizeFraction float64
	mountDir     string
	sudo         bool
	log          zerolog.Logger
	run          commandRunner

	lv           *LV
	snapshotUsed bool
}

const defaultSnapshotSizeFraction = 0.1

// NewLVMOrchestrator constructs an orchestrator over inputs. sizeFraction
// <= 0 falls back to the spec default of 0.1.
func NewLVMOrchestrator(inputs []string, policy SnapshotPolicy, sizeFraction float64, mountDir string, sudo bool, log zerolog.Logger) *LVMOrchestrator {
	if sizeFraction <= 0 {
		sizeFraction = defaultSnapshotSizeFraction
	}
	runner := commandRunner(execRunner{})
	if sudo {
		runner = sudoRunner{execRunner{}}
	}
	return &LVMOrchestrator{
		inputs:       inputs,
		policy:       policy,
		sizeFraction: sizeFraction,
		mountDir:     mountDir,
		sudo:         sudo,
		log:          log,
		run:          runner,
	}
}

type sudoRunner struct {
	inner commandRunner
}

func (s sudoRunner) Run(name string, args ...string) (int, string, error) {
	return s.inner.Run("sudo", append([]string{name}, args...)...)
}

// Prepare detects whether the inputs reside on a single LVM logical
// volume and, according to policy, creates and mounts a snapshot. It
// returns the (possibly rewritten, snapshot-relative) input paths the
// caller should pass to a FileArchiver, along with a rootDir the caller
// should chdir into before archiving (empty if no snapshot is used).
func (o *LVMOrchestrator) Prepare() (rewrittenInputs []string, rootDir string, err error) {
	if o.policy == SnapshotDisabled {
		return o.inputs, "", nil
	}

	mp, ok, ferr := FindMountPoint("/proc/mounts", o.inputs)
	if ferr != nil {
		return nil, "", ferr
	}
	if !ok {
		if o.policy == SnapshotForced {
			return nil, "", PreconditionFailure(nil, "forced snapshot requested but inputs do not resolve to a single mount point")
		}
		o.log.Warn().Msg("no suitable mount point found, falling back to plain archive")
		return o.inputs, "", nil
	}

	lv, ok, derr := DetectLV(o.run, mp)
	if derr != nil {
		return nil, "", derr
	}
	if !ok {
		if o.policy == SnapshotForced {
			return nil, "", PreconditionFailure(nil, "forced snapshot requested but %q is not an LVM logical volume", mp.Path)
		}
		o.log.Warn().Str("mount", mp.Path).Msg("not an LVM logical volume, falling back to plain archive")
		return o.inputs, "", nil
	}
	o.lv = &lv

	suffix := "-snapshot-" + uuid.NewString()
	if err := o.lv.CreateSnapshot(o.run, o.sizeFraction*100, suffix); err != nil {
		return nil, "", err
	}
	if err := o.lv.Mount(o.run, o.mountDir); err != nil {
		o.lv.RemoveSnapshot(o.run)
		return nil, "", err
	}
	o.snapshotUsed = true

	mountLen := len(o.lv.MountPoint.Path)
	rewritten := make([]string, len(o.inputs))
	for i, in := range o.inputs {
		if len(in) >= mountLen {
			rewritten[i] = in[mountLen:]
		} else {
			rewritten[i] = in
		}
		if len(rewritten[i]) > 0 && rewritten[i][0] == '/' {
			rewritten[i] = rewritten[i][1:]
		}
	}
	return rewritten, o.lv.SnapshotDir(), nil
}

// SnapshotUsed reports whether Prepare successfully established a
// snapshot.
func (o *LVMOrchestrator) SnapshotUsed() bool { return o.snapshotUsed }

// OriginalLVUUID returns the UUID of the snapshotted volume, or "" if no
// snapshot is in use.
func (o *LVMOrchestrator) OriginalLVUUID() string {
	if o.lv == nil {
		return ""
	}
	return o.lv.UUID
}

// OriginalMount returns the path the snapshotted volume was originally
// mounted at, or "" if no snapshot is in use.
func (o *LVMOrchestrator) OriginalMount() string {
	if o.lv == nil {
		return ""
	}
	return o.lv.MountPoint.Path
}

// Teardown unmounts and removes the snapshot, always in reverse order of
// creation, regardless of the primary operation's outcome. Errors
// encountered here are logged, not returned, per spec.md §4.9 ("snapshot
// removal failures are logged but do not mask the primary error") —
// except for the corruption check, whose failure is surfaced because it
// indicates the just-produced archive cannot be trusted.
func (o *LVMOrchestrator) Teardown() error {
	if o.lv == nil || !o.snapshotUsed {
		return nil
	}

	corrupted, err := o.lv.Corrupted(o.run)
	if err != nil {
		o.log.Warn().Err(err).Msg("unable to check snapshot state")
	}

	if uerr := o.lv.Unmount(o.run, o.mountDir == ""); uerr != nil {
		o.log.Warn().Err(uerr).Msg("unable to unmount snapshot")
	}
	if rerr := o.lv.RemoveSnapshot(o.run); rerr != nil {
		o.log.Warn().Err(rerr).Msg("unable to remove created snapshot")
	}

	if corrupted {
		return SnapshotFailure(nil, "snapshot allocation reached %.0f%%, archive is unreliable", snapshotCorruptionThreshold)
	}
	return nil
}

// UnlinkOnFailure removes the archive file at path, ignoring a
// not-exist error, used on every failure/cancellation cleanup path
// including a failing post-write Verify.
func UnlinkOnFailure(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		_ = err
	}
}
