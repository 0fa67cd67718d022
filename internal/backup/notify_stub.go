//go:build !darwin && !dragonfly && !freebsd && !linux && !netbsd && !openbsd

package backup

import (
	"os/exec"

	"github.com/rs/zerolog"
)

// NotifyArchiveReady invokes program with the archive and meta paths as
// arguments. Platforms without process-group semantics start the child
// normally and detach via an abandoned Wait, without a session-leader
// SysProcAttr.
func NotifyArchiveReady(program, archivePath, metaTempFile string, log zerolog.Logger) error {
	cmd := exec.Command(program, archivePath, metaTempFile)
	if err := cmd.Start(); err != nil {
		return IOFailure(err, "starting notification program %q", program)
	}
	go func() { _ = cmd.Wait() }()
	log.Info().Str("program", program).Msg("notification dispatched")
	return nil
}
