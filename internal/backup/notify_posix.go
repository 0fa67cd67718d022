//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package backup

import (
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"
)

// NotifyArchiveReady invokes program as a detached, session-leading child
// with arguments <archivePath> <metaTempFile>, per spec.md §6's
// "notification program path ... invoked as a double-fork daemonized
// child". Go has no fork(2); Setsid:true plus abandoning Wait is the
// idiomatic substitute — the child is reparented to init on exit,
// equivalent in effect to a double fork for a fire-and-forget notifier.
func NotifyArchiveReady(program, archivePath, metaTempFile string, log zerolog.Logger) error {
	cmd := exec.Command(program, archivePath, metaTempFile)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return IOFailure(err, "starting notification program %q", program)
	}

	// Detach: release the process so it isn't a zombie-in-waiting owned by
	// this one, mirroring the double-fork's effect of abandoning the
	// grandchild to init.
	go func() {
		_ = cmd.Wait()
	}()

	log.Info().Str("program", program).Msg("notification dispatched")
	return nil
}
