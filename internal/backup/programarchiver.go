package backup

import (
	"archive/tar"
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// ProgramArchiver runs an external program and streams its stdout into the
// archive as a single tar member, forwarding stderr line-by-line to a
// logger. Grounded on original_source/wasp_backup/program_backup.py, which
// spawns the program with a pipe for stdout and a pipe for stderr and
// copies the former into the archive while draining the latter into the
// log, failing the archive on non-zero exit.
type ProgramArchiver struct {
	command  []string
	memberName string
	log      zerolog.Logger
}

// NewProgramArchiver builds a ProgramArchiver for command (argv form, no
// shell expansion). memberName is the sanitized in-archive member name
// derived from the command's base name.
func NewProgramArchiver(command []string, log zerolog.Logger) *ProgramArchiver {
	name := "stdout"
	if len(command) > 0 {
		name = sanitizeMemberName(command[0])
	}
	return &ProgramArchiver{command: command, memberName: name, log: log}
}

// sanitizeMemberName strips any path components and replaces characters
// that don't belong in a tar member name.
func sanitizeMemberName(cmd string) string {
	base := cmd
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "stdout"
	}
	return b.String()
}

// Archive runs the configured command and copies its stdout into tw as a
// single tar member named a.memberName. The program's stderr is drained
// and logged line by line. A non-zero exit status or stdout pipe failure
// fails the archive, per program_backup.py's behavior.
func (a *ProgramArchiver) Archive(ctx context.Context, tw *tar.Writer) error {
	if len(a.command) == 0 {
		return InputError(nil, "no command configured for program archiver")
	}

	cmd := exec.CommandContext(ctx, a.command[0], a.command[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return IOFailure(err, "opening stdout pipe for %q", a.command[0])
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return IOFailure(err, "opening stderr pipe for %q", a.command[0])
	}

	if err := cmd.Start(); err != nil {
		return IOFailure(err, "starting program %q", a.command[0])
	}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			a.log.Info().Str("program", a.command[0]).Msg(scanner.Text())
		}
	}()

	// The tar member size must be known before the header can be written,
	// so stdout is spooled to a temp file first and copied into the
	// archive once the program has exited successfully — the same
	// placeholder-then-patch shape used for the outer archive member,
	// scoped here to a single spooled member.
	spool, err := os.CreateTemp("", "wasp-backup-stdout-*")
	if err != nil {
		return IOFailure(err, "creating spool file for program output")
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	_, copyErr := io.Copy(spool, stdout)
	<-stderrDone
	waitErr := cmd.Wait()

	if waitErr != nil {
		return IOFailure(waitErr, "program %q exited with error", a.command[0])
	}
	if copyErr != nil {
		return IOFailure(copyErr, "reading stdout of %q", a.command[0])
	}

	size, err := spool.Seek(0, io.SeekCurrent)
	if err != nil {
		return IOFailure(err, "measuring spooled program output")
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return IOFailure(err, "rewinding spooled program output")
	}

	hdr := &tar.Header{
		Name: a.memberName,
		Mode: archiveFileMode,
		Size: size,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return IOFailure(err, "writing tar header for program output")
	}
	if _, err := io.Copy(tw, spool); err != nil {
		return IOFailure(err, "writing program output into archive")
	}
	return nil
}

// MemberName returns the sanitized in-archive member name for the
// program's stdout. Meta.ArchivedProgram records the full command line
// instead (see CommandLine).
func (a *ProgramArchiver) MemberName() string { return a.memberName }

// CommandLine returns the original command joined for display/metadata
// purposes.
func (a *ProgramArchiver) CommandLine() string { return strings.Join(a.command, " ") }
