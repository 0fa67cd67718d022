package backup

import "sync/atomic"

// CancelFlag is a shared boolean "stop requested" flag set by a
// controlling collaborator and polled by CancelLink, per spec.md §4.5 and
// §5. Safe for concurrent use.
type CancelFlag struct {
	requested atomic.Bool
}

// NewCancelFlag returns a fresh, unset flag.
func NewCancelFlag() *CancelFlag { return &CancelFlag{} }

// Request marks the flag as set; cooperative consumers will observe it on
// their next poll.
func (f *CancelFlag) Request() { f.requested.Store(true) }

// Requested reports whether cancellation has been requested.
func (f *CancelFlag) Requested() bool { return f.requested.Load() }

// CancelLink polls a CancelFlag before forwarding each Write and fails with
// ErrCancelled once it observes the flag set. Cancellation latency is at
// most one Write call plus one upstream throttle sleep quantum, per
// spec.md §5.
type CancelLink struct {
	next WriterLink
	flag *CancelFlag
}

// NewCancelLink wraps next with a cancellation check against flag. A nil
// flag means cancellation is never observed (used when no cancel flag was
// supplied).
func NewCancelLink(next WriterLink, flag *CancelFlag) *CancelLink {
	return &CancelLink{next: next, flag: flag}
}

func (l *CancelLink) Write(p []byte) (int, error) {
	if l.flag != nil && l.flag.Requested() {
		return 0, ErrCancelled
	}
	return l.next.Write(p)
}

func (l *CancelLink) Flush() error { return l.next.Flush() }
func (l *CancelLink) Close() error { return l.next.Close() }
func (l *CancelLink) Meta() map[string]any { return nil }
func (l *CancelLink) Status() string       { return l.next.Status() }
