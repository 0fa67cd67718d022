package backup

// WriterLink is the common contract for a stackable byte-sink stage in the
// archive write pipeline, per spec.md §4.1. Each link forwards bytes to its
// downstream link after applying its own transform. Close is idempotent and
// cascades downstream exactly once.
type WriterLink interface {
	Write(p []byte) (n int, err error)
	Flush() error
	Close() error

	// Meta contributes this link's metadata fields. Links that don't carry
	// metadata may return a nil map.
	Meta() map[string]any

	// Status returns a human-readable progress string, or "" when the link
	// has nothing to report.
	Status() string
}

// WriterChain composes an ordered list of WriterLink stages. List order
// reflects stage *application* order — conceptually outer-first — but
// Write travels through the list in reverse so the sink (first in the list)
// is invoked last. Flush and Close cascade the same direction.
//
// Per spec.md §4.1 the canonical ordering for archive creation is:
//
//	[tar_file_sink, throttle, hash, cipher, cancel]
//
// so a caller's Write on the chain enters at "cancel" and exits at
// "tar_file_sink".
type WriterChain struct {
	links []WriterLink
}

// NewWriterChain builds a chain from links in application order (sink
// first). The chain exclusively owns the links passed to it.
func NewWriterChain(links ...WriterLink) *WriterChain {
	return &WriterChain{links: links}
}

// Write accepts bytes at the outermost (last) link and lets each link
// forward to the one before it in the list, terminating at the sink
// (links[0]).
func (c *WriterChain) Write(p []byte) (int, error) {
	return c.links[len(c.links)-1].Write(p)
}

// Flush cascades Flush from the outermost link down to the sink.
func (c *WriterChain) Flush() error {
	for i := len(c.links) - 1; i >= 0; i-- {
		if err := c.links[i].Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close cascades Close from the outermost link down to the sink. Each
// link's own Close must be idempotent; Close on the chain itself is not
// idempotent-checked here (callers should call it exactly once, as the
// archiver does).
func (c *WriterChain) Close() error {
	var first error
	for i := len(c.links) - 1; i >= 0; i-- {
		if err := c.links[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Meta left-folds every link's Meta() into a single map, in application
// order (sink first), so that later links — e.g. the cipher injecting
// PBKDF2 parameters, or the hash injecting its digest — overwrite earlier
// keys of the same name.
func (c *WriterChain) Meta() map[string]any {
	result := make(map[string]any)
	for _, l := range c.links {
		for k, v := range l.Meta() {
			result[k] = v
		}
	}
	return result
}

// Status returns the first non-empty status string found scanning from the
// outermost link inward, matching "last entry added" progress semantics.
func (c *WriterChain) Status() string {
	for i := len(c.links) - 1; i >= 0; i-- {
		if s := c.links[i].Status(); s != "" {
			return s
		}
	}
	return ""
}
