package runner

import "sync"

// capBuffer is an io.Writer that keeps at most cap bytes and remembers whether
// anything was dropped. Stdout and stderr of the child share one buffer; the
// mutex keeps it safe regardless of how the writes are wired.
type capBuffer struct {
	mu        sync.Mutex
	buf       []byte
	cap       int
	truncated bool
}

func newCapBuffer(cap int) *capBuffer {
	return &capBuffer{cap: cap}
}

func (b *capBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.cap - len(b.buf)
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Contents returns the captured bytes and whether the cap was hit.
func (b *capBuffer) Contents() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out, b.truncated
}
