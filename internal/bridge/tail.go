package bridge

import "sync"

// lineTail keeps the most recent raw lines in a fixed ring.
type lineTail struct {
	mu       sync.Mutex
	maxBytes int
	ring     []string
	next     int
	full     bool
}

func newLineTail(n, maxBytes int) *lineTail {
	if n < 0 {
		n = 0
	}
	if maxBytes <= 0 {
		maxBytes = 512
	}
	return &lineTail{maxBytes: maxBytes, ring: make([]string, n)}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.ring) == 0 {
		return
	}
	if len(line) > t.maxBytes {
		line = line[:t.maxBytes]
	}
	t.ring[t.next] = line
	t.next = (t.next + 1) % len(t.ring)
	if t.next == 0 {
		t.full = true
	}
}

// snapshot returns the held lines oldest first.
func (t *lineTail) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		return append([]string(nil), t.ring[:t.next]...)
	}
	out := make([]string, 0, len(t.ring))
	out = append(out, t.ring[t.next:]...)
	return append(out, t.ring[:t.next]...)
}

func (t *lineTail) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.ring)
	t.next = 0
	t.full = false
}
