package transport

import "sync"

// maxQueued bounds the commands held while disconnected; the oldest is
// discarded first.
const maxQueued = 64

type commandQueue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{notify: make(chan struct{}, 1)}
}

// push appends cmd and reports how many old commands were discarded.
func (q *commandQueue) push(cmd string) (dropped int) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	if over := len(q.items) - maxQueued; over > 0 {
		q.items = append(q.items[:0:0], q.items[over:]...)
		dropped = over
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (q *commandQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	cmd := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return cmd, true
}

func (q *commandQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *commandQueue) ready() <-chan struct{} {
	return q.notify
}
