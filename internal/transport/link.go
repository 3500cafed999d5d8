package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"nmea-bridge/internal/metrics"
)

const (
	// inboundBuffer bounds the lines held between the read task and the
	// consumer. A full channel blocks the read task; nothing is dropped.
	inboundBuffer = 256

	defaultMaxLineBytes = 4 * 1024
)

// conn is one open connection, owned by a read/write task pair. Read must
// return within a bounded time; os.ErrDeadlineExceeded signals that nothing
// arrived in the window.
type conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// opener establishes a connection and names the endpoint it reached.
type opener func(ctx context.Context) (conn, string, error)

type linkConfig struct {
	kind     string
	endpoint string
	open     opener

	reconnectDelay time.Duration
	maxLineBytes   int

	// timeoutIsFault ends the session when a read window passes with no
	// data. Otherwise a timeout is only a liveness poll.
	timeoutIsFault bool

	log   *log.Logger
	sleep func(ctx context.Context, d time.Duration) bool

	// onState observes every state change, in order.
	onState func(State)
}

// link is the shared supervised runner behind every transport variant.
type link struct {
	cfg   linkConfig
	queue *commandQueue
	state atomic.Int32

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	lines    chan string
	endpoint string
	lastErr  string
	lastSeen time.Time
	count    uint64
	connects uint64
	failures uint64
}

func newLink(cfg linkConfig) *link {
	if cfg.reconnectDelay <= 0 {
		cfg.reconnectDelay = time.Second
	}
	if cfg.maxLineBytes <= 0 {
		cfg.maxLineBytes = defaultMaxLineBytes
	}
	if cfg.log == nil {
		cfg.log = log.New(io.Discard)
	}
	closed := make(chan string)
	close(closed)
	return &link{
		cfg:      cfg,
		queue:    newCommandQueue(),
		lines:    closed,
		endpoint: cfg.endpoint,
	}
}

func (l *link) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("%s transport: nil context", l.cfg.kind)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		select {
		case <-l.done:
		default:
			return fmt.Errorf("%s transport already started", l.cfg.kind)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	lines := make(chan string, inboundBuffer)
	done := make(chan struct{})
	l.running = true
	l.cancel = cancel
	l.done = done
	l.lines = lines

	l.cfg.log.Info("transport started", "kind", l.cfg.kind, "endpoint", l.endpoint)
	go l.run(runCtx, lines, done)
	return nil
}

func (l *link) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
	if n := l.queue.clear(); n > 0 {
		metrics.CommandsDropped.WithLabelValues(l.cfg.kind).Add(float64(n))
		l.cfg.log.Debug("queued commands dropped", "kind", l.cfg.kind, "count", n)
	}
	l.cfg.log.Info("transport stopped", "kind", l.cfg.kind)
}

func (l *link) Send(cmd string) {
	cmd = terminate(cmd)
	if cmd == "" {
		return
	}
	if n := l.queue.push(cmd); n > 0 {
		metrics.CommandsDropped.WithLabelValues(l.cfg.kind).Add(float64(n))
		l.cfg.log.Warn("command queue full, oldest dropped", "kind", l.cfg.kind, "dropped", n)
	}
}

func (l *link) Lines() <-chan string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lines
}

func (l *link) State() State { return State(l.state.Load()) }

func (l *link) Connected() bool { return l.State() == Connected }

func (l *link) Snapshot() Snapshot {
	l.mu.RLock()
	out := Snapshot{
		Kind:      l.cfg.kind,
		Endpoint:  l.endpoint,
		Running:   l.running,
		LastError: l.lastErr,
		Lines:     l.count,
		Connects:  l.connects,
		Failures:  l.failures,
	}
	lastSeen := l.lastSeen
	l.mu.RUnlock()

	out.State = l.State().String()
	out.QueuedCommands = l.queue.len()
	if !lastSeen.IsZero() {
		out.LastSeenUTC = lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (l *link) run(ctx context.Context, lines chan string, done chan struct{}) {
	defer close(done)
	defer close(lines)
	defer l.setState(Disconnected)

	r := Retry{
		Delay: l.cfg.reconnectDelay,
		Sleep: l.cfg.sleep,
		OnError: func(attempt int, err error) {
			l.cfg.log.Warn("transport down, retrying",
				"kind", l.cfg.kind, "attempt", attempt, "delay", l.cfg.reconnectDelay, "err", err)
		},
	}
	r.Run(ctx, func(ctx context.Context) error {
		return l.session(ctx, lines)
	})
}

// session opens one connection and serves it until either task fails or ctx
// ends. The connection is closed only after both tasks have returned.
func (l *link) session(ctx context.Context, lines chan<- string) error {
	l.setState(Connecting)
	c, endpoint, err := l.cfg.open(ctx)
	if err != nil {
		l.setState(Disconnected)
		if ctx.Err() != nil {
			return nil
		}
		l.fail(err)
		return err
	}

	l.mu.Lock()
	if endpoint != "" {
		l.endpoint = endpoint
	}
	l.connects++
	l.lastErr = ""
	l.mu.Unlock()
	metrics.TransportConnects.WithLabelValues(l.cfg.kind).Inc()
	l.setState(Connected)
	l.cfg.log.Info("transport connected", "kind", l.cfg.kind, "endpoint", endpoint)

	g, gctx := errgroup.WithContext(ctx)
	if d, ok := c.(interface{ SetReadDeadline(time.Time) error }); ok {
		stop := context.AfterFunc(gctx, func() { _ = d.SetReadDeadline(time.Now()) })
		defer stop()
	}
	g.Go(func() error { return l.readLoop(gctx, c, lines) })
	g.Go(func() error { return l.writeLoop(gctx, c) })
	err = g.Wait()

	_ = c.Close()
	l.setState(Disconnected)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = errors.New("connection closed")
	}
	l.fail(err)
	return err
}

func (l *link) readLoop(ctx context.Context, c conn, lines chan<- string) error {
	buf := make([]byte, 4096)
	var pending []byte
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := c.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var ok bool
			if pending, ok = l.emit(ctx, pending, lines); !ok {
				return nil
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			if !l.cfg.timeoutIsFault {
				continue
			}
			return fmt.Errorf("read timeout: %w", err)
		}
		return fmt.Errorf("read: %w", err)
	}
}

// emit pushes every complete line in pending and returns the unterminated
// remainder. It reports false when ctx ended while blocked on a full channel.
func (l *link) emit(ctx context.Context, pending []byte, lines chan<- string) ([]byte, bool) {
	for {
		i := bytes.IndexByte(pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(pending[:i]))
		pending = pending[i+1:]
		if line == "" {
			continue
		}
		l.seen()
		select {
		case lines <- line:
		case <-ctx.Done():
			return nil, false
		}
	}
	if len(pending) > l.cfg.maxLineBytes {
		l.cfg.log.Warn("discarding unterminated input", "kind", l.cfg.kind, "bytes", len(pending))
		pending = pending[:0]
	}
	return pending, true
}

func (l *link) writeLoop(ctx context.Context, c conn) error {
	for {
		for ctx.Err() == nil {
			cmd, ok := l.queue.pop()
			if !ok {
				break
			}
			if _, err := c.Write([]byte(cmd)); err != nil {
				metrics.CommandsDropped.WithLabelValues(l.cfg.kind).Inc()
				return fmt.Errorf("write: %w", err)
			}
			metrics.CommandsSent.WithLabelValues(l.cfg.kind).Inc()
			l.cfg.log.Debug("command sent", "kind", l.cfg.kind, "cmd", strings.TrimSpace(cmd))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-l.queue.ready():
		}
	}
}

func (l *link) seen() {
	metrics.LinesReceived.WithLabelValues(l.cfg.kind).Inc()
	now := time.Now().UTC()
	l.mu.Lock()
	l.lastSeen = now
	l.count++
	l.mu.Unlock()
}

func (l *link) fail(err error) {
	metrics.TransportFailures.WithLabelValues(l.cfg.kind).Inc()
	l.mu.Lock()
	l.lastErr = err.Error()
	l.failures++
	l.mu.Unlock()
}

func (l *link) setState(s State) {
	if State(l.state.Swap(int32(s))) == s {
		return
	}
	v := 0.0
	if s == Connected {
		v = 1
	}
	metrics.TransportConnected.WithLabelValues(l.cfg.kind).Set(v)
	if l.cfg.onState != nil {
		l.cfg.onState(s)
	}
}

// terminate appends CRLF to commands without a line terminator.
func terminate(cmd string) string {
	if strings.TrimSpace(cmd) == "" {
		return ""
	}
	if strings.HasSuffix(cmd, "\n") {
		return cmd
	}
	return strings.TrimRight(cmd, "\r") + "\r\n"
}
