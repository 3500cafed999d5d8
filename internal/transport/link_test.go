package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readResult struct {
	data string
	err  error
}

// fakeConn serves scripted reads and records writes.
type fakeConn struct {
	reads  chan readResult
	writes chan string
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan readResult, 16),
		writes: make(chan string, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case r := <-c.reads:
		return copy(p, r.data), r.err
	case <-c.closed:
		return 0, net.ErrClosed
	case <-time.After(10 * time.Millisecond):
		return 0, os.ErrDeadlineExceeded
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	select {
	case c.writes <- string(p):
		return len(p), nil
	case <-c.closed:
		return 0, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (s *stateLog) add(st State) {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
}

func (s *stateLog) get() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.states...)
}

func recvLine(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		require.True(t, ok, "lines channel closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for line")
		return ""
	}
}

func waitClosed(t *testing.T, ch <-chan string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("lines channel not closed")
		}
	}
}

func TestLink_SplitsLinesAcrossReads(t *testing.T) {
	c := newFakeConn()
	l := newLink(linkConfig{
		kind: "fake",
		open: func(ctx context.Context) (conn, string, error) { return c, "fake0", nil },
	})
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	c.reads <- readResult{data: "$GPGGA,1"}
	c.reads <- readResult{data: "23\r\n\r\n  \n$GPRMC"}
	c.reads <- readResult{data: ",4\n"}

	lines := l.Lines()
	assert.Equal(t, "$GPGGA,123", recvLine(t, lines))
	assert.Equal(t, "$GPRMC,4", recvLine(t, lines))

	snap := l.Snapshot()
	assert.Equal(t, "fake0", snap.Endpoint)
	assert.Equal(t, "connected", snap.State)
	assert.Equal(t, uint64(2), snap.Lines)
	assert.NotEmpty(t, snap.LastSeenUTC)
	assert.True(t, l.Connected())
}

func TestLink_ReadFailureReconnectsWithoutDuplicateTransitions(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	conns := make(chan *fakeConn, 2)
	conns <- first
	conns <- second

	states := &stateLog{}
	var mu sync.Mutex
	var slept []time.Duration

	l := newLink(linkConfig{
		kind:           "fake",
		reconnectDelay: time.Second,
		open: func(ctx context.Context) (conn, string, error) {
			select {
			case c := <-conns:
				return c, "fake", nil
			default:
				return nil, "", errors.New("no more conns")
			}
		},
		sleep: func(ctx context.Context, d time.Duration) bool {
			mu.Lock()
			slept = append(slept, d)
			mu.Unlock()
			return ctx.Err() == nil
		},
		onState: states.add,
	})
	require.NoError(t, l.Start(context.Background()))
	lines := l.Lines()

	first.reads <- readResult{data: "one\n"}
	assert.Equal(t, "one", recvLine(t, lines))
	first.reads <- readResult{err: errors.New("device removed")}

	second.reads <- readResult{data: "two\n"}
	assert.Equal(t, "two", recvLine(t, lines))

	l.Stop()
	waitClosed(t, lines)

	assert.Equal(t, []State{Connecting, Connected, Disconnected, Connecting, Connected, Disconnected}, states.get())
	mu.Lock()
	assert.Equal(t, []time.Duration{time.Second}, slept)
	mu.Unlock()

	snap := l.Snapshot()
	assert.Equal(t, uint64(2), snap.Connects)
	assert.Equal(t, uint64(1), snap.Failures)
	// A healthy reconnect clears the stale error.
	assert.Empty(t, snap.LastError)
	assert.False(t, snap.Running)
}

func TestLink_OneOpenPerBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	opens, sleeps := 0, 0
	l := newLink(linkConfig{
		kind:           "fake",
		reconnectDelay: time.Second,
		open: func(ctx context.Context) (conn, string, error) {
			mu.Lock()
			opens++
			mu.Unlock()
			return nil, "", errors.New("connection refused")
		},
		sleep: func(ctx context.Context, d time.Duration) bool {
			mu.Lock()
			sleeps++
			if sleeps == 3 {
				cancel()
			}
			mu.Unlock()
			return ctx.Err() == nil
		},
	})
	require.NoError(t, l.Start(ctx))
	waitClosed(t, l.Lines())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, opens)
	assert.Equal(t, 3, sleeps)
	assert.Equal(t, Disconnected, l.State())
}

func TestLink_CommandsQueuedUntilConnected(t *testing.T) {
	c := newFakeConn()
	ready := make(chan struct{})
	l := newLink(linkConfig{
		kind: "fake",
		open: func(ctx context.Context) (conn, string, error) {
			select {
			case <-ready:
				return c, "fake", nil
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		},
	})

	l.Send("$PMTK220,200*2C")
	l.Send("   ")
	l.Send("$PMTK314,0,1,0,1*28\r\n")
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()
	assert.Equal(t, 2, l.Snapshot().QueuedCommands)

	close(ready)
	for _, want := range []string{"$PMTK220,200*2C\r\n", "$PMTK314,0,1,0,1*28\r\n"} {
		select {
		case got := <-c.writes:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("command %q not written", want)
		}
	}
}

func TestLink_StopDropsQueueAndRestartUsesNewChannel(t *testing.T) {
	l := newLink(linkConfig{
		kind: "fake",
		open: func(ctx context.Context) (conn, string, error) {
			<-ctx.Done()
			return nil, "", ctx.Err()
		},
	})

	require.NoError(t, l.Start(context.Background()))
	require.Error(t, l.Start(context.Background()), "second start while running")
	first := l.Lines()

	l.Send("$PMTK000*32")
	l.Stop()
	l.Stop()
	waitClosed(t, first)
	assert.Zero(t, l.Snapshot().QueuedCommands)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()
	second := l.Lines()
	assert.NotEqual(t, first, second)
}

func TestLink_LinesBeforeStartIsClosed(t *testing.T) {
	l := newLink(linkConfig{kind: "fake"})
	_, ok := <-l.Lines()
	assert.False(t, ok)
}

func TestTerminate(t *testing.T) {
	assert.Equal(t, "", terminate(""))
	assert.Equal(t, "", terminate(" \r\n"))
	assert.Equal(t, "$A\r\n", terminate("$A"))
	assert.Equal(t, "$A\r\n", terminate("$A\r"))
	assert.Equal(t, "$A\n", terminate("$A\n"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "unknown", State(42).String())
}
