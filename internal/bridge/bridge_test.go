package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nmea-bridge/internal/sink"
	"nmea-bridge/internal/transport"
)

const (
	ggaA = "$GPGGA,123519.00,3725.3199,N,12205.0400,W,1,08,0.9,545.4,M,46.9,M,,*47"
	ggaB = "$GPGGA,123520.00,3725.4199,N,12205.0400,W,1,08,0.9,545.4,M,46.9,M,,*47"
	rmc  = "$GPRMC,123519.00,A,3725.3199,N,12205.0400,W,0.0,0.0,230725,,,A*6A"
)

type fakeTransport struct {
	mu     sync.Mutex
	lines  chan string
	sent   []string
	starts int
	stops  int
}

func (f *fakeTransport) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = make(chan string, 16)
	f.starts++
	return nil
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lines != nil {
		close(f.lines)
		f.lines = nil
	}
	f.stops++
}

func (f *fakeTransport) Send(cmd string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
}

func (f *fakeTransport) Lines() <-chan string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lines
}

func (f *fakeTransport) Connected() bool        { return true }
func (f *fakeTransport) State() transport.State { return transport.Connected }
func (f *fakeTransport) Snapshot() transport.Snapshot {
	return transport.Snapshot{Kind: "fake", State: "connected", Running: true}
}

func (f *fakeTransport) feed(lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range lines {
		f.lines <- l
	}
}

func (f *fakeTransport) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// stepClock advances one second per call so the time debounce never trips.
type stepClock struct{ n atomic.Int64 }

func (c *stepClock) Now() time.Time {
	return time.Unix(1753274119+c.n.Add(1), 0)
}

type location struct{ lat, lon, speed float64 }

type recorder struct {
	mu   sync.Mutex
	got  []location
	hook func(n int)
}

func (r *recorder) OnLocationUpdate(lat, lon, speed float64) {
	r.mu.Lock()
	r.got = append(r.got, location{lat, lon, speed})
	n := len(r.got)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(n)
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func newTestBridge(t *testing.T, tr *fakeTransport, mutate func(*Config)) *Bridge {
	t.Helper()
	clock := &stepClock{}
	cfg := Config{Transport: tr, Now: clock.Now}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(b.Stop)
	return b
}

func TestNew_RequiresTransport(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestBridge_DeliversToSubscribersAndSink(t *testing.T) {
	tr := &fakeTransport{}
	var sinkCalls atomic.Int32
	var gotTs atomic.Int64
	b := newTestBridge(t, tr, func(c *Config) {
		c.Sink = sink.Func(func(lat, lon float64, acc float32, ts int64) error {
			sinkCalls.Add(1)
			gotTs.Store(ts)
			return nil
		})
	})
	rec := &recorder{}
	require.True(t, b.Subscribe(rec))
	require.False(t, b.Subscribe(rec))

	require.NoError(t, b.Start(context.Background()))
	tr.feed(rmc, ggaA, "garbage", "$GPZDA,1,2,3")

	require.Eventually(t, func() bool { return sinkCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, rec.count())
	rec.mu.Lock()
	got := rec.got[0]
	rec.mu.Unlock()
	assert.InDelta(t, 37.421998, got.lat, 1e-5)
	assert.InDelta(t, -122.084, got.lon, 1e-5)
	assert.Zero(t, got.speed)
	assert.Equal(t, time.Date(2025, 7, 23, 12, 35, 19, 0, time.UTC).UnixMilli(), gotTs.Load())

	require.Eventually(t, func() bool { return b.Snapshot().Lines == 4 }, 2*time.Second, 5*time.Millisecond)
	snap := b.Snapshot()
	assert.Equal(t, "running", snap.State)
	assert.Equal(t, uint64(2), snap.Sentences)
	assert.Equal(t, uint64(2), snap.DecodeErrors)
	assert.Equal(t, uint64(1), snap.Accepted)
	assert.Equal(t, 1, snap.Subscribers)
	require.NotNil(t, snap.LastFix)
	assert.Equal(t, "2025-07-23T12:35:19Z", snap.LastFixUTC)
	assert.Equal(t, []string{rmc, ggaA, "garbage", "$GPZDA,1,2,3"}, snap.RecentLines)
}

func TestBridge_DistanceDebounce(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)
	rec := &recorder{}
	b.Subscribe(rec)
	require.NoError(t, b.Start(context.Background()))

	tr.feed(ggaA, ggaA, ggaB)
	require.Eventually(t, func() bool { return b.Snapshot().Lines == 3 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), b.Snapshot().Rejected)
}

func TestBridge_CommandsSentAtStart(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, func(c *Config) {
		c.Commands = []string{"$PMTK220,200*2C"}
	})
	require.NoError(t, b.Start(context.Background()))
	b.Send("$PMTK314,0,1,0,1,1,5,0,0,0,0,0,0,0,0,0,0,0,0,0*2C")

	assert.Equal(t, []string{"$PMTK220,200*2C", "$PMTK314,0,1,0,1,1,5,0,0,0,0,0,0,0,0,0,0,0,0,0*2C"}, tr.commands())
	require.Error(t, b.Start(context.Background()))
}

func TestBridge_TapsSeeRawLines(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)
	var mu sync.Mutex
	var seen []string
	b.AddTap(func(now time.Time, line string) {
		mu.Lock()
		seen = append(seen, line)
		mu.Unlock()
	})
	require.NoError(t, b.Start(context.Background()))
	tr.feed("hello", ggaA)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hello", ggaA}, seen)
}

func TestBridge_NoDeliveryAfterStop(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	rec := &recorder{hook: func(n int) {
		if n == 1 {
			close(entered)
			<-release
		}
	}}
	b.Subscribe(rec)
	require.NoError(t, b.Start(context.Background()))

	tr.feed(ggaA, ggaB)
	<-entered

	stopped := make(chan struct{})
	go func() {
		b.Stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool { return !b.Running() }, 2*time.Second, 5*time.Millisecond)
	close(release)
	<-stopped

	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "stopped", b.Snapshot().State)
}

func TestBridge_RestartUsesCleanState(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)
	rec := &recorder{}
	b.Subscribe(rec)

	require.NoError(t, b.Start(context.Background()))
	tr.feed(ggaA)
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	b.Stop()
	b.Stop()

	require.NoError(t, b.Start(context.Background()))
	// Same position: only delivered if the previous fix was forgotten.
	tr.feed(ggaA)
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	b.Stop()
	assert.Equal(t, 2, tr.starts)
	assert.Equal(t, 2, tr.stops)
}

func TestBridge_RecoversFromPanic(t *testing.T) {
	tr := &fakeTransport{}
	var slept []time.Duration
	var mu sync.Mutex
	b := newTestBridge(t, tr, func(c *Config) {
		c.Sleep = func(ctx context.Context, d time.Duration) bool {
			mu.Lock()
			slept = append(slept, d)
			mu.Unlock()
			return ctx.Err() == nil
		}
	})
	rec := &recorder{hook: func(n int) {
		if n == 1 {
			panic("subscriber exploded")
		}
	}}
	b.Subscribe(rec)
	require.NoError(t, b.Start(context.Background()))

	tr.feed(ggaA)
	require.Eventually(t, func() bool { return b.Snapshot().Restarts == 1 }, 2*time.Second, 5*time.Millisecond)
	tr.feed(ggaA)
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	snap := b.Snapshot()
	assert.Equal(t, "running", snap.State)
	assert.Contains(t, snap.LastError, "subscriber exploded")
	mu.Lock()
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
	mu.Unlock()
}

func TestBridge_SinkErrorDoesNotRestart(t *testing.T) {
	tr := &fakeTransport{}
	var calls atomic.Int32
	b := newTestBridge(t, tr, func(c *Config) {
		c.Sink = sink.Func(func(lat, lon float64, acc float32, ts int64) error {
			calls.Add(1)
			return assert.AnError
		})
	})
	require.NoError(t, b.Start(context.Background()))
	tr.feed(ggaA, ggaB)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, b.Snapshot().Restarts)
}

func TestLineTail(t *testing.T) {
	tail := newLineTail(3, 4)
	assert.Empty(t, tail.snapshot())
	for _, l := range []string{"a", "b", "c", "d", "toolong"} {
		tail.add(l)
	}
	assert.Equal(t, []string{"c", "d", "tool"}, tail.snapshot())
	tail.reset()
	assert.Empty(t, tail.snapshot())

	newLineTail(0, 0).add("x")
}

func TestBridge_StartAfterParentContextEnds(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)
	rec := &recorder{}
	b.Subscribe(rec)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !b.Running() }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, b.Snapshot().Running)
	assert.Equal(t, "stopped", b.Snapshot().State)

	require.NoError(t, b.Start(context.Background()))
	assert.True(t, b.Running())
	tr.feed(ggaA)
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, tr.starts)
	assert.Equal(t, 1, tr.stops)
}
