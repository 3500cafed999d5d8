// Package bridge runs the supervised pipeline that turns transport lines into
// delivered fixes: decode, correlate, notify subscribers, call the sink.
//
// A fault inside one iteration (including a panic in a subscriber or sink) is
// logged and the loop restarts after RestartDelay with a fresh correlation
// state. The process never exits because of a pipeline fault.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"nmea-bridge/internal/fix"
	"nmea-bridge/internal/metrics"
	"nmea-bridge/internal/nmea"
	"nmea-bridge/internal/notify"
	"nmea-bridge/internal/sink"
	"nmea-bridge/internal/transport"
)

// Tap observes every raw line before decoding, e.g. a recorder.
type Tap func(now time.Time, line string)

type Config struct {
	Transport transport.Transport
	Fix       fix.Config

	// Sink receives every accepted fix after the subscribers. May be nil.
	Sink sink.Sink

	// RestartDelay is the pause before a faulted pipeline restarts.
	// If 0, defaults to 2s.
	RestartDelay time.Duration

	// Commands are queued on the transport at every Start.
	Commands []string

	// TailLines is how many recent raw lines Snapshot reports.
	// If 0, defaults to 50.
	TailLines int

	Logger *log.Logger

	// Now and Sleep are replaceable in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) bool
}

type Bridge struct {
	cfg  Config
	log  *log.Logger
	tr   transport.Transport
	corr *fix.Correlator
	subs *notify.Notifier
	tail *lineTail

	tapsMu sync.RWMutex
	taps   []Tap

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	state    string
	lastErr  string
	lastFix  fix.Fix
	hasFix   bool
	lastSeen time.Time

	restarts     atomic.Uint64
	lines        atomic.Uint64
	sentences    atomic.Uint64
	decodeErrors atomic.Uint64
	accepted     atomic.Uint64
	rejected     atomic.Uint64
}

type Snapshot struct {
	State        string             `json:"state"`
	Running      bool               `json:"running"`
	LastError    string             `json:"last_error,omitempty"`
	Restarts     uint64             `json:"restarts"`
	Lines        uint64             `json:"lines"`
	Sentences    uint64             `json:"sentences"`
	DecodeErrors uint64             `json:"decode_errors"`
	Accepted     uint64             `json:"fixes_accepted"`
	Rejected     uint64             `json:"fixes_rejected"`
	Subscribers  int                `json:"subscribers"`
	LastFix      *fix.Fix           `json:"last_fix,omitempty"`
	LastFixUTC   string             `json:"last_fix_utc,omitempty"`
	Transport    transport.Snapshot `json:"transport"`
	RecentLines  []string           `json:"recent_lines,omitempty"`
}

func New(cfg Config) (*Bridge, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("bridge transport is required")
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 2 * time.Second
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = 50
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cfg.Fix.Logger == nil {
		cfg.Fix.Logger = logger
	}

	return &Bridge{
		cfg:   cfg,
		log:   logger,
		tr:    cfg.Transport,
		corr:  fix.NewCorrelator(cfg.Fix),
		subs:  notify.New(),
		tail:  newLineTail(cfg.TailLines, 512),
		state: "stopped",
	}, nil
}

// AddTap registers fn for every raw line. Taps run on the pipeline goroutine.
func (b *Bridge) AddTap(fn Tap) {
	if fn == nil {
		return
	}
	b.tapsMu.Lock()
	b.taps = append(b.taps, fn)
	b.tapsMu.Unlock()
}

// Start launches the transport and the pipeline. Correlation state from a
// previous run is discarded.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		// A run whose parent ctx ended without Stop is finished; release it.
		select {
		case <-b.done:
			b.cancel()
			b.tr.Stop()
			b.running = false
		default:
			return fmt.Errorf("bridge already running")
		}
	}

	// The previous run goroutine has exited (Stop waits for it), so the
	// correlator is not shared here.
	b.corr.Reset()
	b.tail.reset()
	b.lastFix, b.hasFix = fix.Fix{}, false
	b.lastErr = ""

	if err := b.tr.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	for _, cmd := range b.cfg.Commands {
		b.tr.Send(cmd)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.running = true
	b.cancel = cancel
	b.done = done
	b.state = "running"

	go b.run(runCtx, b.tr.Lines(), done)
	b.log.Info("bridge started", "commands", len(b.cfg.Commands))
	return nil
}

// Stop is idempotent. Once it returns no further fix is delivered.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	b.tr.Stop()
	<-done
	b.log.Info("bridge stopped")
}

// Send routes a receiver command to the transport.
func (b *Bridge) Send(cmd string) {
	b.tr.Send(cmd)
}

func (b *Bridge) Subscribe(s notify.Subscriber) bool {
	ok := b.subs.Subscribe(s)
	metrics.Subscribers.Set(float64(b.subs.Len()))
	return ok
}

func (b *Bridge) Unsubscribe(s notify.Subscriber) bool {
	ok := b.subs.Unsubscribe(s)
	metrics.Subscribers.Set(float64(b.subs.Len()))
	return ok
}

func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runningLocked()
}

// runningLocked also reports false once the run loop has exited because the
// parent ctx ended.
func (b *Bridge) runningLocked() bool {
	if !b.running {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	s := Snapshot{
		State:     b.state,
		Running:   b.runningLocked(),
		LastError: b.lastErr,
	}
	if b.hasFix {
		f := b.lastFix
		s.LastFix = &f
		s.LastFixUTC = f.Time().Format(time.RFC3339Nano)
	}
	b.mu.Unlock()

	s.Restarts = b.restarts.Load()
	s.Lines = b.lines.Load()
	s.Sentences = b.sentences.Load()
	s.DecodeErrors = b.decodeErrors.Load()
	s.Accepted = b.accepted.Load()
	s.Rejected = b.rejected.Load()
	s.Subscribers = b.subs.Len()
	s.Transport = b.tr.Snapshot()
	s.RecentLines = b.tail.snapshot()
	return s
}

func (b *Bridge) run(ctx context.Context, lines <-chan string, done chan struct{}) {
	defer close(done)

	for {
		err := b.pipeline(ctx, lines)
		if err == nil || ctx.Err() != nil {
			b.setState("stopped", "")
			return
		}

		b.restarts.Add(1)
		metrics.PipelineRestarts.Inc()
		b.log.Error("pipeline failed", "err", err, "restart_in", b.cfg.RestartDelay)
		b.setState("restarting", err.Error())

		if !b.cfg.Sleep(ctx, b.cfg.RestartDelay) {
			b.setState("stopped", "")
			return
		}
		b.corr.Reset()
		b.setState("running", "")
	}
}

// pipeline consumes lines in arrival order until the channel closes, ctx is
// done, or one line faults.
func (b *Bridge) pipeline(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := b.handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) handle(ctx context.Context, line string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	start := time.Now()
	defer metrics.ObserveProcessLatency(start)

	now := b.cfg.Now()
	b.lines.Add(1)
	b.tail.add(line)
	b.tapsMu.RLock()
	taps := b.taps
	b.tapsMu.RUnlock()
	for _, tap := range taps {
		tap(now, line)
	}

	s, err := nmea.Decode(line)
	if err != nil {
		b.decodeErrors.Add(1)
		metrics.DecodeErrors.WithLabelValues(decodeReason(err)).Inc()
		b.log.Debug("line ignored", "line", line, "err", err)
		return nil
	}
	b.sentences.Add(1)
	metrics.Sentences.WithLabelValues(string(s.Type())).Inc()

	f, outcome := b.corr.Process(now, s)
	if outcome == fix.NoCandidate {
		return nil
	}
	metrics.Fixes.WithLabelValues(outcome.String()).Inc()
	if outcome != fix.Accepted {
		b.rejected.Add(1)
		return nil
	}
	// Stop may have been called while this line was queued.
	if ctx.Err() != nil {
		return nil
	}
	b.accepted.Add(1)

	b.mu.Lock()
	b.lastFix, b.hasFix = f, true
	b.mu.Unlock()

	b.subs.Notify(f)
	if b.cfg.Sink != nil {
		if err := b.cfg.Sink.SetLocation(f.Lat, f.Lon, f.AccuracyMeters, f.TimestampMs); err != nil {
			b.log.Debug("sink rejected fix", "err", err)
		}
	}
	return nil
}

func (b *Bridge) setState(state, lastErr string) {
	b.mu.Lock()
	b.state = state
	if lastErr != "" {
		b.lastErr = lastErr
	}
	b.mu.Unlock()
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, nmea.ErrNotNMEA):
		return "not_nmea"
	case errors.Is(err, nmea.ErrUnsupported):
		return "unsupported"
	default:
		return "other"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
