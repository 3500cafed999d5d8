package transport

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"nmea-bridge/internal/record"
)

type ReplayConfig struct {
	// Path is a log written by record.Recorder.
	Path string

	// Speed multiplies playback rate. If 0, defaults to 1.
	Speed float64

	// Loop restarts from the beginning when the log ends. Without it the
	// connection stays open and idle after the last line.
	Loop bool

	// ReconnectDelay is the fixed backoff between attempts. If 0, defaults to 1s.
	ReconnectDelay time.Duration

	Logger *log.Logger

	// Sleeper overrides playback timing.
	Sleeper record.Sleeper
}

// Replay feeds a recorded log through the same pipeline as a live receiver.
type Replay struct {
	*link
	cfg ReplayConfig
}

func NewReplay(cfg ReplayConfig) (*Replay, error) {
	cfg.Path = strings.TrimSpace(cfg.Path)
	if cfg.Path == "" {
		return nil, fmt.Errorf("replay transport path is required")
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1
	}
	if cfg.Speed < 0 {
		return nil, fmt.Errorf("replay speed must be > 0")
	}

	r := &Replay{cfg: cfg}
	r.link = newLink(linkConfig{
		kind:           "replay",
		endpoint:       cfg.Path,
		open:           r.open,
		reconnectDelay: cfg.ReconnectDelay,
		log:            cfg.Logger,
	})
	return r, nil
}

func (r *Replay) open(ctx context.Context) (conn, string, error) {
	recs, err := record.ReadFile(r.cfg.Path)
	if err != nil {
		return nil, "", err
	}
	if !record.HasData(recs) {
		return nil, "", fmt.Errorf("%s: no data records", r.cfg.Path)
	}

	pctx, cancel := context.WithCancel(ctx)
	c := &replayConn{
		data:        make(chan []byte, 16),
		cancel:      cancel,
		readTimeout: time.Second,
	}
	go func() {
		err := record.Play(pctx, recs, r.cfg.Speed, r.cfg.Loop, r.cfg.Sleeper, func(line string) error {
			select {
			case c.data <- []byte(line + "\n"):
				return nil
			case <-pctx.Done():
				return pctx.Err()
			}
		})
		if err == nil {
			r.link.cfg.log.Info("replay finished", "path", r.cfg.Path)
		}
	}()
	return c, r.cfg.Path, nil
}

// replayConn hands out played lines. Commands are accepted and discarded.
type replayConn struct {
	data        chan []byte
	pending     []byte
	cancel      context.CancelFunc
	readTimeout time.Duration
}

func (c *replayConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		t := time.NewTimer(c.readTimeout)
		defer t.Stop()
		select {
		case b := <-c.data:
			c.pending = b
		case <-t.C:
			return 0, os.ErrDeadlineExceeded
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *replayConn) Write(p []byte) (int, error) {
	return len(p), nil
}

func (c *replayConn) Close() error {
	c.cancel()
	return nil
}
