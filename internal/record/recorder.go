package record

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

const DefaultPattern = "nmea-%Y%m%d.log"

type RecorderConfig struct {
	Dir string

	// Pattern is a strftime file name pattern evaluated in UTC for every
	// line; a new file is started whenever the name changes.
	Pattern string

	// FlushEvery bounds how long a line may sit in the write buffer; a
	// background ticker flushes even when no further line arrives.
	// If 0, defaults to 1s.
	FlushEvery time.Duration

	Logger *log.Logger
}

// Recorder appends raw lines to rotating log files.
type Recorder struct {
	cfg     RecorderConfig
	pattern *strftime.Strftime
	log     *log.Logger

	mu        sync.Mutex
	path      string
	w         *Writer
	lastFlush time.Time
	dirty     bool
	lines     uint64
	closed    bool

	stop chan struct{}
	done chan struct{}
}

func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	cfg.Dir = strings.TrimSpace(cfg.Dir)
	if cfg.Dir == "" {
		return nil, fmt.Errorf("record dir is required")
	}
	if strings.TrimSpace(cfg.Pattern) == "" {
		cfg.Pattern = DefaultPattern
	}
	if strings.ContainsRune(cfg.Pattern, os.PathSeparator) {
		return nil, fmt.Errorf("record pattern must be a file name, got %q", cfg.Pattern)
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = time.Second
	}
	p, err := strftime.New(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("record pattern %q: %w", cfg.Pattern, err)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("record dir: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	r := &Recorder{
		cfg:     cfg,
		pattern: p,
		log:     logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.flushLoop()
	return r, nil
}

func (r *Recorder) flushLoop() {
	defer close(r.done)
	t := time.NewTicker(r.cfg.FlushEvery)
	defer t.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			r.mu.Lock()
			if r.w != nil && r.dirty {
				if err := r.w.Flush(); err != nil {
					r.log.Warn("record flush failed", "path", r.path, "err", err)
				}
				r.dirty = false
			}
			r.mu.Unlock()
		}
	}
}

// Record appends one line received at now.
func (r *Recorder) Record(now time.Time, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder is closed")
	}

	path := filepath.Join(r.cfg.Dir, r.pattern.FormatString(now.UTC()))
	if path != r.path {
		if r.w != nil {
			if err := r.w.Close(); err != nil {
				r.log.Warn("record close failed", "path", r.path, "err", err)
			}
			r.w = nil
		}
		w, err := OpenWriter(path, now)
		if err != nil {
			return fmt.Errorf("record open: %w", err)
		}
		r.log.Info("recording", "path", path)
		r.path = path
		r.w = w
		r.lastFlush = now
	}

	if err := r.w.WriteLine(now, line); err != nil {
		return err
	}
	r.lines++
	r.dirty = true
	if now.Sub(r.lastFlush) >= r.cfg.FlushEvery {
		r.lastFlush = now
		r.dirty = false
		return r.w.Flush()
	}
	return nil
}

// Path returns the file currently written, if any.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Recorder) Lines() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stop)
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	return r.w.Close()
}
