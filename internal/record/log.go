// Package record stores raw NMEA lines with their relative arrival times and
// plays them back.
package record

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Log format: line-oriented text.
//
// - Blank lines and lines starting with '#' are ignored.
// - "START" resets the origin; later offsets are relative to it.
// - Data lines are <t_ns>,<sentence> where t_ns is nanoseconds since START
//   and sentence is the raw line as received. Only the first comma splits.

type Record struct {
	At time.Duration
	// Line is empty for a START marker.
	Line string
}

func (r Record) IsStart() bool { return r.Line == "" }

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var recs []Record
	for n := 1; s.Scan(); n++ {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}

		ts, payload, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("line %d: missing comma: %q", n, line)
		}
		ts = strings.TrimSpace(ts)
		payload = strings.TrimSpace(payload)
		if ts == "" || payload == "" {
			return nil, fmt.Errorf("line %d: empty field: %q", n, line)
		}
		ns, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid timestamp %q: %w", n, ts, err)
		}
		if ns < 0 {
			return nil, fmt.Errorf("line %d: negative timestamp %d", n, ns)
		}
		recs = append(recs, Record{At: time.Duration(ns), Line: payload})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// ReadFile loads every record in path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// Writer appends records to one file, opening it with a START marker.
type Writer struct {
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

// OpenWriter appends to path, creating it if needed.
func OpenWriter(path string, now time.Time) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 32*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: now}, nil
}

func (ww *Writer) WriteLine(now time.Time, line string) error {
	if ww.closed {
		return errors.New("record writer is closed")
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return errors.New("line is empty")
	}
	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), line)
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

// Sleeper waits d or until ctx is done and reports whether d elapsed.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) bool
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// HasData reports whether records hold at least one line besides START
// markers.
func HasData(records []Record) bool {
	for _, r := range records {
		if !r.IsStart() {
			return true
		}
	}
	return false
}

// Play replays records with their relative timing, calling cb for every data
// record. START markers reset the origin.
//
// speed: 1.0 = real time, 2.0 = twice as fast, 0.5 = half speed.
func Play(ctx context.Context, records []Record, speed float64, loop bool, sleeper Sleeper, cb func(line string) error) error {
	if speed <= 0 {
		return fmt.Errorf("speed must be > 0")
	}
	if sleeper == nil {
		sleeper = timerSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if !HasData(records) {
		return errors.New("no data records")
	}

	for {
		var origin, lastAt time.Duration
		haveLast := false

		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.IsStart() {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}

			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if haveLast {
				wait := time.Duration(float64(max(at-lastAt, 0)) / speed)
				if wait > 0 && !sleeper.Sleep(ctx, wait) {
					return ctx.Err()
				}
			}

			if err := cb(r.Line); err != nil {
				return err
			}
			lastAt = at
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}
