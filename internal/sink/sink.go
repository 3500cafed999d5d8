// Package sink delivers accepted fixes to external consumers.
package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"nmea-bridge/internal/fix"
	"nmea-bridge/internal/metrics"
)

// Sink accepts one fix per call, in delivery order. Implementations should
// bound their own latency: they run on the pipeline goroutine.
type Sink interface {
	SetLocation(lat, lon float64, accuracy float32, timestampMs int64) error
}

// Func adapts a function to Sink.
type Func func(lat, lon float64, accuracy float32, timestampMs int64) error

func (f Func) SetLocation(lat, lon float64, accuracy float32, timestampMs int64) error {
	return f(lat, lon, accuracy, timestampMs)
}

// payload is the wire form shared by the MQTT, Redis and UDP sinks.
type payload struct {
	fix.Fix
	Time string `json:"time"`
}

func encode(lat, lon float64, accuracy float32, timestampMs int64) ([]byte, error) {
	f := fix.Fix{Lat: lat, Lon: lon, AccuracyMeters: accuracy, TimestampMs: timestampMs}
	return json.Marshal(payload{Fix: f, Time: f.Time().Format("2006-01-02T15:04:05.000Z")})
}

type named struct {
	name string
	sink Sink
}

// Multi fans a fix out to every registered sink. A failing sink is logged
// and counted; the others still receive the fix.
type Multi struct {
	log *log.Logger

	mu    sync.RWMutex
	sinks []named
}

func NewMulti(logger *log.Logger) *Multi {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Multi{log: logger}
}

func (m *Multi) Add(name string, s Sink) {
	if s == nil {
		return
	}
	m.mu.Lock()
	m.sinks = append(m.sinks, named{name: name, sink: s})
	m.mu.Unlock()
}

func (m *Multi) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		out = append(out, s.name)
	}
	return out
}

func (m *Multi) SetLocation(lat, lon float64, accuracy float32, timestampMs int64) error {
	m.mu.RLock()
	sinks := m.sinks
	m.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.sink.SetLocation(lat, lon, accuracy, timestampMs); err != nil {
			metrics.SinkErrors.WithLabelValues(s.name).Inc()
			m.log.Warn("sink delivery failed", "sink", s.name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (m *Multi) Close() error {
	m.mu.Lock()
	sinks := m.sinks
	m.sinks = nil
	m.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if c, ok := s.sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			}
		}
	}
	return errors.Join(errs...)
}
