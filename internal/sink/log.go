package sink

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Log writes every fix to a logger at info level.
type Log struct {
	log *log.Logger
}

func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Log{log: logger}
}

func (l *Log) SetLocation(lat, lon float64, accuracy float32, timestampMs int64) error {
	l.log.Info("fix",
		"lat", lat,
		"lon", lon,
		"accuracy_m", accuracy,
		"fix_time", time.UnixMilli(timestampMs).UTC().Format(time.RFC3339Nano))
	return nil
}
