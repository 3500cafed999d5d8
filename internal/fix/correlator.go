package fix

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"nmea-bridge/internal/nmea"
)

// Outcome describes what Process did with one sentence.
type Outcome int

const (
	// NoCandidate means the sentence does not carry a deliverable position.
	NoCandidate Outcome = iota
	Accepted
	RejectedInterval
	RejectedDistance
	RejectedPosition
)

func (o Outcome) String() string {
	switch o {
	case NoCandidate:
		return "no_candidate"
	case Accepted:
		return "accepted"
	case RejectedInterval:
		return "rejected_interval"
	case RejectedDistance:
		return "rejected_distance"
	case RejectedPosition:
		return "rejected_position"
	default:
		return "unknown"
	}
}

type Config struct {
	// MinInterval is the wall-clock debounce between accepted fixes.
	// If 0, defaults to 100ms.
	MinInterval time.Duration

	// MinDistanceM rejects candidates closer than this to the last accepted
	// position. If 0, defaults to 0.5 m.
	MinDistanceM float64

	// AccuracyPerHDOP scales GGA HDOP into an accuracy estimate in meters.
	// If 0, defaults to 5.0.
	AccuracyPerHDOP float64

	// GLLFallback lets GLL sentences produce fixes while no GGA has been seen.
	GLLFallback bool

	// GLLAccuracyM is the fixed accuracy reported for GLL fixes.
	// If 0, defaults to 5.0.
	GLLAccuracyM float32

	Logger *log.Logger
}

// Correlator merges multi-sentence state into fixes and applies the time and
// distance debounce. It is not safe for concurrent use; the owning pipeline
// calls it from a single goroutine.
type Correlator struct {
	cfg Config
	log *log.Logger

	date    string
	hasDate bool

	lastLat, lastLon float64
	hasLastPos       bool
	lastAccepted     time.Time

	seenGGA bool
}

func NewCorrelator(cfg Config) *Correlator {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 100 * time.Millisecond
	}
	if cfg.MinDistanceM <= 0 {
		cfg.MinDistanceM = 0.5
	}
	if cfg.AccuracyPerHDOP <= 0 {
		cfg.AccuracyPerHDOP = 5.0
	}
	if cfg.GLLAccuracyM <= 0 {
		cfg.GLLAccuracyM = 5.0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Correlator{cfg: cfg, log: logger}
}

// Reset drops the date fragment and the last accepted fix.
func (c *Correlator) Reset() {
	c.date = ""
	c.hasDate = false
	c.lastLat, c.lastLon = 0, 0
	c.hasLastPos = false
	c.lastAccepted = time.Time{}
	c.seenGGA = false
}

// DateFragment returns the most recent RMC ddmmyy, if any.
func (c *Correlator) DateFragment() (string, bool) {
	return c.date, c.hasDate
}

// Process folds one sentence into the correlation state. now is the
// wall-clock receipt time. The returned Fix is only meaningful when the
// outcome is Accepted.
func (c *Correlator) Process(now time.Time, s nmea.Sentence) (Fix, Outcome) {
	switch v := s.(type) {
	case nmea.RMC:
		if nmea.ValidDate(v.Date) {
			c.date = v.Date
			c.hasDate = true
		}
		return Fix{}, NoCandidate
	case nmea.GGA:
		c.seenGGA = true
		acc := float32(v.HDOP * c.cfg.AccuracyPerHDOP)
		return c.candidate(now, v.Lat, v.Lon, acc, v.Time)
	case nmea.GLL:
		if !c.cfg.GLLFallback || c.seenGGA {
			return Fix{}, NoCandidate
		}
		return c.candidate(now, v.Lat, v.Lon, c.cfg.GLLAccuracyM, v.Time)
	case nmea.GSA:
		c.log.Debug("gsa", "fix_type", v.FixType, "pdop", v.PDOP, "hdop", v.HDOP, "vdop", v.VDOP)
		return Fix{}, NoCandidate
	case nmea.GSV:
		c.log.Debug("gsv", "in_view", v.SatellitesInView, "satellites", len(v.Satellites))
		return Fix{}, NoCandidate
	case nmea.VTG:
		c.log.Debug("vtg", "course", v.CourseDeg, "knots", v.SpeedKnots, "kmh", v.SpeedKmh)
		return Fix{}, NoCandidate
	default:
		return Fix{}, NoCandidate
	}
}

func (c *Correlator) candidate(now time.Time, lat, lon float64, acc float32, tod string) (Fix, Outcome) {
	f := Fix{Lat: lat, Lon: lon, AccuracyMeters: acc, TimestampMs: c.timestamp(now, tod)}
	// Empty coordinate fields decode to 0,0; that is not a position.
	if (lat == 0 && lon == 0) || !f.Valid() {
		return Fix{}, RejectedPosition
	}

	if !c.lastAccepted.IsZero() && now.Sub(c.lastAccepted) < c.cfg.MinInterval {
		return Fix{}, RejectedInterval
	}
	if c.hasLastPos && Distance(c.lastLat, c.lastLon, lat, lon) < c.cfg.MinDistanceM {
		return Fix{}, RejectedDistance
	}

	c.lastLat, c.lastLon = lat, lon
	c.hasLastPos = true
	c.lastAccepted = now
	return f, Accepted
}

// timestamp combines the held date with the sentence time of day, falling
// back to the receipt time before the first RMC.
func (c *Correlator) timestamp(now time.Time, tod string) int64 {
	if c.hasDate {
		if t, ok := nmea.Timestamp(c.date, tod); ok {
			return t.UnixMilli()
		}
	}
	return now.UnixMilli()
}
