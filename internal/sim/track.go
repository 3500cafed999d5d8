// Package sim generates NMEA-0183 traffic for a moving receiver and serves it
// over TCP, for exercising the bridge without hardware.
package sim

import (
	"math"
	"time"
)

const metersPerDegLat = 111111.0

// State is the simulated receiver state at one instant.
type State struct {
	Lat        float64
	Lon        float64
	AltM       float64
	SpeedKnots float64
	CourseDeg  float64
	HDOP       float64
	Satellites int
	// NoFix reports a receiver without a position (GGA quality 0, RMC void).
	NoFix bool
}

// Source yields the state at an elapsed time since the simulation started.
type Source interface {
	StateAt(elapsed time.Duration) State
}

// Figure8 is a deterministic Lissajous track around a center point.
type Figure8 struct {
	CenterLat float64
	CenterLon float64
	// RadiusM bounds the east-west excursion. If 0, defaults to 500 m.
	RadiusM float64
	// Period is one full loop. If 0, defaults to 120s.
	Period time.Duration
	AltM   float64
	HDOP   float64
}

func (f Figure8) StateAt(elapsed time.Duration) State {
	period := f.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	radius := f.RadiusM
	if radius <= 0 {
		radius = 500
	}
	hdop := f.HDOP
	if hdop <= 0 {
		hdop = 0.9
	}
	if elapsed < 0 {
		elapsed = 0
	}

	phase := float64(elapsed%period) / float64(period)
	w := 2 * math.Pi * phase

	// x east, y north, in units of radius:
	//	x = cos(w), y = 0.5*sin(2w)
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	cosLat := math.Cos(f.CenterLat * math.Pi / 180)
	lat := f.CenterLat + radius*y/metersPerDegLat
	lon := f.CenterLon + radius*x/(metersPerDegLat*cosLat)

	// Velocity in m/s from the derivative of the parametric path.
	dw := 2 * math.Pi / period.Seconds()
	ve := -radius * math.Sin(w) * dw
	vn := radius * math.Cos(2*w) * dw
	course := math.Mod(math.Atan2(ve, vn)*180/math.Pi+360, 360)
	speedKnots := math.Hypot(ve, vn) * 3600 / 1852

	return State{
		Lat:        lat,
		Lon:        lon,
		AltM:       f.AltM,
		SpeedKnots: speedKnots,
		CourseDeg:  course,
		HDOP:       hdop,
		Satellites: 8,
	}
}
