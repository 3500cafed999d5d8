// Package fix correlates decoded NMEA sentences into filtered position fixes.
package fix

import (
	"time"

	"github.com/golang/geo/s2"
)

// EarthRadiusM is the sphere radius used for great-circle distances.
const EarthRadiusM = 6371000.0

// Fix is a position ready for delivery. It is passed by value.
type Fix struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	AccuracyMeters float32 `json:"accuracy_m"`
	TimestampMs    int64   `json:"timestamp_ms"`
}

// Time returns the fix timestamp as a UTC time.
func (f Fix) Time() time.Time {
	return time.UnixMilli(f.TimestampMs).UTC()
}

// Valid reports whether the coordinates and accuracy are in range.
func (f Fix) Valid() bool {
	return f.Lat >= -90 && f.Lat <= 90 &&
		f.Lon >= -180 && f.Lon <= 180 &&
		f.AccuracyMeters >= 0
}

// Distance returns the haversine great-circle distance in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusM
}
