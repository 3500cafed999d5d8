package nmea

import (
	"strconv"
	"strings"
	"time"
)

// fields is the comma-split sentence, index 0 being the talker+type.
type fields []string

func (f fields) str(i int) string {
	if i < 0 || i >= len(f) {
		return ""
	}
	return strings.TrimSpace(f[i])
}

func (f fields) floatOK(i int) (float64, bool) {
	return parseFloat(f.str(i))
}

func (f fields) float(i int) float64 {
	v, _ := f.floatOK(i)
	return v
}

func (f fields) intOK(i int) (int, bool) {
	s := f.str(i)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (f fields) int(i int) int {
	v, _ := f.intOK(i)
	return v
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// LatLon converts an NMEA ddmm.mmmm (N/S) or dddmm.mmmm (E/W) coordinate to
// signed decimal degrees.
//
// Latitude uses two degree digits and everything else three. Empty or
// malformed values yield 0.
func LatLon(v string, hemi string) float64 {
	v = strings.TrimSpace(v)
	hemi = strings.ToUpper(strings.TrimSpace(hemi))
	if v == "" {
		return 0
	}

	degLen := 3
	if hemi == "N" || hemi == "S" {
		degLen = 2
	}
	if len(v) < degLen {
		return 0
	}

	deg, err := strconv.Atoi(v[:degLen])
	if err != nil || deg < 0 {
		return 0
	}
	mins, _ := parseFloat(v[degLen:])
	if mins < 0 {
		mins = 0
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec
}

// Timestamp combines an RMC ddmmyy date with an hhmmss[.sss] time of day into
// a UTC instant. Years are 2000+yy and fractional seconds are dropped.
func Timestamp(date string, tod string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	tod = strings.TrimSpace(tod)
	if len(date) != 6 || len(tod) < 6 {
		return time.Time{}, false
	}

	var n [6]int
	digits := date + tod[:6]
	for i := 0; i < 6; i++ {
		v, err := strconv.Atoi(digits[i*2 : i*2+2])
		if err != nil || v < 0 {
			return time.Time{}, false
		}
		n[i] = v
	}
	day, month, yy, hh, mm, ss := n[0], n[1], n[2], n[3], n[4], n[5]
	if day < 1 || day > 31 || month < 1 || month > 12 || hh > 23 || mm > 59 || ss > 60 {
		return time.Time{}, false
	}

	t := time.Date(2000+yy, time.Month(month), day, hh, mm, ss, 0, time.UTC)
	// time.Date normalizes 31 Feb into March; reject it instead.
	if t.Day() != day && ss != 60 {
		return time.Time{}, false
	}
	return t, true
}

// ValidDate reports whether s is a well-formed ddmmyy date fragment.
func ValidDate(s string) bool {
	_, ok := Timestamp(s, "000000")
	return ok
}
