package sim

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Checksum is the XOR of every byte between '$' and '*'.
func Checksum(body string) string {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return fmt.Sprintf("%02X", cs)
}

// Frame wraps a sentence body as "$body*hh".
func Frame(body string) string {
	return "$" + body + "*" + Checksum(body)
}

// FormatLat renders decimal degrees as ddmm.mmmm plus hemisphere.
func FormatLat(deg float64) (string, string) {
	d, m := splitMinutes(deg)
	hemi := "N"
	if deg < 0 {
		hemi = "S"
	}
	return fmt.Sprintf("%02d%07.4f", d, m), hemi
}

// FormatLon renders decimal degrees as dddmm.mmmm plus hemisphere.
func FormatLon(deg float64) (string, string) {
	d, m := splitMinutes(deg)
	hemi := "E"
	if deg < 0 {
		hemi = "W"
	}
	return fmt.Sprintf("%03d%07.4f", d, m), hemi
}

// splitMinutes rounds to 1e-4 minutes first so 59.99995 never prints as 60.
func splitMinutes(deg float64) (int64, float64) {
	units := int64(math.Round(math.Abs(deg) * 60 * 1e4))
	d := units / (60 * 1e4)
	return d, float64(units-d*60*1e4) / 1e4
}

func clock(now time.Time) (tod, date string) {
	now = now.UTC()
	return now.Format("150405") + fmt.Sprintf(".%02d", now.Nanosecond()/1e7), now.Format("020106")
}

func RMC(now time.Time, st State) string {
	tod, date := clock(now)
	if st.NoFix {
		return Frame(fmt.Sprintf("GPRMC,%s,V,,,,,,,%s,,,N", tod, date))
	}
	lat, ns := FormatLat(st.Lat)
	lon, ew := FormatLon(st.Lon)
	return Frame(fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,%.1f,%.1f,%s,,,A",
		tod, lat, ns, lon, ew, st.SpeedKnots, st.CourseDeg, date))
}

func GGA(now time.Time, st State) string {
	tod, _ := clock(now)
	if st.NoFix {
		return Frame(fmt.Sprintf("GPGGA,%s,,,,,0,00,99.9,,M,,M,,", tod))
	}
	lat, ns := FormatLat(st.Lat)
	lon, ew := FormatLon(st.Lon)
	return Frame(fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,%02d,%.1f,%.1f,M,0.0,M,,",
		tod, lat, ns, lon, ew, st.Satellites, st.HDOP, st.AltM))
}

func GLL(now time.Time, st State) string {
	tod, _ := clock(now)
	if st.NoFix {
		return Frame(fmt.Sprintf("GPGLL,,,,,%s,V,N", tod))
	}
	lat, ns := FormatLat(st.Lat)
	lon, ew := FormatLon(st.Lon)
	return Frame(fmt.Sprintf("GPGLL,%s,%s,%s,%s,%s,A,A", lat, ns, lon, ew, tod))
}

func GSA(st State) string {
	prns := make([]string, 12)
	fixType := "1"
	if !st.NoFix {
		fixType = "3"
		for i := 0; i < st.Satellites && i < len(prns); i++ {
			prns[i] = fmt.Sprintf("%02d", i*3+2)
		}
	}
	return Frame(fmt.Sprintf("GPGSA,A,%s,%s,%.1f,%.1f,%.1f",
		fixType, strings.Join(prns, ","), st.HDOP*1.6, st.HDOP, st.HDOP*1.3))
}

func VTG(st State) string {
	return Frame(fmt.Sprintf("GPVTG,%.1f,T,,M,%.1f,N,%.1f,K,A",
		st.CourseDeg, st.SpeedKnots, st.SpeedKnots*1.852))
}

// Generator renders one epoch of sentences from a Source.
type Generator struct {
	Source Source
	Start  time.Time
	// GLL adds a GLL sentence to each epoch.
	GLL bool
}

// Epoch returns the sentences for now in receiver order: RMC, GGA, GSA, VTG
// and optionally GLL.
func (g Generator) Epoch(now time.Time) []string {
	st := g.Source.StateAt(now.Sub(g.Start))
	out := []string{RMC(now, st), GGA(now, st), GSA(st), VTG(st)}
	if g.GLL {
		out = append(out, GLL(now, st))
	}
	return out
}
