package nmea

import (
	"errors"
	"strings"
)

var (
	// ErrNotNMEA is returned for lines that do not carry a "$" talker prefix.
	ErrNotNMEA = errors.New("nmea: missing '$' talker prefix")
	// ErrUnsupported is returned for sentence types this decoder does not handle.
	ErrUnsupported = errors.New("nmea: unsupported sentence")
)

// Type names a decoded sentence kind.
type Type string

const (
	TypeRMC Type = "RMC"
	TypeGGA Type = "GGA"
	TypeGSA Type = "GSA"
	TypeGSV Type = "GSV"
	TypeGLL Type = "GLL"
	TypeVTG Type = "VTG"
)

// talker is the only talker ID accepted; other constellations are ignored.
const talker = "$GP"

// Sentence is the closed set of decoded sentence records. Only types in this
// package implement it.
type Sentence interface {
	Type() Type
	sentence()
}

// RMC: Recommended Minimum Specific GNSS Data
// Fields (NMEA 0183 v2.3):
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//	9: date (ddmmyy)
type RMC struct {
	Time       string
	Status     string
	Lat        float64
	Lon        float64
	SpeedKnots float64
	CourseDeg  float64
	Date       string
}

// GGA: Global Positioning System Fix Data
// Fields:
//
//	0: talker+type
//	1: time
//	2: latitude
//	3: N/S
//	4: longitude
//	5: E/W
//	6: fix quality (0=invalid)
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters)
type GGA struct {
	Time       string
	Lat        float64
	Lon        float64
	FixQuality int
	Satellites int
	// HDOP is 1.0 when the field is missing or malformed.
	HDOP      float64
	AltitudeM float64
}

// GSA: GNSS DOP and Active Satellites
//
//	1: mode (A/M)
//	2: fix type (1=none, 2=2D, 3=3D)
//	3..14: PRNs of satellites used
//	15: PDOP
//	16: HDOP
//	17: VDOP
type GSA struct {
	Mode    string
	FixType string
	PRNs    []int
	PDOP    float64
	HDOP    float64
	VDOP    float64
}

// Satellite is one satellites-in-view group of a GSV sentence.
type Satellite struct {
	PRN          int
	ElevationDeg int
	AzimuthDeg   int
	SNR          int
}

// GSV: Satellites in View
//
//	1: total number of messages
//	2: message number
//	3: satellites in view
//	4..: groups of (PRN, elevation, azimuth, SNR)
type GSV struct {
	TotalMessages    int
	MessageNumber    int
	SatellitesInView int
	Satellites       []Satellite
}

// GLL: Geographic Position
//
//	1: latitude
//	2: N/S
//	3: longitude
//	4: E/W
//	5: time
//	6: status
type GLL struct {
	Lat    float64
	Lon    float64
	Time   string
	Status string
}

// VTG: Track Made Good and Ground Speed
//
//	1: course (true)
//	5: speed (knots)
//	7: speed (km/h)
type VTG struct {
	CourseDeg  float64
	SpeedKnots float64
	SpeedKmh   float64
}

func (RMC) Type() Type { return TypeRMC }
func (GGA) Type() Type { return TypeGGA }
func (GSA) Type() Type { return TypeGSA }
func (GSV) Type() Type { return TypeGSV }
func (GLL) Type() Type { return TypeGLL }
func (VTG) Type() Type { return TypeVTG }

func (RMC) sentence() {}
func (GGA) sentence() {}
func (GSA) sentence() {}
func (GSV) sentence() {}
func (GLL) sentence() {}
func (VTG) sentence() {}

// Decode maps one raw line to a typed sentence.
//
// The first six characters select the decoder. Missing or malformed fields
// decode to zero values (HDOP to 1.0) instead of failing the sentence. A
// trailing "*hh" checksum is stripped but not verified.
func Decode(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil, ErrNotNMEA
	}
	if star := strings.LastIndexByte(line, '*'); star != -1 {
		line = line[:star]
	}
	if len(line) < 6 || !strings.HasPrefix(line, talker) {
		return nil, ErrUnsupported
	}

	f := fields(strings.Split(line, ","))
	switch Type(line[3:6]) {
	case TypeRMC:
		return decodeRMC(f), nil
	case TypeGGA:
		return decodeGGA(f), nil
	case TypeGSA:
		return decodeGSA(f), nil
	case TypeGSV:
		return decodeGSV(f), nil
	case TypeGLL:
		return decodeGLL(f), nil
	case TypeVTG:
		return decodeVTG(f), nil
	default:
		return nil, ErrUnsupported
	}
}

func decodeRMC(f fields) RMC {
	return RMC{
		Time:       f.str(1),
		Status:     f.str(2),
		Lat:        LatLon(f.str(3), f.str(4)),
		Lon:        LatLon(f.str(5), f.str(6)),
		SpeedKnots: f.float(7),
		CourseDeg:  f.float(8),
		Date:       f.str(9),
	}
}

func decodeGGA(f fields) GGA {
	hdop, ok := f.floatOK(8)
	if !ok {
		hdop = 1
	}
	return GGA{
		Time:       f.str(1),
		Lat:        LatLon(f.str(2), f.str(3)),
		Lon:        LatLon(f.str(4), f.str(5)),
		FixQuality: f.int(6),
		Satellites: f.int(7),
		HDOP:       hdop,
		AltitudeM:  f.float(9),
	}
}

func decodeGSA(f fields) GSA {
	out := GSA{
		Mode:    f.str(1),
		FixType: f.str(2),
		PDOP:    f.float(15),
		HDOP:    f.float(16),
		VDOP:    f.float(17),
	}
	for i := 3; i <= 14; i++ {
		if prn, ok := f.intOK(i); ok {
			out.PRNs = append(out.PRNs, prn)
		}
	}
	return out
}

func decodeGSV(f fields) GSV {
	out := GSV{
		TotalMessages:    f.int(1),
		MessageNumber:    f.int(2),
		SatellitesInView: f.int(3),
	}
	for i := 4; i+3 < len(f); i += 4 {
		prn, ok := f.intOK(i)
		if !ok {
			break
		}
		out.Satellites = append(out.Satellites, Satellite{
			PRN:          prn,
			ElevationDeg: f.int(i + 1),
			AzimuthDeg:   f.int(i + 2),
			SNR:          f.int(i + 3),
		})
	}
	return out
}

func decodeGLL(f fields) GLL {
	return GLL{
		Lat:    LatLon(f.str(1), f.str(2)),
		Lon:    LatLon(f.str(3), f.str(4)),
		Time:   f.str(5),
		Status: f.str(6),
	}
}

func decodeVTG(f fields) VTG {
	return VTG{
		CourseDeg:  f.float(1),
		SpeedKnots: f.float(5),
		SpeedKmh:   f.float(7),
	}
}
