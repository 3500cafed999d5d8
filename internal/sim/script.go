package sim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Script is a keyframed route, for reproducible sessions including fix loss.
//
//	version: 1
//	duration: 60s
//	loop: true
//	keyframes:
//	  - t: 0s
//	    lat: 37.0
//	    lon: -122.0
//	    speed_kt: 10
//	    course: 90
//	  - t: 20s
//	    no_fix: true
//
// Keyframes must be sorted by t. A no_fix keyframe holds from its t until the
// next keyframe.
type Script struct {
	Version   int           `yaml:"version"`
	Duration  time.Duration `yaml:"duration"`
	Loop      bool          `yaml:"loop"`
	Keyframes []Keyframe    `yaml:"keyframes"`
}

type Keyframe struct {
	T          time.Duration `yaml:"t"`
	Lat        float64       `yaml:"lat"`
	Lon        float64       `yaml:"lon"`
	AltM       float64       `yaml:"alt_m"`
	SpeedKnots float64       `yaml:"speed_kt"`
	CourseDeg  float64       `yaml:"course"`
	HDOP       float64       `yaml:"hdop"`
	Satellites int           `yaml:"satellites"`
	NoFix      bool          `yaml:"no_fix"`
}

func LoadScript(path string) (Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Script{}, err
	}
	return ParseScript(b)
}

func ParseScript(b []byte) (Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Script{}, fmt.Errorf("parse script: %w", err)
	}
	return s, nil
}

// Route is a validated Script.
type Route struct {
	frames   []Keyframe
	duration time.Duration
	loop     bool
}

func NewRoute(s Script) (*Route, error) {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Version != 1 {
		return nil, fmt.Errorf("unsupported script version %d", s.Version)
	}
	if len(s.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i, kf := range s.Keyframes {
		if kf.T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < s.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
	}

	dur := s.Duration
	if dur <= 0 {
		dur = s.Keyframes[len(s.Keyframes)-1].T
	}
	if s.Loop && dur <= 0 {
		return nil, fmt.Errorf("duration is required for a looping script")
	}
	return &Route{frames: s.Keyframes, duration: dur, loop: s.Loop}, nil
}

func (r *Route) Duration() time.Duration { return r.duration }

// StateAt wraps elapsed when looping and clamps it otherwise.
func (r *Route) StateAt(elapsed time.Duration) State {
	if elapsed < 0 {
		elapsed = 0
	}
	if r.duration > 0 {
		if r.loop {
			elapsed %= r.duration
		} else if elapsed > r.duration {
			elapsed = r.duration
		}
	}

	k0, k1, alpha := r.segment(elapsed)
	st := State{
		Lat:        lerp(k0.Lat, k1.Lat, alpha),
		Lon:        lerp(k0.Lon, k1.Lon, alpha),
		AltM:       lerp(k0.AltM, k1.AltM, alpha),
		SpeedKnots: lerp(k0.SpeedKnots, k1.SpeedKnots, alpha),
		CourseDeg:  lerpAngle(k0.CourseDeg, k1.CourseDeg, alpha),
		HDOP:       lerp(k0.HDOP, k1.HDOP, alpha),
		Satellites: k0.Satellites,
		NoFix:      k0.NoFix,
	}
	if k1.NoFix && !k0.NoFix {
		// Interpolating toward an empty frame would drag the position to 0,0.
		st.Lat, st.Lon, st.AltM = k0.Lat, k0.Lon, k0.AltM
	}
	if st.HDOP <= 0 {
		st.HDOP = 0.9
	}
	if st.Satellites <= 0 && !st.NoFix {
		st.Satellites = 8
	}
	return st
}

func (r *Route) segment(t time.Duration) (Keyframe, Keyframe, float64) {
	kfs := r.frames
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0, k1 := kfs[idx-1], kfs[idx]
	if k0.NoFix {
		return k0, k0, 0
	}
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	return k0, k1, float64(t-k0.T) / float64(dt)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpAngle interpolates along the shorter arc, result in [0, 360).
func lerpAngle(a0, a1, t float64) float64 {
	a0, a1 = normDeg(a0), normDeg(a1)
	delta := a1 - a0
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return normDeg(a0 + delta*t)
}

func normDeg(x float64) float64 {
	x = math.Mod(x, 360)
	if x < 0 {
		x += 360
	}
	return x
}
