package web

import (
	"time"

	"nmea-bridge/internal/bridge"
)

const serviceName = "nmea-bridge"

// BridgeView is the read side of the bridge used by the status endpoints.
type BridgeView interface {
	Snapshot() bridge.Snapshot
}

// RecorderView reports the active raw recording, if any.
type RecorderView interface {
	Path() string
	Lines() uint64
}

type Status struct {
	start    time.Time
	version  string
	sinks    []string
	bridge   BridgeView
	recorder RecorderView
}

func NewStatus(b BridgeView, version string, sinks []string) *Status {
	return &Status{
		start:   time.Now().UTC(),
		version: version,
		sinks:   append([]string(nil), sinks...),
		bridge:  b,
	}
}

// SetRecorder attaches a recorder; call before serving.
func (s *Status) SetRecorder(r RecorderView) {
	s.recorder = r
}

type RecordingSnapshot struct {
	Path  string `json:"path"`
	Lines uint64 `json:"lines"`
}

type StatusSnapshot struct {
	Service   string             `json:"service"`
	Version   string             `json:"version,omitempty"`
	NowUTC    string             `json:"now_utc"`
	UptimeSec int64              `json:"uptime_sec"`
	Sinks     []string           `json:"sinks"`
	Recording *RecordingSnapshot `json:"recording,omitempty"`
	Bridge    bridge.Snapshot    `json:"bridge"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	snap := StatusSnapshot{
		Service:   serviceName,
		Version:   s.version,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start).Seconds()),
		Sinks:     s.sinks,
	}
	if snap.Sinks == nil {
		snap.Sinks = []string{}
	}
	if s.recorder != nil {
		snap.Recording = &RecordingSnapshot{Path: s.recorder.Path(), Lines: s.recorder.Lines()}
	}
	if s.bridge != nil {
		snap.Bridge = s.bridge.Snapshot()
	}
	return snap
}

// Healthy reports whether the pipeline is running.
func (s *Status) Healthy() bool {
	return s.bridge != nil && s.bridge.Snapshot().Running
}
