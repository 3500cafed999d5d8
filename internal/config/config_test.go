package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "transport:\n  kind: tcp\n  tcp:\n    addr: '127.0.0.1:10110'\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Transport.ReconnectDelay != 1*time.Second {
		t.Fatalf("reconnect_delay=%s want 1s", cfg.Transport.ReconnectDelay)
	}
	if cfg.Transport.TCP.DialTimeout != 3*time.Second || cfg.Transport.TCP.ReadTimeout != 5*time.Second {
		t.Fatalf("tcp timeouts=%s/%s want 3s/5s", cfg.Transport.TCP.DialTimeout, cfg.Transport.TCP.ReadTimeout)
	}
	if cfg.Transport.TCP.WriteTimeout != 2*time.Second || cfg.Transport.Serial.WriteTimeout != 1*time.Second {
		t.Fatalf("write timeouts tcp=%s serial=%s want 2s/1s", cfg.Transport.TCP.WriteTimeout, cfg.Transport.Serial.WriteTimeout)
	}
	if cfg.Transport.Serial.Baud != 115200 {
		t.Fatalf("baud=%d want 115200", cfg.Transport.Serial.Baud)
	}
	if cfg.Fix.MinInterval != 100*time.Millisecond || cfg.Fix.MinDistanceM != 0.5 || cfg.Fix.AccuracyPerHDOP != 5.0 {
		t.Fatalf("unexpected fix defaults: %+v", cfg.Fix)
	}
	if cfg.Pipeline.RestartDelay != 2*time.Second {
		t.Fatalf("restart_delay=%s want 2s", cfg.Pipeline.RestartDelay)
	}
	if cfg.Web.Listen != ":8080" || cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected ambient defaults: web=%+v log=%+v", cfg.Web, cfg.Log)
	}
	if cfg.Record.Pattern != "nmea-%Y%m%d.log" {
		t.Fatalf("record.pattern=%q", cfg.Record.Pattern)
	}
}

func TestLoad_EmptyFileIsSerialAuto(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Transport.Kind != "serial" || cfg.Transport.Serial.Device != "" {
		t.Fatalf("transport=%+v", cfg.Transport)
	}
	if d := Default(); d.Transport.Kind != "serial" || d.Fix.MinInterval != 100*time.Millisecond {
		t.Fatalf("Default()=%+v", d)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load(writeTempConfig(t, "transport:\n  knd: tcp\n"))
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "UnknownKind",
			yaml: "transport:\n  kind: bluetooth\n",
			want: `transport.kind must be one of serial, tcp, replay (got "bluetooth")`,
		},
		{
			name: "TCPRequiresAddr",
			yaml: "transport:\n  kind: tcp\n",
			want: "transport.tcp.addr is required when transport.kind is 'tcp'",
		},
		{
			name: "ReplayRequiresPath",
			yaml: "transport:\n  kind: replay\n",
			want: "transport.replay.path is required when transport.kind is 'replay'",
		},
		{
			name: "ReplayNegativeSpeed",
			yaml: "transport:\n  kind: replay\n  replay:\n    path: a.log\n    speed: -2\n",
			want: "transport.replay.speed must be > 0",
		},
		{
			name: "MinIntervalTooLarge",
			yaml: "fix:\n  min_interval: 10s\n",
			want: "fix.min_interval must be between 0 and 5s",
		},
		{
			name: "NegativeDistance",
			yaml: "fix:\n  min_distance_m: -1\n",
			want: "fix.min_distance_m must be >= 0",
		},
		{
			name: "MQTTRequiresBroker",
			yaml: "sinks:\n  mqtt:\n    enable: true\n",
			want: "sinks.mqtt.broker is required when sinks.mqtt.enable is true",
		},
		{
			name: "MQTTQoS",
			yaml: "sinks:\n  mqtt:\n    enable: true\n    broker: tcp://localhost:1883\n    qos: 3\n",
			want: "sinks.mqtt.qos must be 0, 1 or 2",
		},
		{
			name: "RedisRequiresAddr",
			yaml: "sinks:\n  redis:\n    enable: true\n",
			want: "sinks.redis.addr is required when sinks.redis.enable is true",
		},
		{
			name: "UDPRequiresDest",
			yaml: "sinks:\n  udp:\n    enable: true\n",
			want: "sinks.udp.dest is required when sinks.udp.enable is true",
		},
		{
			name: "RecordRequiresDir",
			yaml: "record:\n  enable: true\n",
			want: "record.dir is required when record.enable is true",
		},
		{
			name: "RecordWithReplay",
			yaml: "transport:\n  kind: replay\n  replay:\n    path: a.log\nrecord:\n  enable: true\n  dir: /tmp\n",
			want: "record.enable cannot be used with transport.kind 'replay'",
		},
		{
			name: "LogLevel",
			yaml: "log:\n  level: loud\n",
			want: "log.level must be one of debug, info, warn, error",
		},
		{
			name: "LogFormat",
			yaml: "log:\n  format: xml\n",
			want: "log.format must be one of text, json, logfmt",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeTempConfig(t, `
transport:
  kind: serial
  reconnect_delay: 500ms
  serial:
    device: /dev/ttyACM0
    baud: 9600
    write_timeout: 250ms
  tcp:
    write_timeout: 3s
fix:
  min_interval: 250ms
  gll_fallback: true
pipeline:
  commands:
    - '$PMTK220,200*2C'
    - '   '
sinks:
  redis:
    enable: true
    addr: 127.0.0.1:6379
    ttl: 1m
  log:
    enable: true
web:
  enable: true
  listen: 127.0.0.1:9000
log:
  level: DEBUG
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Transport.Serial.WriteTimeout != 250*time.Millisecond || cfg.Transport.TCP.WriteTimeout != 3*time.Second {
		t.Fatalf("write timeouts=%s/%s", cfg.Transport.Serial.WriteTimeout, cfg.Transport.TCP.WriteTimeout)
	}
	if cfg.Transport.ReconnectDelay != 500*time.Millisecond || cfg.Transport.Serial.Baud != 9600 {
		t.Fatalf("transport=%+v", cfg.Transport)
	}
	if cfg.Fix.MinInterval != 250*time.Millisecond || !cfg.Fix.GLLFallback {
		t.Fatalf("fix=%+v", cfg.Fix)
	}
	if len(cfg.Pipeline.Commands) != 1 || cfg.Pipeline.Commands[0] != "$PMTK220,200*2C" {
		t.Fatalf("commands=%q", cfg.Pipeline.Commands)
	}
	if !cfg.Sinks.Redis.Enable || cfg.Sinks.Redis.TTL != time.Minute || !cfg.Sinks.Log.Enable {
		t.Fatalf("sinks=%+v", cfg.Sinks)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log=%+v", cfg.Log)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
