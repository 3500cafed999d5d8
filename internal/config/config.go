package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Fix       FixConfig       `yaml:"fix"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Sinks     SinksConfig     `yaml:"sinks"`
	Record    RecordConfig    `yaml:"record"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
}

type TransportConfig struct {
	// Kind is serial, tcp or replay.
	Kind           string        `yaml:"kind"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	Serial SerialConfig `yaml:"serial"`
	TCP    TCPConfig    `yaml:"tcp"`
	Replay ReplayConfig `yaml:"replay"`
}

type SerialConfig struct {
	// Device is an explicit node; empty enables auto-detection.
	Device            string        `yaml:"device"`
	Baud              int           `yaml:"baud"`
	MatchBus          string        `yaml:"match_bus"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	PermissionTimeout time.Duration `yaml:"permission_timeout"`
}

type TCPConfig struct {
	Addr         string        `yaml:"addr"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type FixConfig struct {
	MinInterval     time.Duration `yaml:"min_interval"`
	MinDistanceM    float64       `yaml:"min_distance_m"`
	AccuracyPerHDOP float64       `yaml:"accuracy_per_hdop"`
	GLLFallback     bool          `yaml:"gll_fallback"`
}

type PipelineConfig struct {
	RestartDelay time.Duration `yaml:"restart_delay"`
	// Commands are sent to the receiver every time the pipeline starts.
	Commands []string `yaml:"commands"`
}

type SinksConfig struct {
	MQTT  MQTTSinkConfig  `yaml:"mqtt"`
	Redis RedisSinkConfig `yaml:"redis"`
	UDP   UDPSinkConfig   `yaml:"udp"`
	Log   LogSinkConfig   `yaml:"log"`
}

type MQTTSinkConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

type RedisSinkConfig struct {
	Enable  bool          `yaml:"enable"`
	Addr    string        `yaml:"addr"`
	DB      int           `yaml:"db"`
	Key     string        `yaml:"key"`
	Channel string        `yaml:"channel"`
	TTL     time.Duration `yaml:"ttl"`
}

type UDPSinkConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type LogSinkConfig struct {
	Enable bool `yaml:"enable"`
}

type RecordConfig struct {
	Enable  bool   `yaml:"enable"`
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	_ = DefaultAndValidate(&cfg)
	return cfg
}

func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	t := &cfg.Transport
	t.Kind = strings.ToLower(strings.TrimSpace(t.Kind))
	if t.Kind == "" {
		t.Kind = "serial"
	}
	if t.ReconnectDelay <= 0 {
		t.ReconnectDelay = 1 * time.Second
	}
	if t.Serial.Baud == 0 {
		t.Serial.Baud = 115200
	}
	if t.Serial.Baud < 0 {
		return fmt.Errorf("transport.serial.baud must be > 0")
	}
	if t.Serial.ReadTimeout <= 0 {
		t.Serial.ReadTimeout = 1 * time.Second
	}
	if t.Serial.WriteTimeout <= 0 {
		t.Serial.WriteTimeout = 1 * time.Second
	}
	if t.Serial.PermissionTimeout <= 0 {
		t.Serial.PermissionTimeout = 30 * time.Second
	}
	if t.TCP.DialTimeout <= 0 {
		t.TCP.DialTimeout = 3 * time.Second
	}
	if t.TCP.ReadTimeout <= 0 {
		t.TCP.ReadTimeout = 5 * time.Second
	}
	if t.TCP.WriteTimeout <= 0 {
		t.TCP.WriteTimeout = 2 * time.Second
	}
	if t.Replay.Speed == 0 {
		t.Replay.Speed = 1
	}

	switch t.Kind {
	case "serial":
	case "tcp":
		if strings.TrimSpace(t.TCP.Addr) == "" {
			return fmt.Errorf("transport.tcp.addr is required when transport.kind is 'tcp'")
		}
	case "replay":
		if strings.TrimSpace(t.Replay.Path) == "" {
			return fmt.Errorf("transport.replay.path is required when transport.kind is 'replay'")
		}
		if t.Replay.Speed < 0 {
			return fmt.Errorf("transport.replay.speed must be > 0")
		}
	default:
		return fmt.Errorf("transport.kind must be one of serial, tcp, replay (got %q)", t.Kind)
	}

	f := &cfg.Fix
	if f.MinInterval == 0 {
		f.MinInterval = 100 * time.Millisecond
	}
	if f.MinInterval < 0 || f.MinInterval > 5*time.Second {
		return fmt.Errorf("fix.min_interval must be between 0 and 5s")
	}
	if f.MinDistanceM < 0 {
		return fmt.Errorf("fix.min_distance_m must be >= 0")
	}
	if f.MinDistanceM == 0 {
		f.MinDistanceM = 0.5
	}
	if f.AccuracyPerHDOP < 0 {
		return fmt.Errorf("fix.accuracy_per_hdop must be >= 0")
	}
	if f.AccuracyPerHDOP == 0 {
		f.AccuracyPerHDOP = 5.0
	}

	if cfg.Pipeline.RestartDelay <= 0 {
		cfg.Pipeline.RestartDelay = 2 * time.Second
	}
	cmds := cfg.Pipeline.Commands[:0]
	for _, c := range cfg.Pipeline.Commands {
		if c = strings.TrimSpace(c); c != "" {
			cmds = append(cmds, c)
		}
	}
	cfg.Pipeline.Commands = cmds

	if err := validateSinks(&cfg.Sinks); err != nil {
		return err
	}

	if cfg.Record.Enable {
		if strings.TrimSpace(cfg.Record.Dir) == "" {
			return fmt.Errorf("record.dir is required when record.enable is true")
		}
		if t.Kind == "replay" {
			return fmt.Errorf("record.enable cannot be used with transport.kind 'replay'")
		}
	}
	if cfg.Record.Pattern == "" {
		cfg.Record.Pattern = "nmea-%Y%m%d.log"
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "text"
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("log.format must be one of text, json, logfmt")
	}
	return nil
}

func validateSinks(s *SinksConfig) error {
	if s.MQTT.Enable {
		if strings.TrimSpace(s.MQTT.Broker) == "" {
			return fmt.Errorf("sinks.mqtt.broker is required when sinks.mqtt.enable is true")
		}
		if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
			return fmt.Errorf("sinks.mqtt.qos must be 0, 1 or 2")
		}
	}
	if s.MQTT.Topic == "" {
		s.MQTT.Topic = "nmea/fix"
	}
	if s.MQTT.ClientID == "" {
		s.MQTT.ClientID = "nmea-bridge"
	}

	if s.Redis.Enable && strings.TrimSpace(s.Redis.Addr) == "" {
		return fmt.Errorf("sinks.redis.addr is required when sinks.redis.enable is true")
	}
	if s.Redis.TTL < 0 {
		return fmt.Errorf("sinks.redis.ttl must be >= 0")
	}

	if s.UDP.Enable && strings.TrimSpace(s.UDP.Dest) == "" {
		return fmt.Errorf("sinks.udp.dest is required when sinks.udp.enable is true")
	}
	return nil
}
