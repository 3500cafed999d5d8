package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var errNoDevice = errors.New("no serial gps device found")

type SerialConfig struct {
	// Device is an explicit path such as /dev/ttyACM0. Empty means the first
	// enumerated device is used on every connect attempt.
	Device string

	// Baud defaults to 115200. The line is always 8N1.
	Baud int

	// MatchBus restricts enumeration to one bus ("usb", "platform"...).
	MatchBus string

	// ReadTimeout bounds one read poll. If 0, defaults to 1s.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single command write. If 0, defaults to 1s.
	WriteTimeout time.Duration

	// PermissionTimeout bounds the wait for access to be granted on a device
	// that exists but is not yet readable. If 0, defaults to 30s.
	PermissionTimeout time.Duration

	// ReconnectDelay is the fixed backoff between attempts. If 0, defaults to 1s.
	ReconnectDelay time.Duration

	Logger *log.Logger

	// Enumerate overrides device discovery.
	Enumerate func() ([]Device, error)
}

// Device is one candidate serial node.
type Device struct {
	Path   string `json:"path"`
	Bus    string `json:"bus,omitempty"`
	Vendor string `json:"vendor,omitempty"`
	Model  string `json:"model,omitempty"`
	Serial string `json:"serial,omitempty"`
}

// Serial reads NMEA lines from a local serial receiver.
type Serial struct {
	*link
	cfg SerialConfig
	log *log.Logger
}

func NewSerial(cfg SerialConfig) (*Serial, error) {
	cfg.Device = strings.TrimSpace(cfg.Device)
	cfg.MatchBus = strings.ToLower(strings.TrimSpace(cfg.MatchBus))
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	if !supportedBaud(cfg.Baud) {
		return nil, fmt.Errorf("unsupported baud %d", cfg.Baud)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = time.Second
	}
	if cfg.PermissionTimeout <= 0 {
		cfg.PermissionTimeout = 30 * time.Second
	}
	if cfg.Enumerate == nil {
		cfg.Enumerate = EnumerateDevices
	}

	s := &Serial{cfg: cfg, log: cfg.Logger}
	if s.log == nil {
		s.log = log.New(io.Discard)
	}
	endpoint := cfg.Device
	if endpoint == "" {
		endpoint = "auto"
	}
	s.link = newLink(linkConfig{
		kind:           "serial",
		endpoint:       endpoint,
		open:           s.open,
		reconnectDelay: cfg.ReconnectDelay,
		log:            s.log,
	})
	return s, nil
}

func (s *Serial) open(ctx context.Context) (conn, string, error) {
	path, err := s.selectDevice()
	if err != nil {
		return nil, "", err
	}

	if err := checkAccess(path); err != nil {
		if !errors.Is(err, fs.ErrPermission) {
			return nil, "", err
		}
		s.log.Info("waiting for device access", "device", path, "err", err)
		wctx, cancel := context.WithTimeout(ctx, s.cfg.PermissionTimeout)
		err = awaitAccess(wctx, path)
		cancel()
		if err != nil {
			return nil, "", fmt.Errorf("%s: access not granted: %w", path, err)
		}
	}

	c, err := openSerial(path, s.cfg.Baud, s.cfg.ReadTimeout, s.cfg.WriteTimeout)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	s.log.Info("gps serial opened", "device", path, "baud", s.cfg.Baud)
	return c, path, nil
}

func (s *Serial) selectDevice() (string, error) {
	if s.cfg.Device != "" {
		return s.cfg.Device, nil
	}
	devs, err := s.cfg.Enumerate()
	if err != nil {
		return "", fmt.Errorf("enumerate serial devices: %w", err)
	}
	for _, d := range devs {
		if s.cfg.MatchBus != "" && !strings.EqualFold(d.Bus, s.cfg.MatchBus) {
			continue
		}
		if d.Path != "" {
			return d.Path, nil
		}
	}
	return "", errNoDevice
}

func supportedBaud(baud int) bool {
	switch baud {
	case 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600:
		return true
	}
	return false
}
