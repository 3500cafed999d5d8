package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

type TCPConfig struct {
	Addr string

	// DialTimeout bounds the connect. If 0, defaults to 3s.
	DialTimeout time.Duration

	// ReadTimeout is the longest silence tolerated before the connection is
	// considered dead. If 0, defaults to 5s.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single command write. If 0, defaults to 2s.
	WriteTimeout time.Duration

	// ReconnectDelay is the fixed backoff between attempts. If 0, defaults to 1s.
	ReconnectDelay time.Duration

	Logger *log.Logger
}

// TCP reads NMEA lines from a host:port, typically a receiver bridged onto the
// network or the nmea-sim generator.
type TCP struct {
	*link
	cfg TCPConfig
}

func NewTCP(cfg TCPConfig) (*TCP, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		return nil, fmt.Errorf("tcp transport addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return nil, fmt.Errorf("tcp transport addr %q: %w", cfg.Addr, err)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}

	t := &TCP{cfg: cfg}
	t.link = newLink(linkConfig{
		kind:           "tcp",
		endpoint:       cfg.Addr,
		open:           t.open,
		reconnectDelay: cfg.ReconnectDelay,
		timeoutIsFault: true,
		log:            cfg.Logger,
	})
	return t, nil
}

func (t *TCP) open(ctx context.Context) (conn, string, error) {
	dialer := &net.Dialer{Timeout: t.cfg.DialTimeout}
	c, err := dialer.DialContext(ctx, "tcp", t.cfg.Addr)
	if err != nil {
		return nil, "", err
	}
	return &tcpConn{Conn: c, readTimeout: t.cfg.ReadTimeout, writeTimeout: t.cfg.WriteTimeout},
		c.RemoteAddr().String(), nil
}

// tcpConn arms a fresh deadline before every read and write.
type tcpConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *tcpConn) Read(p []byte) (int, error) {
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	return c.Conn.Read(p)
}

func (c *tcpConn) Write(p []byte) (int, error) {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.Conn.Write(p)
}
