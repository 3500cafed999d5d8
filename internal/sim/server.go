package sim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type ServerConfig struct {
	// Addr is the listen address. If empty, defaults to ":10110".
	Addr string
	// Interval between epochs. If 0, defaults to 1s.
	Interval  time.Duration
	Generator Generator
	Logger    *log.Logger
	Now       func() time.Time
}

// Server streams generated sentences to every connected client. Clients may
// come and go; each one gets its own epoch ticker.
type Server struct {
	cfg     ServerConfig
	log     *log.Logger
	clients atomic.Int64
	epochs  atomic.Uint64
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Generator.Source == nil {
		return nil, fmt.Errorf("sim generator source is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":10110"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Generator.Start.IsZero() {
		cfg.Generator.Start = cfg.Now()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{cfg: cfg, log: logger}, nil
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts until ctx is done, then closes ln and waits for clients.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	s.log.Info("nmea sim listening", "addr", ln.Addr().String(), "interval", s.cfg.Interval)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, c)
		}()
	}
}

func (s *Server) Clients() int { return int(s.clients.Load()) }

// Epochs counts epochs written across all clients.
func (s *Server) Epochs() uint64 { return s.epochs.Load() }

func (s *Server) handle(ctx context.Context, c net.Conn) {
	remote := c.RemoteAddr().String()
	s.clients.Add(1)
	defer s.clients.Add(-1)
	s.log.Info("client connected", "remote", remote)

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(cctx, func() { _ = c.Close() })
	defer stop()
	defer c.Close()

	go func() {
		// Commands from the bridge are only logged; a read error ends the client.
		defer cancel()
		sc := bufio.NewScanner(c)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				s.log.Info("command received", "remote", remote, "cmd", line)
			}
		}
	}()

	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		if err := s.writeEpoch(c); err != nil {
			if cctx.Err() == nil {
				s.log.Info("client disconnected", "remote", remote, "err", err)
			}
			return
		}
		select {
		case <-cctx.Done():
			s.log.Info("client disconnected", "remote", remote)
			return
		case <-t.C:
		}
	}
}

func (s *Server) writeEpoch(c net.Conn) error {
	var b strings.Builder
	for _, line := range s.cfg.Generator.Epoch(s.cfg.Now()) {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.WriteString(c, b.String()); err != nil {
		return err
	}
	s.epochs.Add(1)
	return nil
}
