package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

const serviceType = "_nmea-0183._tcp"

func listenPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", p)
	}
	return port, nil
}

// announce advertises the simulator over mDNS until ctx is done. Failures
// are logged; the simulator keeps serving without discovery.
func announce(ctx context.Context, name, addr string, logger *log.Logger) {
	port, err := listenPort(addr)
	if err != nil {
		logger.Error("announce skipped", "addr", addr, "err", err)
		return
	}

	sv, err := dnssd.NewService(dnssd.Config{
		Name: name,
		Type: serviceType,
		Port: port,
	})
	if err != nil {
		logger.Error("create service failed", "err", err)
		return
	}
	rp, err := dnssd.NewResponder()
	if err != nil {
		logger.Error("create responder failed", "err", err)
		return
	}
	if _, err := rp.Add(sv); err != nil {
		logger.Error("add service failed", "err", err)
		return
	}

	logger.Info("announcing", "name", name, "type", serviceType, "port", port)
	if err := rp.Respond(ctx); err != nil && ctx.Err() == nil {
		logger.Error("responder stopped", "err", err)
	}
}
