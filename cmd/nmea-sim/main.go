// Command nmea-sim serves a simulated GPS receiver over TCP so nmea-bridge
// can be exercised without hardware.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"nmea-bridge/internal/logging"
	"nmea-bridge/internal/sim"
)

type options struct {
	Addr     string
	Interval time.Duration
	Lat      float64
	Lon      float64
	Radius   float64
	Period   time.Duration
	Script   string
	GLL      bool
	Announce string
	LogLevel string
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "nmea-sim: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("nmea-sim", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.Addr, "addr", ":10110", "TCP listen address")
	fs.DurationVar(&o.Interval, "interval", time.Second, "Time between epochs")
	fs.Float64Var(&o.Lat, "lat", 37.4220, "Figure-eight center latitude")
	fs.Float64Var(&o.Lon, "lon", -122.0841, "Figure-eight center longitude")
	fs.Float64Var(&o.Radius, "radius", 500, "Figure-eight radius in meters")
	fs.DurationVar(&o.Period, "period", 2*time.Minute, "Figure-eight lap time")
	fs.StringVar(&o.Script, "script", "", "YAML keyframe script (replaces the figure-eight)")
	fs.BoolVar(&o.GLL, "gll", false, "Add a GLL sentence to every epoch")
	fs.StringVar(&o.Announce, "announce", "", "Announce the listener over DNS-SD under this name")
	fs.StringVar(&o.LogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.Interval <= 0 {
		return options{}, fmt.Errorf("--interval must be > 0")
	}
	if o.Script == "" && (o.Lat < -90 || o.Lat > 90 || o.Lon < -180 || o.Lon > 180) {
		return options{}, fmt.Errorf("--lat/--lon out of range")
	}
	return o, nil
}

func buildSource(o options) (sim.Source, error) {
	if o.Script == "" {
		return sim.Figure8{
			CenterLat: o.Lat,
			CenterLon: o.Lon,
			RadiusM:   o.Radius,
			Period:    o.Period,
		}, nil
	}
	s, err := sim.LoadScript(o.Script)
	if err != nil {
		return nil, err
	}
	return sim.NewRoute(s)
}

func run(args []string, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := logging.New(stderr, o.LogLevel, "text")
	if err != nil {
		return err
	}

	src, err := buildSource(o)
	if err != nil {
		return err
	}
	srv, err := sim.NewServer(sim.ServerConfig{
		Addr:      o.Addr,
		Interval:  o.Interval,
		Generator: sim.Generator{Source: src, GLL: o.GLL},
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if o.Announce != "" {
		go announce(ctx, o.Announce, o.Addr, logger.WithPrefix("dnssd"))
	}

	logger.Info("nmea-sim listening", "addr", o.Addr, "interval", o.Interval, "script", o.Script)
	return srv.ListenAndServe(ctx)
}

