package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"nmea-bridge/internal/config"
	"nmea-bridge/internal/logging"
	"nmea-bridge/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "nmea-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("nmea-bridge", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "Path to YAML config (built-in defaults when empty)")
	logLevel := fs.String("log-level", "", "Override log.level (debug|info|warn|error)")
	summarize := fs.String("summarize", "", "Print a summary of a recorded NMEA log and exit")
	showVersion := fs.BoolP("version", "v", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		_, _ = fmt.Fprintln(stdout, version)
		return nil
	}
	if *summarize != "" {
		return printLogSummary(stdout, *summarize)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
		if err := config.DefaultAndValidate(&cfg); err != nil {
			return err
		}
	}

	logs := web.NewLogBuffer(2000)
	logger, err := logging.New(io.MultiWriter(stderr, logs), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newDaemon(ctx, cfg, logger, logs)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("nmea-bridge starting", "version", version, "transport", cfg.Transport.Kind)
	err = rt.Run(ctx)
	logger.Info("nmea-bridge stopping")
	return err
}
