package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"nmea-bridge/internal/bridge"
	"nmea-bridge/internal/config"
	"nmea-bridge/internal/fix"
	"nmea-bridge/internal/record"
	"nmea-bridge/internal/sink"
	"nmea-bridge/internal/transport"
	"nmea-bridge/internal/web"
)

type daemon struct {
	cfg       config.Config
	log       *log.Logger
	transport transport.Transport
	bridge    *bridge.Bridge
	sinks     *sink.Multi
	recorder  *record.Recorder
	fixes     *web.FixBroadcaster
	logs      *web.LogBuffer
	status    *web.Status
}

func newDaemon(ctx context.Context, cfg config.Config, logger *log.Logger, logs *web.LogBuffer) (*daemon, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}

	tr, err := buildTransport(c, logger.WithPrefix("transport"))
	if err != nil {
		return nil, err
	}

	r := &daemon{
		cfg:       c,
		log:       logger,
		transport: tr,
		sinks:     buildSinks(ctx, c.Sinks, logger),
		logs:      logs,
		fixes:     web.NewFixBroadcaster(),
	}

	if c.Record.Enable {
		rec, err := record.NewRecorder(record.RecorderConfig{
			Dir:     c.Record.Dir,
			Pattern: c.Record.Pattern,
			Logger:  logger.WithPrefix("record"),
		})
		if err != nil {
			_ = r.sinks.Close()
			return nil, err
		}
		r.recorder = rec
	}

	b, err := bridge.New(bridge.Config{
		Transport: tr,
		Fix: fix.Config{
			MinInterval:     c.Fix.MinInterval,
			MinDistanceM:    c.Fix.MinDistanceM,
			AccuracyPerHDOP: c.Fix.AccuracyPerHDOP,
			GLLFallback:     c.Fix.GLLFallback,
		},
		Sink:         r.sinks,
		RestartDelay: c.Pipeline.RestartDelay,
		Commands:     c.Pipeline.Commands,
		Logger:       logger.WithPrefix("bridge"),
	})
	if err != nil {
		r.Close()
		return nil, err
	}
	r.bridge = b
	b.Subscribe(r.fixes)
	if r.recorder != nil {
		b.AddTap(recordTap(r.recorder, logger))
	}

	r.status = web.NewStatus(b, version, r.sinks.Names())
	if r.recorder != nil {
		r.status.SetRecorder(r.recorder)
	}
	return r, nil
}

func buildTransport(c config.Config, logger *log.Logger) (transport.Transport, error) {
	t := c.Transport
	switch t.Kind {
	case "tcp":
		return transport.NewTCP(transport.TCPConfig{
			Addr:           t.TCP.Addr,
			DialTimeout:    t.TCP.DialTimeout,
			ReadTimeout:    t.TCP.ReadTimeout,
			WriteTimeout:   t.TCP.WriteTimeout,
			ReconnectDelay: t.ReconnectDelay,
			Logger:         logger,
		})
	case "replay":
		return transport.NewReplay(transport.ReplayConfig{
			Path:           t.Replay.Path,
			Speed:          t.Replay.Speed,
			Loop:           t.Replay.Loop,
			ReconnectDelay: t.ReconnectDelay,
			Logger:         logger,
		})
	case "serial":
		return transport.NewSerial(transport.SerialConfig{
			Device:            t.Serial.Device,
			Baud:              t.Serial.Baud,
			MatchBus:          t.Serial.MatchBus,
			ReadTimeout:       t.Serial.ReadTimeout,
			WriteTimeout:      t.Serial.WriteTimeout,
			PermissionTimeout: t.Serial.PermissionTimeout,
			ReconnectDelay:    t.ReconnectDelay,
			Logger:            logger,
		})
	default:
		return nil, fmt.Errorf("unknown transport kind %q", t.Kind)
	}
}

// buildSinks connects every enabled sink. A sink that cannot be set up is
// logged and skipped; fixes still reach the others.
func buildSinks(ctx context.Context, c config.SinksConfig, logger *log.Logger) *sink.Multi {
	m := sink.NewMulti(logger.WithPrefix("sink"))

	if c.Log.Enable {
		m.Add("log", sink.NewLog(logger.WithPrefix("fix")))
	}
	if c.UDP.Enable {
		if u, err := sink.NewUDP(c.UDP.Dest); err != nil {
			logger.Warn("sink disabled", "sink", "udp", "err", err)
		} else {
			m.Add("udp", u)
		}
	}
	if c.MQTT.Enable {
		mq, err := sink.NewMQTT(sink.MQTTConfig{
			Broker:   c.MQTT.Broker,
			Topic:    c.MQTT.Topic,
			ClientID: c.MQTT.ClientID,
			QoS:      byte(c.MQTT.QoS),
			Retain:   c.MQTT.Retain,
			Logger:   logger.WithPrefix("mqtt"),
		})
		if err != nil {
			logger.Warn("sink disabled", "sink", "mqtt", "err", err)
		} else {
			m.Add("mqtt", mq)
		}
	}
	if c.Redis.Enable {
		rd, err := sink.NewRedis(ctx, sink.RedisConfig{
			Addr:    c.Redis.Addr,
			DB:      c.Redis.DB,
			Key:     c.Redis.Key,
			Channel: c.Redis.Channel,
			TTL:     c.Redis.TTL,
		})
		if err != nil {
			logger.Warn("sink disabled", "sink", "redis", "err", err)
		} else {
			m.Add("redis", rd)
		}
	}
	return m
}

// recordTap writes raw lines to the recorder, logging each distinct failure
// once.
func recordTap(rec *record.Recorder, logger *log.Logger) bridge.Tap {
	var mu sync.Mutex
	var lastErr string
	return func(now time.Time, line string) {
		err := rec.Record(now, line)
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			lastErr = ""
			return
		}
		if msg := err.Error(); msg != lastErr {
			lastErr = msg
			logger.Warn("record failed", "err", err)
		}
	}
}

// Run starts the bridge and the optional web server and blocks until ctx is
// done.
func (r *daemon) Run(ctx context.Context) error {
	if err := r.bridge.Start(ctx); err != nil {
		return err
	}
	defer r.bridge.Stop()

	var wg sync.WaitGroup
	if r.cfg.Web.Enable {
		h := web.Handler(web.Deps{
			Status:   r.status,
			Commands: r.bridge,
			Logs:     r.logs,
			Fixes:    r.fixes,
			Version:  version,
			Logger:   r.log.WithPrefix("web"),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := web.Serve(ctx, r.cfg.Web.Listen, h, r.log.WithPrefix("web")); err != nil {
				r.log.Error("web server failed", "err", err)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (r *daemon) Close() {
	if r.bridge != nil {
		r.bridge.Stop()
	}
	if err := r.sinks.Close(); err != nil {
		r.log.Warn("sink close failed", "err", err)
	}
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			r.log.Warn("recorder close failed", "err", err)
		}
	}
}
