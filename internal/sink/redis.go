package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr string
	DB   int

	// Key holds the latest fix. If empty, defaults to "nmea:fix".
	Key string

	// Channel receives every fix. If empty, defaults to "nmea:fixes".
	Channel string

	// TTL expires the latest-fix key so stale positions disappear.
	// If 0, defaults to 10m.
	TTL time.Duration

	// Timeout bounds each round trip. If 0, defaults to 2s.
	Timeout time.Duration
}

type redisCmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis stores the latest fix under a key and publishes every fix.
type Redis struct {
	cfg    RedisConfig
	client *redis.Client
	cmd    redisCmdable
}

func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	cfg = redisDefaults(cfg)

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	pctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Redis{cfg: cfg, client: client, cmd: client}, nil
}

func redisDefaults(cfg RedisConfig) RedisConfig {
	if cfg.Key == "" {
		cfg.Key = "nmea:fix"
	}
	if cfg.Channel == "" {
		cfg.Channel = "nmea:fixes"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return cfg
}

func (r *Redis) SetLocation(lat, lon float64, accuracy float32, timestampMs int64) error {
	b, err := encode(lat, lon, accuracy, timestampMs)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	setErr := r.cmd.Set(ctx, r.cfg.Key, b, r.cfg.TTL).Err()
	if setErr != nil {
		setErr = fmt.Errorf("redis SET %s: %w", r.cfg.Key, setErr)
	}
	pubErr := r.cmd.Publish(ctx, r.cfg.Channel, b).Err()
	if pubErr != nil {
		pubErr = fmt.Errorf("redis PUBLISH %s: %w", r.cfg.Channel, pubErr)
	}
	return errors.Join(setErr, pubErr)
}

func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
