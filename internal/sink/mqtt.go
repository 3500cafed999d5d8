package sink

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Retain   bool

	// Timeout bounds the initial connect and each publish. If 0, defaults to 2s.
	Timeout time.Duration

	Logger *log.Logger
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes every fix as JSON on one topic.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	pub    publisher
}

func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	cfg.Broker = strings.TrimSpace(cfg.Broker)
	cfg.Topic = strings.TrimSpace(cfg.Topic)
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "nmea/fix"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "nmea-bridge"
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(cfg.Timeout).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", cfg.Broker, "err", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(cfg.Timeout) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	if !client.IsConnected() {
		logger.Warn("mqtt broker not reachable yet, retrying in background", "broker", cfg.Broker)
	}
	return &MQTT{cfg: cfg, client: client, pub: client}, nil
}

func (m *MQTT) SetLocation(lat, lon float64, accuracy float32, timestampMs int64) error {
	b, err := encode(lat, lon, accuracy, timestampMs)
	if err != nil {
		return err
	}
	token := m.pub.Publish(m.cfg.Topic, m.cfg.QoS, m.cfg.Retain, b)
	if !token.WaitTimeout(m.cfg.Timeout) {
		return fmt.Errorf("mqtt publish to %s timed out", m.cfg.Topic)
	}
	return token.Error()
}

func (m *MQTT) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}
