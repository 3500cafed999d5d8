package sink

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	calls []publishCall
	token *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.calls = append(p.calls, publishCall{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return p.token
}

func TestMQTT_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: true}}
	m := &MQTT{cfg: MQTTConfig{Topic: "gps/fix", QoS: 1, Retain: true, Timeout: time.Second}, pub: pub}

	require.NoError(t, m.SetLocation(37.5, -122.25, 4.5, 1000))
	require.Len(t, pub.calls, 1)
	c := pub.calls[0]
	assert.Equal(t, "gps/fix", c.topic)
	assert.Equal(t, byte(1), c.qos)
	assert.True(t, c.retained)

	var got map[string]any
	require.NoError(t, json.Unmarshal(c.payload, &got))
	assert.InDelta(t, 37.5, got["lat"], 1e-9)
	assert.Equal(t, float64(1000), got["timestamp_ms"])

	require.NoError(t, m.Close())
}

func TestMQTT_PublishErrors(t *testing.T) {
	m := &MQTT{cfg: MQTTConfig{Topic: "t", Timeout: time.Millisecond}, pub: &fakePublisher{token: &fakeToken{}}}
	assert.ErrorContains(t, m.SetLocation(1, 1, 1, 1), "timed out")

	boom := errors.New("not connected")
	m.pub = &fakePublisher{token: &fakeToken{done: true, err: boom}}
	assert.ErrorIs(t, m.SetLocation(1, 1, 1, 1), boom)
}

func TestNewMQTT_Validation(t *testing.T) {
	_, err := NewMQTT(MQTTConfig{})
	assert.Error(t, err)
	_, err = NewMQTT(MQTTConfig{Broker: "tcp://127.0.0.1:1883", QoS: 3})
	assert.Error(t, err)
}
