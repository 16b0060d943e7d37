package mqtt

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadshift/loadshift/core/schedule"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type fakeClient struct {
	connected bool
	topics    []string
	payloads  [][]byte
	qos       []byte
}

func (f *fakeClient) IsConnected() bool { return f.connected }
func (f *fakeClient) Connect() paho.Token {
	f.connected = true
	return fakeToken{}
}
func (f *fakeClient) Disconnect(uint) { f.connected = false }
func (f *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	f.qos = append(f.qos, qos)
	return fakeToken{}
}

func withFakeClient(t *testing.T, f *fakeClient) {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(*paho.ClientOptions) pahoClient { return f }
	t.Cleanup(func() { newMQTTClient = orig })
}

func TestPublishEvent(t *testing.T) {
	f := &fakeClient{}
	withFakeClient(t, f)

	p, err := NewPublisher(Config{Enabled: true, Broker: "tcp://localhost:1883", QoS: 1})
	require.NoError(t, err)
	defer p.Close()

	ev := schedule.Event{
		Type:          "evaluation",
		Source:        "region 5",
		SlotIntensity: 42,
		Time:          time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(ev))

	require.Len(t, f.payloads, 1)
	assert.Equal(t, "loadshift/events", f.topics[0])
	assert.Equal(t, byte(1), f.qos[0])

	var got schedule.Event
	require.NoError(t, json.Unmarshal(f.payloads[0], &got))
	assert.Equal(t, ev, got)
}

func TestClientIDGetsSuffix(t *testing.T) {
	f := &fakeClient{}
	var captured string
	orig := newMQTTClient
	newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
		captured = opts.ClientID
		return f
	}
	t.Cleanup(func() { newMQTTClient = orig })

	_, err := NewPublisher(Config{Enabled: true, Broker: "tcp://localhost:1883", ClientID: "node-a"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(captured, "node-a-"))
	assert.Greater(t, len(captured), len("node-a-"))
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Enabled: true}
	assert.Error(t, cfg.Validate(), "broker required when enabled")

	cfg = Config{Enabled: true, Broker: "tcp://localhost:1883", QoS: 3}
	assert.Error(t, cfg.Validate())

	cfg = Config{Enabled: false}
	assert.NoError(t, cfg.Validate())
}
