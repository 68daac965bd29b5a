package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/airzone-integration/internal/pkg/model"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	topic    string
	retained bool
	payload  any
}

type fakeClient struct {
	mu         sync.Mutex
	published  []published
	handlers   map[string]paho_mqtt.MessageHandler
	publishErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]paho_mqtt.MessageHandler)}
}

func (c *fakeClient) Connect() paho_mqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload any) paho_mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, retained: retained, payload: payload})
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb paho_mqtt.MessageHandler) paho_mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = cb
	return &fakeToken{}
}

func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	h(nil, &fakeMessage{topic: topic, payload: []byte(payload)})
}

type MockSetter struct {
	SetFunc func(ctx context.Context, path string, value any) error
}

func (m *MockSetter) Set(ctx context.Context, path string, value any) error {
	return m.SetFunc(ctx, path, value)
}

func TestWrite(t *testing.T) {
	c := newFakeClient()
	s := New(c, "airzone", "homeassistant", nil)

	err := s.Write(context.Background(), []model.Property{{Path: "home.living_room.current_temperature", Value: "21.5"}})
	require.NoError(t, err)
	require.Len(t, c.published, 1)
	assert.Equal(t, "airzone/home/living_room/current_temperature/state", c.published[0].topic)
	assert.True(t, c.published[0].retained)
	assert.Equal(t, "21.5", c.published[0].payload)
}

func TestWrite_PublishError(t *testing.T) {
	c := newFakeClient()
	c.publishErr = errors.New("broker gone")
	s := New(c, "airzone", "homeassistant", nil)

	err := s.Write(context.Background(), []model.Property{{Path: "a", Value: "1"}})
	assert.ErrorContains(t, err, "broker gone")
}

func TestRegisterProperty_ReadOnlySensor(t *testing.T) {
	c := newFakeClient()
	s := New(c, "airzone", "homeassistant", nil)
	p := state.Property{Path: "home.living_room.current_temperature", Name: "current_temperature", Type: state.TypeNumber, Unit: "°C"}

	require.NoError(t, s.RegisterProperty(context.Background(), p))
	// registering twice is a no-op.
	require.NoError(t, s.RegisterProperty(context.Background(), p))

	require.Len(t, c.published, 1)
	assert.Equal(t, "homeassistant/sensor/home_living_room_current_temperature/config", c.published[0].topic)
	assert.Empty(t, c.handlers)

	var msg model.RegisterMessage
	require.NoError(t, json.Unmarshal(c.published[0].payload.([]byte), &msg))
	assert.Equal(t, "airzone/home/living_room/current_temperature", msg.Tilda)
	assert.Equal(t, "~/state", msg.StateTopic)
	assert.Empty(t, msg.CommandTopic)
	assert.Equal(t, "°C", msg.UnitOfMeasurement)
	assert.Equal(t, "temperature", msg.DeviceClass)
	assert.Equal(t, model.Manufacturer, msg.Device.Manufacturer)
	assert.Equal(t, []string{"airzone_home"}, msg.Device.Identifiers)
}

func TestRegisterProperty_WritableForwardsCommands(t *testing.T) {
	c := newFakeClient()
	var gotPath string
	var gotValue any
	s := New(c, "airzone", "homeassistant", &MockSetter{SetFunc: func(ctx context.Context, path string, value any) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		gotPath, gotValue = path, value
		return nil
	}})
	lo, hi := 16.0, 30.0
	p := state.Property{Path: "home.living_room.target_temperature", Type: state.TypeNumber, Write: true, Min: &lo, Max: &hi}

	require.NoError(t, s.RegisterProperty(context.Background(), p))
	assert.Equal(t, "homeassistant/number/home_living_room_target_temperature/config", c.published[0].topic)

	var msg model.RegisterMessage
	require.NoError(t, json.Unmarshal(c.published[0].payload.([]byte), &msg))
	assert.Equal(t, "~/set", msg.CommandTopic)
	require.NotNil(t, msg.Min)
	assert.Equal(t, 16.0, *msg.Min)
	assert.Equal(t, 30.0, *msg.Max)

	c.deliver("airzone/home/living_room/target_temperature/set", " 22.5 ")
	assert.Equal(t, "home.living_room.target_temperature", gotPath)
	assert.Equal(t, 22.5, gotValue)
}

func TestRegisterProperty_InvalidCommandIgnored(t *testing.T) {
	c := newFakeClient()
	calls := 0
	s := New(c, "airzone", "homeassistant", &MockSetter{SetFunc: func(context.Context, string, any) error {
		calls++
		return nil
	}})
	require.NoError(t, s.RegisterProperty(context.Background(), state.Property{Path: "z.is_on", Type: state.TypeBoolean, Write: true}))
	assert.Equal(t, "homeassistant/switch/z_is_on/config", c.published[0].topic)

	c.deliver("airzone/z/is_on/set", "maybe")
	assert.Equal(t, 0, calls)

	c.deliver("airzone/z/is_on/set", "ON")
	assert.Equal(t, 1, calls)
}

func TestComponentFor(t *testing.T) {
	tests := []struct {
		p    state.Property
		want string
	}{
		{state.Property{Type: state.TypeBoolean}, model.ComponentBinarySensor},
		{state.Property{Type: state.TypeBoolean, Write: true}, model.ComponentSwitch},
		{state.Property{Type: state.TypeNumber}, model.ComponentSensor},
		{state.Property{Type: state.TypeNumber, Write: true}, model.ComponentNumber},
		{state.Property{Type: state.TypeString}, model.ComponentSensor},
		{state.Property{Type: state.TypeString, Write: true}, model.ComponentText},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, componentFor(tt.p))
	}
}
