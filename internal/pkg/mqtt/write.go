package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/anicoll/airzone-integration/internal/pkg/contxt"
	"github.com/anicoll/airzone-integration/internal/pkg/model"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
)

// Write publishes each value retained on its state topic.
func (s *service) Write(_ context.Context, data []model.Property) error {
	for _, d := range data {
		token := s.client.Publish(s.topic(d.Path, "state"), 0, true, d.Value)
		if err := wait(token); err != nil {
			return fmt.Errorf("publish %s: %w", d.Path, err)
		}
	}
	return nil
}

// RegisterProperty announces p to Home Assistant and, for writable
// properties, listens on its command topic.
func (s *service) RegisterProperty(_ context.Context, p state.Property) error {
	if _, exists := s.registered.LoadOrStore(p.Path, p.Type); exists {
		return nil
	}
	component := componentFor(p)
	objectID := ObjectID(p.Path)
	payload, err := json.Marshal(s.registerMsg(p, component, objectID))
	if err != nil {
		return err
	}

	topic := fmt.Sprintf("%s/%s/%s/config", s.discoveryPrefix, component, objectID)
	if err := wait(s.client.Publish(topic, 1, true, payload)); err != nil {
		s.registered.Delete(p.Path)
		return fmt.Errorf("discovery %s: %w", p.Path, err)
	}
	if !p.Write {
		return nil
	}
	if err := wait(s.client.Subscribe(s.topic(p.Path, "set"), 1, s.onCommand(p))); err != nil {
		s.registered.Delete(p.Path)
		return fmt.Errorf("subscribe %s: %w", p.Path, err)
	}
	s.logger.Debug("listening for commands", zap.String("path", p.Path))
	return nil
}

func (s *service) onCommand(p state.Property) paho_mqtt.MessageHandler {
	return func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		value, err := parsePayload(p.Type, string(msg.Payload()))
		if err != nil {
			s.logger.Warn("invalid command payload", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		ctx, cancel := contxt.NewContext(context.Background(), commandTimeout)
		defer cancel()
		if err := s.setter.Set(ctx, p.Path, value); err != nil {
			s.logger.Error("failed to apply command", zap.String("path", p.Path), zap.Error(err))
		}
	}
}

func (s *service) topic(path, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, strings.ReplaceAll(path, ".", "/"), suffix)
}

func (s *service) registerMsg(p state.Property, component, objectID string) model.RegisterMessage {
	root, _, _ := strings.Cut(p.Path, ".")
	msg := model.RegisterMessage{
		Tilda:      fmt.Sprintf("%s/%s", s.prefix, strings.ReplaceAll(p.Path, ".", "/")),
		Name:       p.Name,
		ID:         objectID,
		StateTopic: "~/state",
		Device: model.RegisterDevice{
			Name:         root,
			Identifiers:  []string{"airzone_" + ObjectID(root)},
			Model:        "Airzone " + root,
			Manufacturer: model.Manufacturer,
		},
	}
	if p.Type == state.TypeNumber {
		msg.UnitOfMeasurement = p.Unit
		if strings.HasPrefix(p.Unit, "°") {
			msg.DeviceClass = "temperature"
		}
	}
	switch component {
	case model.ComponentNumber:
		msg.CommandTopic = "~/set"
		msg.Min, msg.Max = p.Min, p.Max
		msg.Step = 0.5
	case model.ComponentSwitch:
		msg.CommandTopic = "~/set"
		msg.PayloadOn, msg.PayloadOff = "true", "false"
	case model.ComponentBinarySensor:
		msg.PayloadOn, msg.PayloadOff = "true", "false"
	case model.ComponentText:
		msg.CommandTopic = "~/set"
	}
	return msg
}

// ObjectID turns a state path into a discovery object id.
func ObjectID(path string) string {
	return strings.ReplaceAll(slug.Make(path), "-", "_")
}

func componentFor(p state.Property) string {
	switch p.Type {
	case state.TypeBoolean:
		if p.Write {
			return model.ComponentSwitch
		}
		return model.ComponentBinarySensor
	case state.TypeNumber:
		if p.Write {
			return model.ComponentNumber
		}
	case state.TypeString:
		if p.Write {
			return model.ComponentText
		}
	}
	return model.ComponentSensor
}

func parsePayload(t state.Type, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch t {
	case state.TypeNumber:
		return strconv.ParseFloat(raw, 64)
	case state.TypeBoolean:
		return state.Coerce(t, raw)
	}
	return raw, nil
}
