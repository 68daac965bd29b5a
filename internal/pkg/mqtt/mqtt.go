package mqtt

import (
	"context"
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	publishTimeout = 10 * time.Second
	commandTimeout = 30 * time.Second
)

var errTimeout = errors.New("mqtt operation timed out")

// client is the part of paho_mqtt.Client the service uses.
type client interface {
	Connect() paho_mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) paho_mqtt.Token
	Subscribe(topic string, qos byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token
}

// setter receives external writes arriving on command topics.
type setter interface {
	Set(ctx context.Context, path string, value any) error
}

type service struct {
	client          client
	prefix          string
	discoveryPrefix string
	setter          setter
	logger          *zap.Logger
	registered      sync.Map
}

func New(client client, prefix, discoveryPrefix string, st setter) *service {
	return &service{
		client:          client,
		prefix:          prefix,
		discoveryPrefix: discoveryPrefix,
		setter:          st,
		logger:          zap.L(),
	}
}

func (s *service) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(time.Second * 5) {
		return errors.New("unable to connect in time")
	}
	return token.Error()
}

func wait(token paho_mqtt.Token) error {
	if !token.WaitTimeout(publishTimeout) {
		return errTimeout
	}
	return token.Error()
}
