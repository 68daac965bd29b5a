package model

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// RegisterMessage is a Home Assistant discovery config payload.
type RegisterMessage struct {
	Tilda             string         `json:"~"`
	Name              string         `json:"name"`
	ID                string         `json:"unique_id"`
	StateTopic        string         `json:"state_topic"`
	CommandTopic      string         `json:"command_topic,omitempty"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	DeviceClass       string         `json:"device_class,omitempty"`
	Min               *float64       `json:"min,omitempty"`
	Max               *float64       `json:"max,omitempty"`
	Step              float64        `json:"step,omitempty"`
	PayloadOn         string         `json:"payload_on,omitempty"`
	PayloadOff        string         `json:"payload_off,omitempty"`
	Device            RegisterDevice `json:"device"`
}

// Discovery components, chosen from a property's type and writability.
const (
	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"
	ComponentNumber       = "number"
	ComponentSwitch       = "switch"
	ComponentText         = "text"
)

const Manufacturer = "Airzone"
