package model

import "time"

// Property is one recorded value of a state path.
type Property struct {
	Id        int64     `json:"id"`
	TimeStamp time.Time `json:"timestamp"`
	Unit      string    `json:"unit_of_measurement"`
	Value     string    `json:"value"`
	Path      string    `json:"path"`
}
type Properties []Property

// PropertyDefinition is the registered shape of a state path.
type PropertyDefinition struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Unit     string `json:"unit"`
	Role     string `json:"role"`
	Writable bool   `json:"writable"`
}
