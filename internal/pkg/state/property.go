package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownProperty = errors.New("unknown property")
	ErrReadOnly        = errors.New("property is read only")
	ErrInvalidValue    = errors.New("invalid value for property type")
)

type Type string

func (t Type) String() string {
	return string(t)
}

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
)

// Property describes one declared leaf of the state tree.
type Property struct {
	Path  string   `json:"path"`
	Name  string   `json:"name"`
	Type  Type     `json:"type"`
	Role  string   `json:"role,omitempty"`
	Unit  string   `json:"unit,omitempty"`
	Read  bool     `json:"read"`
	Write bool     `json:"write"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// Entry is a property with its current value. A nil Value means unset.
type Entry struct {
	Property
	Value     any       `json:"value"`
	Ack       bool      `json:"ack"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Handler reacts to an external write on a subscribed path.
type Handler func(ctx context.Context, path string, value any)

// Sink is the local state store the sync engine mirrors into.
type Sink interface {
	// Declare creates the property if it does not exist yet.
	Declare(ctx context.Context, p Property) error
	// Write publishes an acknowledged value. nil clears the value.
	Write(ctx context.Context, path string, value any) error
	// Subscribe routes external writes on path to h.
	Subscribe(path string, h Handler) error
}

// Join builds a dot separated path, skipping empty segments.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}

// Coerce converts v into the Go representation used for t:
// float64 for numbers, bool for booleans, string for strings.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case bool:
			if n {
				return float64(1), nil
			}
			return float64(0), nil
		}
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case float64:
			return b != 0, nil
		case int:
			return b != 0, nil
		case int64:
			return b != 0, nil
		case string:
			switch strings.ToLower(b) {
			case "true", "on", "1":
				return true, nil
			case "false", "off", "0":
				return false, nil
			}
		}
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case fmt.Stringer:
			return s.String(), nil
		case float64, int, int64, bool:
			return fmt.Sprint(s), nil
		}
	}
	return nil, fmt.Errorf("%w: %T as %s", ErrInvalidValue, v, t)
}
