package airzone

import (
	"context"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"github.com/tidwall/gjson"

	"github.com/anicoll/airzone-integration/internal/pkg/model"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
)

type Kind string

const (
	KindDevice Kind = "device"
	KindSystem Kind = "system"
	KindZone   Kind = "zone"
	KindIAQ    Kind = "iaq_sensor"
)

// unitTemperature resolves to the temperature unit of the owning entity.
const unitTemperature = "$temperature"

type reaction func(ctx context.Context, e *entity, f *field, value any)

// field maps one payload key (or a computation over the payload) onto one
// or, for enumerated fields, three published properties.
type field struct {
	name string
	key  string
	typ  state.Type
	role string
	unit string

	// table turns the raw code into <name> and <name>_description.
	table *model.CodeTable
	// placeholder publishes model.Unknown for codes missing from table, otherwise unset.
	placeholder bool
	// gate names a capability flag; the field is unset while it is absent or false.
	gate string
	// optional fields are only declared when their key is present at build.
	optional bool
	// presentOnly leaves the published value alone when the key is missing.
	presentOnly bool
	// nonEmpty leaves the published value alone when the payload value is empty.
	nonEmpty bool
	// bounded properties carry the entity bounds as min/max.
	bounded bool

	compute func(payload gjson.Result) (any, error)

	option string
	react  reaction
}

func (f *field) writable() bool {
	return f.react != nil
}

// writePath is the property a write to this field arrives on.
func (f *field) writePath() string {
	if f.table != nil {
		return f.name + "_raw"
	}
	return f.name
}

type address map[string]any

type schema struct {
	kind Kind
	// idKeys are tried in order, the first present one is the identity.
	idKeys  []string
	nameKey string
	segment func(id, name string) string
	unitKey string
	minKey  string
	maxKey  string
	capture func(parent *entity, payload gjson.Result) address
	fields  []field
}

func (sc *schema) identity(payload gjson.Result) string {
	for _, k := range sc.idKeys {
		if r := payload.Get(k); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

// nameSegment slugs a display name into a path segment, falling back to kind and id.
func nameSegment(kind Kind) func(id, name string) string {
	return func(id, name string) string {
		if s := strings.ReplaceAll(slug.Make(name), "-", "_"); s != "" {
			return s
		}
		return string(kind) + "_" + id
	}
}

func idSegment(prefix string) func(id, _ string) string {
	return func(id, _ string) string {
		return prefix + id
	}
}

func number(r gjson.Result) (float64, error) {
	switch r.Type {
	case gjson.Number:
		return r.Num, nil
	case gjson.True:
		return 1, nil
	case gjson.False:
		return 0, nil
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, errNotNumeric
		}
		return v, nil
	}
	return 0, errNotNumeric
}

func convert(t state.Type, r gjson.Result) (any, error) {
	switch t {
	case state.TypeNumber:
		return number(r)
	case state.TypeBoolean:
		return r.Bool(), nil
	default:
		return r.String(), nil
	}
}

// codeKey formats a raw value the way code tables are keyed.
func codeKey(v any) string {
	switch c := v.(type) {
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case int:
		return strconv.Itoa(c)
	case string:
		return strings.TrimSpace(c)
	case gjson.Result:
		return strings.TrimSpace(c.String())
	}
	return ""
}
