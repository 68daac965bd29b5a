package airzone

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/anicoll/airzone-integration/internal/pkg/config"
	"github.com/anicoll/airzone-integration/internal/pkg/model"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
	"github.com/anicoll/airzone-integration/internal/pkg/transport"
)

var errMissingToken = errors.New("login response without authentication token")

type cloudAPI struct {
	baseURL  string
	email    string
	password string
	tr       transport.Transport
	schemas  map[Kind]*schema
}

func newCloudAPI(cfg *config.AirzoneConfig, tr transport.Transport) *cloudAPI {
	base := cfg.BaseURL
	if base == "" {
		base = model.DefaultCloudBaseURL
	}
	return &cloudAPI{
		baseURL:  strings.TrimRight(base, "/"),
		email:    cfg.Username,
		password: cfg.Password,
		tr:       tr,
		schemas: map[Kind]*schema{
			KindDevice: cloudDeviceSchema(),
			KindSystem: cloudSystemSchema(),
			KindZone:   cloudZoneSchema(),
		},
	}
}

func (c *cloudAPI) schema(kind Kind) *schema { return c.schemas[kind] }
func (c *cloudAPI) stopCode() string         { return model.CloudModeStop }
func (c *cloudAPI) powerOption() string      { return "state" }

func (c *cloudAPI) login(ctx context.Context) (string, error) {
	res := c.tr.Post(ctx, c.baseURL+model.CloudLogin, model.LoginRequest{Email: c.email, Password: c.password})
	if res.Failed() {
		reason := ReasonRemote
		if strings.EqualFold(res.Errors, model.CloudInvalidCredentials) {
			reason = ReasonInvalidCredentials
		}
		return "", &AuthError{Reason: reason, Err: res.Err()}
	}
	token := res.JSON().Get("user.authentication_token").String()
	if token == "" {
		return "", &AuthError{Reason: ReasonRemote, Err: errMissingToken}
	}
	return token, nil
}

// url builds an authenticated endpoint address, filter pairs go first.
func (c *cloudAPI) url(endpoint, token string, filter ...string) string {
	q := make([]string, 0, len(filter)/2+3)
	for i := 0; i+1 < len(filter); i += 2 {
		q = append(q, filter[i]+"="+url.QueryEscape(filter[i+1]))
	}
	q = append(q,
		"format=json",
		"user_email="+url.QueryEscape(strings.ToLower(c.email)),
		"user_token="+url.QueryEscape(token),
	)
	return c.baseURL + endpoint + "/?" + strings.Join(q, "&")
}

func (c *cloudAPI) list(ctx context.Context, target, key string, kind Kind, inner string) ([]node, error) {
	res := c.tr.Get(ctx, target)
	if err := res.Err(); err != nil {
		return nil, err
	}
	items := res.JSON().Get(key)
	if !items.IsArray() {
		return nil, fmt.Errorf("response without %s list", key)
	}
	nodes := make([]node, 0, len(items.Array()))
	for _, item := range items.Array() {
		if inner != "" {
			item = item.Get(inner)
		}
		nodes = append(nodes, node{kind: kind, payload: item})
	}
	return nodes, nil
}

func (c *cloudAPI) roots(ctx context.Context, token string) ([]node, error) {
	return c.list(ctx, c.url(model.CloudDeviceRelations, token), "device_relations", KindDevice, "device")
}

func (c *cloudAPI) children(ctx context.Context, token string, parent *entity, _ gjson.Result) ([]node, error) {
	switch parent.Kind() {
	case KindDevice:
		return c.list(ctx, c.url(model.CloudSystems, token, "device_id", parent.id), "systems", KindSystem, "")
	case KindSystem:
		return c.list(ctx, c.url(model.CloudZones, token, "system_id", parent.id), "zones", KindZone, "")
	}
	return nil, nil
}

func (c *cloudAPI) send(ctx context.Context, token string, e *entity, option string, value any) error {
	cgi, ok := e.addr["cgi"].(model.Cgi)
	if !ok {
		return fmt.Errorf("%s %s does not accept commands", e.Kind(), e.path)
	}
	event := model.Event{
		Cgi:          cgi,
		DeviceID:     e.addr["device_id"],
		SystemNumber: e.addr["system_number"],
		ZoneNumber:   e.addr["zone_number"],
		Option:       option,
		Value:        value,
	}
	res := c.tr.Post(ctx, c.url(model.CloudEvents, token), model.EventRequest{Event: event})
	return res.Err()
}

func cloudDeviceSchema() *schema {
	return &schema{
		kind:    KindDevice,
		idKeys:  []string{"id"},
		nameKey: "name",
		segment: nameSegment(KindDevice),
		fields: []field{
			{name: "id", key: "id", typ: state.TypeString, role: "text"},
			{name: "name", key: "name", typ: state.TypeString, role: "text"},
			{name: "status", key: "status", typ: state.TypeString, role: "text"},
			{name: "mac", key: "mac", typ: state.TypeString, role: "text"},
			{name: "pin", key: "pin", typ: state.TypeString, role: "text"},
			{name: "target_temperature", key: "consign", typ: state.TypeNumber, role: "value.temperature", unit: unitTemperature},
		},
	}
}

func cloudSystemSchema() *schema {
	return &schema{
		kind:    KindSystem,
		idKeys:  []string{"id"},
		nameKey: "name",
		segment: nameSegment(KindSystem),
		capture: func(_ *entity, p gjson.Result) address {
			return address{
				"cgi":           model.CgiSystem,
				"device_id":     p.Get("device_id").Value(),
				"system_number": p.Get("system_number").Value(),
			}
		},
		fields: []field{
			{name: "id", key: "id", typ: state.TypeString, role: "text"},
			{name: "name", key: "name", typ: state.TypeString, role: "text"},
			{name: "min_limit", key: "min_limit", typ: state.TypeNumber, role: "value.min", unit: unitTemperature},
			{name: "max_limit", key: "max_limit", typ: state.TypeNumber, role: "value.max", unit: unitTemperature},
			{name: "has_velocity", key: "has_velocity", typ: state.TypeBoolean, role: "indicator"},
			{name: "velocity", key: "velocity", typ: state.TypeString, role: "state", table: &model.Velocities, gate: "has_velocity"},
			{name: "has_airflow", key: "has_airflow", typ: state.TypeBoolean, role: "indicator"},
			{name: "airflow", key: "airflow", typ: state.TypeString, role: "state", table: &model.Airflows, gate: "has_airflow"},
			{name: "mode", key: "mode", typ: state.TypeString, role: "level.mode.hvac", table: &model.CloudModes, placeholder: true,
				option: "mode", react: reactSystemMode},
			{name: "eco", key: "eco", typ: state.TypeString, role: "state", table: &model.EcoModes, placeholder: true,
				option: "eco", react: reactCode},
		},
	}
}

func cloudZoneSchema() *schema {
	return &schema{
		kind:    KindZone,
		idKeys:  []string{"id"},
		nameKey: "name",
		segment: nameSegment(KindZone),
		minKey:  "lower_conf_limit",
		maxKey:  "upper_conf_limit",
		capture: func(_ *entity, p gjson.Result) address {
			return address{
				"cgi":           model.CgiZone,
				"device_id":     p.Get("device_id").Value(),
				"system_number": p.Get("system_number").Value(),
				"zone_number":   p.Get("zone_number").Value(),
			}
		},
		fields: []field{
			{name: "id", key: "id", typ: state.TypeString, role: "text"},
			{name: "name", key: "name", typ: state.TypeString, role: "text"},
			{name: "zone_number", key: "zone_number", typ: state.TypeNumber, role: "value"},
			{name: "current_temperature", key: "temp", typ: state.TypeNumber, role: "value.temperature", unit: unitTemperature},
			{name: "current_humidity", key: "humidity", typ: state.TypeNumber, role: "value.humidity", unit: "%"},
			{name: "target_temperature", key: "consign", typ: state.TypeNumber, role: "level.temperature", unit: unitTemperature,
				bounded: true, option: "consign", react: reactSetpoint},
			{name: "min_temp", key: "lower_conf_limit", typ: state.TypeNumber, role: "value.min", unit: unitTemperature},
			{name: "max_temp", key: "upper_conf_limit", typ: state.TypeNumber, role: "value.max", unit: unitTemperature},
			{name: "is_on", key: "state", typ: state.TypeBoolean, role: "switch.power", compute: cloudZoneIsOn,
				option: "state", react: reactSwitch},
			{name: "mode", key: "mode", typ: state.TypeString, role: "level.mode.hvac", table: &model.CloudModes, placeholder: true,
				option: "mode", react: reactCode},
		},
	}
}

// cloudZoneIsOn is true only when the zone is switched on and not in stop mode.
func cloudZoneIsOn(p gjson.Result) (any, error) {
	st, mode := p.Get("state"), p.Get("mode")
	if !st.Exists() {
		return nil, nil
	}
	return st.String() == "1" && codeKey(mode) != model.CloudModeStop, nil
}
