package airzone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/anicoll/airzone-integration/internal/pkg/config"
	"github.com/anicoll/airzone-integration/internal/pkg/model"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
	"github.com/anicoll/airzone-integration/internal/pkg/transport"
)

var (
	errNoMasterZone    = errors.New("system has no master zone")
	errNotAcknowledged = errors.New("command not acknowledged")
)

type localAPI struct {
	baseURL  string
	systemID int
	tr       transport.Transport
	logger   *zap.Logger
	schemas  map[Kind]*schema
}

func newLocalAPI(cfg *config.AirzoneConfig, tr transport.Transport, logger *zap.Logger) *localAPI {
	return &localAPI{
		baseURL:  cfg.LocalURL(),
		systemID: cfg.SystemID,
		tr:       tr,
		logger:   logger,
		schemas: map[Kind]*schema{
			KindSystem: localSystemSchema(),
			KindZone:   localZoneSchema(),
			KindIAQ:    localIAQSchema(),
		},
	}
}

func (l *localAPI) schema(kind Kind) *schema { return l.schemas[kind] }
func (l *localAPI) stopCode() string         { return model.LocalModeStop }
func (l *localAPI) powerOption() string      { return "on" }

// login is a no-op, the local API is unauthenticated.
func (l *localAPI) login(context.Context) (string, error) {
	return "", nil
}

// roots returns a single system. Its payload is assembled from the zone
// list, the master zone and whatever optional endpoints answer.
func (l *localAPI) roots(ctx context.Context, _ string) ([]node, error) {
	res := l.tr.Post(ctx, l.baseURL+model.LocalHVAC, model.HVACRequest{SystemID: l.systemID, ZoneID: 0})
	if err := res.Err(); err != nil {
		return nil, err
	}
	zones := res.JSON().Get("data")
	if !zones.IsArray() {
		return nil, errors.New("hvac response without data list")
	}

	system := map[string]any{
		"systemID": l.systemID,
		"name":     fmt.Sprintf("System %d", l.systemID),
		"zones":    json.RawMessage(zones.Raw),
	}
	for _, z := range zones.Array() {
		if mode := z.Get("mode"); mode.Exists() {
			system["mode"] = mode.Value()
			system["master_zone"] = z.Get("zoneID").Int()
			break
		}
	}
	if v := l.optional(ctx, model.LocalVersion, struct{}{}); v.Exists() {
		system["firmware"] = v.Get("version").Value()
	}
	if ws := l.optional(ctx, model.LocalWebserver, struct{}{}); ws.Exists() {
		system["webserver_mac"] = ws.Get("mac").Value()
		system["webserver_firmware"] = ws.Get("ws_firmware").Value()
	}

	raw, err := json.Marshal(system)
	if err != nil {
		return nil, err
	}
	return []node{{kind: KindSystem, payload: gjson.ParseBytes(raw)}}, nil
}

// optional queries an endpoint older firmware may not have. Any failure
// means the feature is not supported.
func (l *localAPI) optional(ctx context.Context, endpoint string, body any) gjson.Result {
	res := l.tr.Post(ctx, l.baseURL+endpoint, body)
	if res.Failed() {
		l.logger.Debug("optional endpoint not available", zap.String("endpoint", endpoint), zap.String("error", res.Errors))
		return gjson.Result{}
	}
	return res.JSON()
}

func (l *localAPI) children(ctx context.Context, _ string, parent *entity, payload gjson.Result) ([]node, error) {
	if parent.Kind() != KindSystem {
		return nil, nil
	}
	var nodes []node
	for _, z := range payload.Get("zones").Array() {
		nodes = append(nodes, node{kind: KindZone, payload: z})
	}
	iaq := l.optional(ctx, model.LocalIAQ, model.IAQRequest{SystemID: l.systemID, IAQSensorID: 0})
	for i, sensor := range iaq.Get("data").Array() {
		nodes = append(nodes, node{kind: KindIAQ, payload: l.withPosition(sensor, i)})
	}
	return nodes, nil
}

// iaqPosition keys sensors that report no zone by their place in the list,
// so each keeps its own identity across updates.
const iaqPosition = "iaq_position"

func (l *localAPI) withPosition(sensor gjson.Result, i int) gjson.Result {
	if l.schemas[KindIAQ].identity(sensor) != "" {
		return sensor
	}
	fields, ok := sensor.Value().(map[string]any)
	if !ok {
		return sensor
	}
	fields[iaqPosition] = fmt.Sprintf("sensor%d", i+1)
	raw, err := json.Marshal(fields)
	if err != nil {
		return sensor
	}
	return gjson.ParseBytes(raw)
}

func (l *localAPI) send(ctx context.Context, _ string, e *entity, option string, value any) error {
	zoneID, ok := e.addr["zoneID"].(int)
	if !ok {
		if e.Kind() == KindSystem {
			return errNoMasterZone
		}
		return fmt.Errorf("%s %s does not accept commands", e.Kind(), e.path)
	}
	systemID, ok := e.addr["systemID"].(int)
	if !ok {
		systemID = l.systemID
	}

	res := l.tr.Put(ctx, l.baseURL+model.LocalHVAC, model.HVACCommand(systemID, zoneID, option, value))
	if err := res.Err(); err != nil {
		if msg, ok := model.LocalAPIErrors[strings.TrimSpace(res.Errors)]; ok {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return err
	}
	data := res.JSON().Get("data")
	if data.Exists() && !data.Get(option).Exists() && !data.Get("0."+option).Exists() {
		return errNotAcknowledged
	}
	return nil
}

func localSystemSchema() *schema {
	return &schema{
		kind:    KindSystem,
		idKeys:  []string{"systemID"},
		nameKey: "name",
		segment: idSegment("system"),
		capture: func(_ *entity, p gjson.Result) address {
			addr := address{"systemID": int(p.Get("systemID").Int())}
			if m := p.Get("master_zone"); m.Exists() {
				addr["zoneID"] = int(m.Int())
			}
			return addr
		},
		fields: []field{
			{name: "mode", key: "mode", typ: state.TypeNumber, role: "level.mode.hvac", table: &model.LocalModes, placeholder: true,
				option: "mode", react: reactSystemMode},
			{name: "master_zone", key: "master_zone", typ: state.TypeNumber, role: "value"},
			{name: "firmware", key: "firmware", typ: state.TypeString, role: "text", optional: true, presentOnly: true},
			{name: "webserver_mac", key: "webserver_mac", typ: state.TypeString, role: "text", optional: true, presentOnly: true},
			{name: "webserver_firmware", key: "webserver_firmware", typ: state.TypeString, role: "text", optional: true, presentOnly: true},
		},
	}
}

func localZoneSchema() *schema {
	return &schema{
		kind:    KindZone,
		idKeys:  []string{"zoneID"},
		nameKey: "name",
		segment: idSegment("zone"),
		unitKey: "units",
		minKey:  "minTemp",
		maxKey:  "maxTemp",
		capture: func(parent *entity, p gjson.Result) address {
			addr := address{"zoneID": int(p.Get("zoneID").Int())}
			if sys := p.Get("systemID"); sys.Exists() {
				addr["systemID"] = int(sys.Int())
			} else if parent != nil {
				addr["systemID"] = parent.addr["systemID"]
			}
			return addr
		},
		fields: []field{
			{name: "id", key: "zoneID", typ: state.TypeNumber, role: "value"},
			{name: "name", key: "name", typ: state.TypeString, role: "text", nonEmpty: true, option: "name", react: reactText},
			{name: "min_temp", key: "minTemp", typ: state.TypeNumber, role: "value.min", unit: unitTemperature},
			{name: "max_temp", key: "maxTemp", typ: state.TypeNumber, role: "value.max", unit: unitTemperature},
			{name: "unit", key: "units", typ: state.TypeNumber, role: "value", table: &model.TemperatureUnits, placeholder: true},
			{name: "master", key: "master", typ: state.TypeBoolean, role: "indicator", compute: flag("master")},
			{name: "is_on", key: "on", typ: state.TypeBoolean, role: "switch.power", compute: flag("on"),
				option: "on", react: reactSwitch},
			{name: "current_temperature", key: "roomTemp", typ: state.TypeNumber, role: "value.temperature", unit: unitTemperature},
			{name: "current_humidity", key: "humidity", typ: state.TypeNumber, role: "value.humidity", unit: "%"},
			{name: "target_temperature", key: "setpoint", typ: state.TypeNumber, role: "level.temperature", unit: unitTemperature,
				bounded: true, option: "setpoint", react: reactSetpoint},
			{name: "mode", key: "mode", typ: state.TypeNumber, role: "level.mode.hvac", table: &model.LocalModes, placeholder: true,
				presentOnly: true, option: "mode", react: reactCode},
			{name: "errors", key: "errors", typ: state.TypeString, role: "text", compute: zoneErrors},
			{name: "setpoint_cool", key: "setpoint_air_cool", typ: state.TypeNumber, role: "level.temperature", unit: unitTemperature,
				optional: true, presentOnly: true, bounded: true, option: "setpoint_air_cool", react: reactSetpoint},
			{name: "setpoint_heat", key: "setpoint_air_heat", typ: state.TypeNumber, role: "level.temperature", unit: unitTemperature,
				optional: true, presentOnly: true, bounded: true, option: "setpoint_air_heat", react: reactSetpoint},
			{name: "fan_speed", key: "speed", typ: state.TypeNumber, role: "level", table: &model.FanSpeeds, placeholder: true,
				optional: true, presentOnly: true, option: "speed", react: reactFanSpeed},
			{name: "sleep_timer", key: "sleep", typ: state.TypeNumber, role: "level.timer", unit: "min",
				optional: true, presentOnly: true, option: "sleep", react: reactSleepTimer},
			{name: "air_quality", key: "air_quality", typ: state.TypeNumber, role: "value", table: &model.IAQScores, placeholder: true,
				optional: true, presentOnly: true},
		},
	}
}

func localIAQSchema() *schema {
	measure := func(name, key, unit, role string) field {
		return field{name: name, key: key, typ: state.TypeNumber, role: role, unit: unit, optional: true, presentOnly: true}
	}
	return &schema{
		kind:    KindIAQ,
		idKeys:  []string{"zone_id", "zoneID", iaqPosition},
		nameKey: "name",
		segment: func(id, _ string) string {
			if strings.HasPrefix(id, "sensor") {
				return "iaq_" + id
			}
			return "iaq_zone" + id
		},
		fields: []field{
			{name: "iaq_index", key: "iaq_index", typ: state.TypeNumber, role: "value", table: &model.IAQScores, placeholder: true,
				optional: true, presentOnly: true},
			measure("co2", "co2_value", "ppm", "value.co2"),
			measure("temperature", "iaq_temp_value", model.DefaultTemperatureUnit, "value.temperature"),
			measure("humidity", "iaq_humidity_value", "%", "value.humidity"),
			measure("pm2_5", "pm2_5_value", "µg/m³", "value"),
			measure("pm10", "pm10_value", "µg/m³", "value"),
			measure("tvoc", "tvoc_value", "ppb", "value"),
			measure("pressure", "pressure_value", "hPa", "value.pressure"),
			measure("ventilation_mode", "iaq_mode_vent", "", "value"),
		},
	}
}

// flag reads a 0/1 payload value as a boolean. Anything but 1 is false.
func flag(key string) func(gjson.Result) (any, error) {
	return func(p gjson.Result) (any, error) {
		r := p.Get(key)
		if !r.Exists() {
			return false, nil
		}
		v, err := number(r)
		if err != nil {
			return nil, err
		}
		return v == 1, nil
	}
}

// zoneErrors joins the reported zone errors, empty when there are none.
func zoneErrors(p gjson.Result) (any, error) {
	r := p.Get("errors")
	if !r.Exists() {
		return "", nil
	}
	if !r.IsArray() {
		return r.String(), nil
	}
	parts := make([]string, 0, len(r.Array()))
	for _, item := range r.Array() {
		if item.IsObject() {
			item.ForEach(func(_, v gjson.Result) bool {
				parts = append(parts, v.String())
				return true
			})
			continue
		}
		parts = append(parts, item.String())
	}
	return strings.Join(parts, ", "), nil
}
