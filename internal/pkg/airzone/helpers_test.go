package airzone

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/anicoll/airzone-integration/internal/pkg/config"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
	"github.com/anicoll/airzone-integration/internal/pkg/transport"
)

type call struct {
	method string
	route  string
	body   gjson.Result
}

// fakeTransport answers by "METHOD /path" keys. Cloud list filters are part
// of the key, e.g. "GET /systems?device_id=dev1".
type fakeTransport struct {
	mu     sync.Mutex
	routes map[string]func(body gjson.Result) transport.Response
	calls  []call
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: map[string]func(gjson.Result) transport.Response{}}
}

func (f *fakeTransport) Get(_ context.Context, u string) transport.Response {
	return f.do("GET", u, nil)
}

func (f *fakeTransport) Post(_ context.Context, u string, body any) transport.Response {
	return f.do("POST", u, body)
}

func (f *fakeTransport) Put(_ context.Context, u string, body any) transport.Response {
	return f.do("PUT", u, body)
}

func (f *fakeTransport) do(method, u string, body any) transport.Response {
	var parsed gjson.Result
	if body != nil {
		data, _ := json.Marshal(body)
		parsed = gjson.ParseBytes(data)
	}
	key := method + " " + routeOf(u)

	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, route: key, body: parsed})
	handler, ok := f.routes[key]
	f.mu.Unlock()

	if !ok {
		return transport.Response{StatusCode: 404, Errors: "Not Found"}
	}
	return handler(parsed)
}

func (f *fakeTransport) reply(key, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[key] = func(gjson.Result) transport.Response {
		return transport.Response{StatusCode: 200, Body: []byte(body)}
	}
}

func (f *fakeTransport) fail(key string, status int, errs string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[key] = func(gjson.Result) transport.Response {
		return transport.Response{StatusCode: status, Errors: errs}
	}
}

func (f *fakeTransport) handle(key string, h func(body gjson.Result) transport.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[key] = h
}

func (f *fakeTransport) callsTo(key string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []call
	for _, c := range f.calls {
		if c.route == key {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func routeOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	key := strings.TrimSuffix(parsed.Path, "/")
	q := parsed.Query()
	for _, filter := range []string{"device_id", "system_id"} {
		if v := q.Get(filter); v != "" {
			key += "?" + filter + "=" + v
		}
	}
	return key
}

const (
	cloudLogin   = `{"user":{"email":"me@example.com","authentication_token":"tok-1"}}`
	cloudDevices = `{"device_relations":[{"id":"rel1","device":{"id":"dev1","name":"Casa","status":"activated","mac":"AA:BB:CC","pin":"1234","consign":"21.0"}}]}`
	cloudSystems = `{"systems":[{"id":"sys1","device_id":"dev1","system_number":"1","name":"Planta Baja",
		"min_limit":"16","max_limit":"30","mode":"1","eco":"2","has_velocity":false,"velocity":null,"has_airflow":true,"airflow":"1"}]}`
)

func cloudZone(id, name, consign, st, mode string) map[string]any {
	return map[string]any{
		"id": id, "name": name, "system_id": "sys1", "device_id": "dev1", "system_number": "1", "zone_number": id,
		"temp": "21.5", "humidity": "45", "consign": consign, "state": st, "mode": mode,
		"lower_conf_limit": "16", "upper_conf_limit": "30",
	}
}

func cloudZones(t *testing.T, zones ...map[string]any) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{"zones": zones})
	require.NoError(t, err)
	return string(data)
}

func newCloudFixture(t *testing.T) (*Session, *fakeTransport, *state.Store) {
	t.Helper()
	tr := newFakeTransport()
	tr.reply("POST /users/sign_in", cloudLogin)
	tr.reply("POST /events", `{"event":"ok"}`)
	tr.reply("GET /device_relations", cloudDevices)
	tr.reply("GET /systems?device_id=dev1", cloudSystems)
	tr.reply("GET /zones?system_id=sys1", cloudZones(t,
		cloudZone("1", "Salón", "22", "1", "1"),
		cloudZone("2", "Dormitorio", "20", "0", "1"),
		cloudZone("3", "Cocina", "21", "1", "1"),
	))

	store := state.NewStore()
	s, err := New(&config.AirzoneConfig{
		Mode:     config.ModeCloud,
		Username: "Me@Example.com",
		Password: "secret",
		BaseURL:  "http://cloud.test",
	}, tr, store)
	require.NoError(t, err)
	return s, tr, store
}

const localZones = `{"data":[
	{"systemID":1,"zoneID":1,"name":"Salon","on":1,"maxTemp":30,"minTemp":15,"setpoint":22,"roomTemp":21.3,
	 "mode":3,"humidity":40,"units":0,"master":1,"speed":2,"sleep":0,"errors":[]},
	{"systemID":1,"zoneID":2,"name":"","on":0,"maxTemp":30,"minTemp":15,"setpoint":20,"roomTemp":19,
	 "humidity":50,"units":0,"speed":9,"errors":[{"Zone":"Error 3"}]}
]}`

func newLocalFixture(t *testing.T) (*Session, *fakeTransport, *state.Store) {
	t.Helper()
	tr := newFakeTransport()
	tr.reply("POST /api/v1/hvac", localZones)
	tr.reply("POST /api/v1/version", `{"version":"1.62"}`)
	tr.handle("PUT /api/v1/hvac", func(body gjson.Result) transport.Response {
		return transport.Response{StatusCode: 200, Body: []byte(`{"data":[` + body.Raw + `]}`)}
	})

	store := state.NewStore()
	s, err := New(&config.AirzoneConfig{
		Mode:     config.ModeLocal,
		Host:     "192.168.1.20",
		Port:     3000,
		SystemID: 1,
	}, tr, store)
	require.NoError(t, err)
	return s, tr, store
}

func values(store *state.Store) map[string]any {
	out := map[string]any{}
	for _, e := range store.List() {
		out[e.Path] = e.Value
	}
	return out
}
