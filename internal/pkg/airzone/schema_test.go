package airzone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/anicoll/airzone-integration/internal/pkg/model"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
)

func TestNameSegment(t *testing.T) {
	seg := nameSegment(KindZone)
	assert.Equal(t, "salon_principal", seg("1", "Salón Principal"))
	assert.Equal(t, "zone_7", seg("7", ""))
	assert.Equal(t, "zone_8", seg("8", "***"))
	assert.Equal(t, "zone3", idSegment("zone")("3", "ignored"))
}

func TestBoundsClamp(t *testing.T) {
	b := bounds{min: 16, max: 30, ok: true}
	assert.Equal(t, float64(30), b.clamp(35))
	assert.Equal(t, float64(16), b.clamp(10))
	assert.Equal(t, float64(22), b.clamp(22))
	assert.Equal(t, float64(99), bounds{}.clamp(99))
}

func TestNearest(t *testing.T) {
	assert.Equal(t, float64(0), nearest(model.SleepTimerSteps, 14))
	assert.Equal(t, float64(0), nearest(model.SleepTimerSteps, 15))
	assert.Equal(t, float64(30), nearest(model.SleepTimerSteps, 16))
	assert.Equal(t, float64(90), nearest(model.SleepTimerSteps, 1000))
}

func TestCodeKey(t *testing.T) {
	assert.Equal(t, "3", codeKey(float64(3)))
	assert.Equal(t, "3", codeKey(" 3 "))
	assert.Equal(t, "3", codeKey(gjson.Parse(`3.0`)))
	assert.Equal(t, "", codeKey(nil))
}

func TestConvert(t *testing.T) {
	v, err := convert(state.TypeNumber, gjson.Parse(`"21.5"`))
	assert.NoError(t, err)
	assert.Equal(t, 21.5, v)

	_, err = convert(state.TypeNumber, gjson.Parse(`"warm"`))
	assert.ErrorIs(t, err, errNotNumeric)

	v, err = convert(state.TypeBoolean, gjson.Parse(`1`))
	assert.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestZoneErrors(t *testing.T) {
	v, _ := zoneErrors(gjson.Parse(`{"errors":["E1",{"Zone":"E2"}]}`))
	assert.Equal(t, "E1, E2", v)
	v, _ = zoneErrors(gjson.Parse(`{}`))
	assert.Equal(t, "", v)
	v, _ = zoneErrors(gjson.Parse(`{"errors":"oops"}`))
	assert.Equal(t, "oops", v)
}

func TestWireValue(t *testing.T) {
	assert.Equal(t, 2, wireValue(float64(2)))
	assert.Equal(t, 2.5, wireValue(2.5))
	assert.Equal(t, "0", wireValue("0"))
}

func TestSchemaIdentity(t *testing.T) {
	sc := localIAQSchema()
	assert.Equal(t, "4", sc.identity(gjson.Parse(`{"zoneID":4}`)))
	assert.Equal(t, "2", sc.identity(gjson.Parse(`{"zone_id":2,"zoneID":4}`)))
	assert.Equal(t, "sensor2", sc.identity(gjson.Parse(`{"iaq_position":"sensor2"}`)))
	assert.Equal(t, "", sc.identity(gjson.Parse(`{}`)))
	assert.Equal(t, "", cloudZoneSchema().identity(gjson.Parse(`{}`)))
}
