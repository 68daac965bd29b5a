package model

import "strings"

// Unknown is published for codes missing from a table when the field asks for a placeholder.
const Unknown = "Unknown"

type Code struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CodeTable maps small vendor codes to display values.
type CodeTable struct {
	Name  string
	codes map[string]Code
}

func NewCodeTable(name string, codes map[string]Code) CodeTable {
	return CodeTable{Name: name, codes: codes}
}

// Lookup never fails hard: an unknown or empty code reports false.
func (t CodeTable) Lookup(raw string) (Code, bool) {
	c, ok := t.codes[strings.TrimSpace(raw)]
	return c, ok
}

// Mode codes that stop a climate system. The two API variants disagree.
const (
	CloudModeStop = "0"
	LocalModeStop = "1"
)

var CloudModes = NewCodeTable("mode", map[string]Code{
	"0": {Name: "stop", Description: "Stop"},
	"1": {Name: "cool-air", Description: "Air cooling"},
	"2": {Name: "heat-radiant", Description: "Radiant heating"},
	"3": {Name: "ventilate", Description: "Ventilate"},
	"4": {Name: "heat-air", Description: "Air heating"},
	"5": {Name: "heat-both", Description: "Combined heating"},
	"6": {Name: "dehumidify", Description: "Dry"},
	"7": {Name: "not_exit", Description: "Not exit"},
	"8": {Name: "cool-radiant", Description: "Radiant cooling"},
	"9": {Name: "cool-both", Description: "Combined cooling"},
})

var LocalModes = NewCodeTable("mode", map[string]Code{
	"1": {Name: "Stop", Description: "Stop"},
	"2": {Name: "Cooling", Description: "Cooling"},
	"3": {Name: "Heating", Description: "Heating"},
	"4": {Name: "Fan", Description: "Ventilation only"},
	"5": {Name: "Dry", Description: "Dehumidify"},
	"7": {Name: "Auto", Description: "Automatic"},
})

var EcoModes = NewCodeTable("eco", map[string]Code{
	"0": {Name: "eco-off", Description: "Eco off"},
	"1": {Name: "eco-m", Description: "Eco manual"},
	"2": {Name: "eco-a", Description: "Eco A"},
	"3": {Name: "eco-aa", Description: "Eco A+"},
	"4": {Name: "eco-aaa", Description: "Eco A++"},
})

var Velocities = NewCodeTable("velocity", map[string]Code{
	"0": {Name: "auto", Description: "Auto"},
	"1": {Name: "velocity-1", Description: "Low speed"},
	"2": {Name: "velocity-2", Description: "Medium speed"},
	"3": {Name: "velocity-3", Description: "High speed"},
})

var Airflows = NewCodeTable("airflow", map[string]Code{
	"0": {Name: "airflow-0", Description: "Silence"},
	"1": {Name: "airflow-1", Description: "Standard"},
	"2": {Name: "airflow-2", Description: "Power"},
})

var FanSpeeds = NewCodeTable("fan_speed", map[string]Code{
	"0": {Name: "Auto", Description: "Automatic speed"},
	"1": {Name: "Speed 1 (Lowest)", Description: "Manual speed 1"},
	"2": {Name: "Speed 2", Description: "Manual speed 2"},
	"3": {Name: "Speed 3", Description: "Manual speed 3"},
	"4": {Name: "Speed 4", Description: "Manual speed 4"},
	"5": {Name: "Speed 5", Description: "Manual speed 5"},
	"6": {Name: "Speed 6", Description: "Manual speed 6"},
	"7": {Name: "Speed 7 (Highest)", Description: "Manual speed 7"},
})

// IAQScores descriptions carry the indicator colour.
var IAQScores = NewCodeTable("air_quality", map[string]Code{
	"1": {Name: "Good", Description: "green"},
	"2": {Name: "Medium", Description: "yellow"},
	"3": {Name: "Bad", Description: "orange"},
	"4": {Name: "Very Bad", Description: "red"},
})

// TemperatureUnits descriptions carry the unit symbol.
var TemperatureUnits = NewCodeTable("unit", map[string]Code{
	"0": {Name: "Celsius", Description: "°C"},
	"1": {Name: "Fahrenheit", Description: "°F"},
})

// DefaultTemperatureUnit is used when the unit code is missing or unknown.
const DefaultTemperatureUnit = "°C"

// SleepTimerSteps are the only sleep timer values the local API accepts, in minutes.
var SleepTimerSteps = []float64{0, 30, 60, 90}

// MaxFanSpeed is the highest manual fan speed code.
const MaxFanSpeed = 7

// LocalAPIErrors maps error codes returned by the local API.
var LocalAPIErrors = map[string]string{
	"-1": "System error",
	"1":  "Invalid parameter",
	"2":  "Invalid value",
	"3":  "Out of range",
	"4":  "Permission denied",
}
