package model

// ################################
// Cloud API

const (
	DefaultCloudBaseURL = "https://www.airzonecloud.com"

	CloudLogin           = "/users/sign_in"
	CloudDeviceRelations = "/device_relations"
	CloudSystems         = "/systems"
	CloudZones           = "/zones"
	CloudEvents          = "/events"

	// CloudInvalidCredentials is the errors value returned on a bad email/password.
	CloudInvalidCredentials = "invalid"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Cgi values select the entity level an event is applied to.
type Cgi string

const (
	CgiSystem Cgi = "modsistema"
	CgiZone   Cgi = "modzona"
)

type EventRequest struct {
	Event Event `json:"event"`
}

type Event struct {
	Cgi          Cgi    `json:"cgi"`
	DeviceID     any    `json:"device_id"`
	SystemNumber any    `json:"system_number"`
	ZoneNumber   any    `json:"zone_number,omitempty"`
	Option       string `json:"option"`
	Value        any    `json:"value"`
}

// ################################

// ################################
// Local API

const (
	DefaultLocalPort = 3000

	LocalHVAC      = "/api/v1/hvac"
	LocalVersion   = "/api/v1/version"
	LocalWebserver = "/api/v1/webserver"
	LocalIAQ       = "/api/v1/iaq"
)

type HVACRequest struct {
	SystemID int `json:"systemID"`
	ZoneID   int `json:"zoneID"`
}

type IAQRequest struct {
	SystemID    int `json:"systemID"`
	IAQSensorID int `json:"iaqsensorID"`
}

// HVACCommand builds a PUT body writing a single field of a zone.
func HVACCommand(systemID, zoneID int, key string, value any) map[string]any {
	return map[string]any{
		"systemID": systemID,
		"zoneID":   zoneID,
		key:        value,
	}
}

// ################################
