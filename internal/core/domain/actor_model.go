package domain

import (
	"errors"
	"time"

	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"
)

const (
	ACTOR_ID_MASTER        = "master"
	ACTOR_ID_EPS           = "eps"
	ACTOR_ID_TELEMETRY     = "telemetry"
	ACTOR_ID_MQTT          = "mqtt"
	ACTOR_ID_POWER_MANAGER = "power_manager"
	ACTOR_ID_HA_DISCOVERY  = "hadiscovery"
	ACTOR_ID_RECORDER      = "recorder"
)

type ReadMeasurementRequest struct {
	ActorRequestMixIn
	Channel eps_i2c.MeasurementChannel
}

type ReadMeasurementResponse struct {
	ActorResponseMixIn
	Channel eps_i2c.MeasurementChannel
	Value   float64
}

type ExecuteCommandRequest struct {
	ActorRequestMixIn
	Channel eps_i2c.CommandChannel
}

type ExecuteCommandResponse struct {
	ActorResponseMixIn
}

type EvaluateLoadSheddingRequest struct {
	ActorRequestMixIn
}

type EvaluateLoadSheddingResponse struct {
	ActorResponseMixIn
	Report ShedReport
}

type ShutdownRequest struct {
	ActorRequestMixIn
}

type ActivateRequest struct {
	ActorRequestMixIn
}

// PowerTransitionResponse answers ShutdownRequest and ActivateRequest.
type PowerTransitionResponse struct {
	ActorResponseMixIn
	From PowerState
	To   PowerState
}

type GetPowerStateRequest struct {
	ActorRequestMixIn
	Lookback int
}

type GetPowerStateResponse struct {
	ActorResponseMixIn
	State   PowerState
	History []PowerState
}

type GetBatteryTelemetryRequest struct {
	ActorRequestMixIn
}

type GetBatteryTelemetryResponse struct {
	ActorResponseMixIn
	Battery *BatteryTelemetry
}

type GetSolarTelemetryRequest struct {
	ActorRequestMixIn
}

type GetSolarTelemetryResponse struct {
	ActorResponseMixIn
	Solar *SolarTelemetry
}

type GetBusTelemetryRequest struct {
	ActorRequestMixIn
}

type GetBusTelemetryResponse struct {
	ActorResponseMixIn
	Bus *BusTelemetry
}

// SensorReading is one archived sensor update.
type SensorReading struct {
	Timestamp time.Time `json:"ts"`
	SensorId  string    `json:"sensor_id"`
	Value     *float64  `json:"value,omitempty"`
	Text      string    `json:"text,omitempty"`
}

var ErrNoArchive = errors.New("telemetry archive disabled")

type GetSensorHistoryRequest struct {
	ActorRequestMixIn
	SensorId string
	Limit    int
}

type GetSensorHistoryResponse struct {
	ActorResponseMixIn
	Readings []SensorReading
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
	Buttons  []GenericButton
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
