package domain

import (
	"time"

	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"
)

const (
	LOAD_GROUP_CORE         = "core"
	LOAD_GROUP_EUV          = "euv"
	LOAD_GROUP_GNSS_IMU     = "gnss_imu"
	LOAD_GROUP_MAGNETORQUER = "magnetorquer"
	LOAD_GROUP_UHF          = "uhf"
)

// LoadGroup is a set of subsystems powered from one switchable rail.
// Groups with a lower priority are shed first; the core group is never shed.
type LoadGroup struct {
	Id       string
	Name     string
	Priority int
	Switch   eps_i2c.Switch
}

func (g LoadGroup) Core() bool {
	return g.Id == LOAD_GROUP_CORE
}

// DefaultLoadGroups returns the groups in command order: core first, then by priority.
func DefaultLoadGroups() []LoadGroup {
	return []LoadGroup{
		{Id: LOAD_GROUP_CORE, Name: "PyCubed/EPS core", Priority: 1, Switch: eps_i2c.SwitchBus3V3},
		{Id: LOAD_GROUP_EUV, Name: "EUV", Priority: 2, Switch: eps_i2c.SwitchBus5V},
		{Id: LOAD_GROUP_GNSS_IMU, Name: "GNSS/IMU", Priority: 3, Switch: eps_i2c.SwitchLowPowerBus3V3},
		{Id: LOAD_GROUP_MAGNETORQUER, Name: "Magnetorquer", Priority: 3, Switch: eps_i2c.SwitchLowPowerBus3V3},
		{Id: LOAD_GROUP_UHF, Name: "UHF", Priority: 4, Switch: eps_i2c.SwitchLowPowerBus5V},
	}
}

type GroupDecision struct {
	Group   LoadGroup
	Enabled bool
}

// ShedReport describes one load-shedding pass.
type ShedReport struct {
	Id             string
	Timestamp      time.Time
	Inactive       bool
	PriorState     PowerState
	State          PowerState
	BatteryVoltage float64
	// Cutoff is the priority below which non-core groups were shed, zero when nothing was.
	Cutoff      int
	Decisions   []GroupDecision
	Commands    []eps_i2c.CommandChannel
	Bus3V3Volts float64
	Bus5VVolts  float64
}

// Shed lists the ids of the groups turned off by this pass.
func (r ShedReport) Shed() []string {
	var out []string
	for _, d := range r.Decisions {
		if !d.Enabled {
			out = append(out, d.Group.Id)
		}
	}
	return out
}

type BatteryTelemetry struct {
	Voltage     float64 `json:"voltage"`
	Current     float64 `json:"current"`
	Temperature float64 `json:"temperature"`
}

type PanelTelemetry struct {
	Volts        float64 `json:"volts"`
	MinusCurrent float64 `json:"minus_current"`
	PlusCurrent  float64 `json:"plus_current"`
}

type SolarTelemetry struct {
	X PanelTelemetry `json:"x"`
	Y PanelTelemetry `json:"y"`
	Z PanelTelemetry `json:"z"`
}

type BusTelemetry struct {
	Bus3V3Volts float64 `json:"bus3v3_volts"`
	Bus5VVolts  float64 `json:"bus5v_volts"`
}
