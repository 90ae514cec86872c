package events

import (
	"testing"

	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInactiveReportOnlyCarriesState(t *testing.T) {
	evs := ShedReportToUpdateEvents(domain.ShedReport{Inactive: true, State: domain.PowerStateOff})
	require.Len(t, evs, 1)
	assert.Equal(t, "off", evs[0].(domain.TextSensorUpdateEvent).Value)
}

func TestShedReportEvents(t *testing.T) {
	report := domain.ShedReport{
		State:          domain.PowerStateOnLowPower,
		BatteryVoltage: 2.5,
		Cutoff:         5,
		Decisions: []domain.GroupDecision{
			{Group: domain.LoadGroup{Id: domain.LOAD_GROUP_CORE}, Enabled: true},
			{Group: domain.LoadGroup{Id: domain.LOAD_GROUP_UHF}, Enabled: false},
		},
		Commands:    []eps_i2c.CommandChannel{eps_i2c.Bus3V3On, eps_i2c.LowPowerBus5VOff},
		Bus3V3Volts: 3.3,
	}
	evs := ShedReportToUpdateEvents(report)

	switches := map[string]bool{}
	var shedding *bool
	for _, ev := range evs {
		switch e := ev.(type) {
		case domain.SwitchSensorUpdateEvent:
			switches[e.SensorId()] = e.Value
		case domain.BinarySensorUpdateEvent:
			shedding = &e.Value
		}
	}
	assert.Equal(t, map[string]bool{"bus3v3": true, "lup5v": false}, switches)
	require.NotNil(t, shedding)
	assert.True(t, *shedding)
}

func TestSolarEventsCoverAllAxes(t *testing.T) {
	evs := SolarTelemetryToUpdateEvents(&domain.SolarTelemetry{
		Z: domain.PanelTelemetry{PlusCurrent: 0.25},
	})
	assert.Len(t, evs, 9)
	last := evs[8].(domain.FloatSensorUpdateEvent)
	assert.Equal(t, "solar_z_plus_current", last.SensorId())
	assert.Equal(t, 0.25, last.Value)
}

func TestDiscoveryIdsAreUnique(t *testing.T) {
	dev := EPSDevice("eps", eps_i2c.DefaultDeviceAddress)
	seen := map[string]bool{}
	var sensors []domain.GenericSensor
	sensors = append(sensors, BatterySensors(dev)...)
	sensors = append(sensors, BusSensors(dev)...)
	sensors = append(sensors, SolarSensors(dev)...)
	sensors = append(sensors, PowerManagerSensors(dev)...)
	for _, s := range sensors {
		assert.False(t, seen[s.UniqueId], s.UniqueId)
		seen[s.UniqueId] = true
	}
	assert.Len(t, PowerSwitches(dev), len(eps_i2c.Switches())+1)
}
