package events

import (
	. "github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"
)

func floatEvent(id string, value float64, decimals uint) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value:    value,
		Decimals: decimals,
	}
}

func BatteryTelemetryToUpdateEvents(bt *BatteryTelemetry) []any {
	var events []any

	events = append(events, floatEvent(SENSOR_ID_BATTERY_VOLTAGE, bt.Voltage, 3))
	events = append(events, floatEvent(SENSOR_ID_BATTERY_CURRENT, bt.Current, 3))
	events = append(events, floatEvent(SENSOR_ID_BATTERY_TEMPERATURE, bt.Temperature, 1))

	return events
}

func SolarTelemetryToUpdateEvents(st *SolarTelemetry) []any {
	var events []any
	panels := map[string]PanelTelemetry{"x": st.X, "y": st.Y, "z": st.Z}
	for _, axis := range solarAxes {
		p := panels[axis]
		events = append(events, floatEvent(SolarVoltsSensorId(axis), p.Volts, 3))
		events = append(events, floatEvent(SolarCurrentSensorId(axis, false), p.MinusCurrent, 4))
		events = append(events, floatEvent(SolarCurrentSensorId(axis, true), p.PlusCurrent, 4))
	}
	return events
}

func BusTelemetryToUpdateEvents(bt *BusTelemetry) []any {
	var events []any

	events = append(events, floatEvent(SENSOR_ID_BUS3V3_VOLTAGE, bt.Bus3V3Volts, 3))
	events = append(events, floatEvent(SENSOR_ID_BUS5V_VOLTAGE, bt.Bus5VVolts, 3))

	return events
}

func PowerStateUpdateEvent(state PowerState) any {
	return TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_POWER_STATE,
		},
		Value: state.String(),
	}
}

// ShedReportToUpdateEvents converts an active load-shedding pass into sensor and switch updates.
// Inactive passes only report the power state.
func ShedReportToUpdateEvents(r ShedReport) []any {
	var events []any
	events = append(events, PowerStateUpdateEvent(r.State))
	if r.Inactive {
		return events
	}
	events = append(events, floatEvent(SENSOR_ID_BATTERY_VOLTAGE, r.BatteryVoltage, 3))
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_LOAD_SHED_CUTOFF,
		},
		Value: float64(r.Cutoff),
	})
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_LOAD_SHEDDING_ACTIVE,
		},
		Value: len(r.Shed()) > 0,
	})
	for _, cmd := range r.Commands {
		if ev, ok := SwitchCommandUpdateEvent(cmd); ok {
			events = append(events, ev)
		}
	}
	if len(r.Commands) > 0 {
		events = append(events, BusTelemetryToUpdateEvents(&BusTelemetry{
			Bus3V3Volts: r.Bus3V3Volts,
			Bus5VVolts:  r.Bus5VVolts,
		})...)
	}
	return events
}

// SwitchCommandUpdateEvent reflects a successfully written command as the state of its switch.
func SwitchCommandUpdateEvent(cmd eps_i2c.CommandChannel) (any, bool) {
	s, on, err := eps_i2c.SwitchOf(cmd)
	if err != nil {
		return nil, false
	}
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SwitchId(s),
		},
		Value: on,
	}, true
}

func AutoShedSwitchUpdateEvent(enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_AUTO_SHED,
		},
		Value: enabled,
	}
}
