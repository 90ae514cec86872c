package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE         = "bridge"
	SENSOR_ID_BATTERY_VOLTAGE      = "battery_voltage"
	SENSOR_ID_BATTERY_CURRENT      = "battery_current"
	SENSOR_ID_BATTERY_TEMPERATURE  = "battery_temperature"
	SENSOR_ID_BUS3V3_VOLTAGE       = "bus3v3_voltage"
	SENSOR_ID_BUS5V_VOLTAGE        = "bus5v_voltage"
	SENSOR_ID_POWER_STATE          = "power_state"
	SENSOR_ID_LOAD_SHED_CUTOFF     = "load_shed_cutoff"
	SENSOR_ID_LOAD_SHEDDING_ACTIVE = "load_shedding_active"
	SWITCH_ID_AUTO_SHED            = "auto_shed"
	BUTTON_ID_ACTIVATE             = "activate"
	BUTTON_ID_SHUTDOWN             = "shutdown"
	STATE_CLASS_MEASUREMENT        = "measurement"
	DEVICE_CLASS_CURRENT           = "current"
	DEVICE_CLASS_TEMPERATURE       = "temperature"
	DEVICE_CLASS_VOLTAGE           = "voltage"
	DEVICE_CLASS_CONNECTIVITY      = "connectivity"
	DEVICE_CLASS_PROBLEM           = "problem"
	ENTITY_CLASS_DIAGNOSTIC        = "diagnostic"
	ENTITY_CLASS_CONFIG            = "config"
	SENSOR_TYPE_SENSOR             = "sensor"
	SENSOR_TYPE_BINARY             = "binary_sensor"
)

var solarAxes = []string{"x", "y", "z"}

func SolarVoltsSensorId(axis string) string {
	return fmt.Sprintf("solar_%s_voltage", axis)
}

func SolarCurrentSensorId(axis string, plus bool) string {
	if plus {
		return fmt.Sprintf("solar_%s_plus_current", axis)
	}
	return fmt.Sprintf("solar_%s_minus_current", axis)
}

func SwitchId(s eps_i2c.Switch) string {
	return s.String()
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("eps2mqtt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "eps2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("eps2mqtt %s", md5HashShort(baseTopic)),
	}
}

func EPSDevice(baseTopic string, address uint16) Device {
	return Device{
		Id:           fmt.Sprintf("eps_%s_%02x", md5HashShort(baseTopic), address),
		Manufacturer: "EPS",
		Model:        "I2C power distribution board",
		Name:         fmt.Sprintf("EPS 0x%02x", address),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BatterySensors(epsDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:            epsDevice,
		Id:                SENSOR_ID_BATTERY_VOLTAGE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery voltage",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		UniqueId:          uniqueId(epsDevice.Id, SENSOR_ID_BATTERY_VOLTAGE),
	})
	sensors = append(sensors, GenericSensor{
		Device:            epsDevice,
		Id:                SENSOR_ID_BATTERY_CURRENT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery current",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_CURRENT,
		UnitOfMeasurement: "A",
		UniqueId:          uniqueId(epsDevice.Id, SENSOR_ID_BATTERY_CURRENT),
	})
	sensors = append(sensors, GenericSensor{
		Device:            epsDevice,
		Id:                SENSOR_ID_BATTERY_TEMPERATURE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery temperature",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_TEMPERATURE,
		UnitOfMeasurement: "°C",
		UniqueId:          uniqueId(epsDevice.Id, SENSOR_ID_BATTERY_TEMPERATURE),
	})

	return sensors
}

func BusSensors(epsDevice Device) []GenericSensor {
	var sensors []GenericSensor
	for _, s := range []struct{ id, name string }{
		{SENSOR_ID_BUS3V3_VOLTAGE, "3.3V bus voltage"},
		{SENSOR_ID_BUS5V_VOLTAGE, "5V bus voltage"},
	} {
		sensors = append(sensors, GenericSensor{
			Device:            epsDevice,
			Id:                s.id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              s.name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_VOLTAGE,
			UnitOfMeasurement: "V",
			UniqueId:          uniqueId(epsDevice.Id, s.id),
		})
	}
	return sensors
}

func SolarSensors(epsDevice Device) []GenericSensor {
	var sensors []GenericSensor
	for _, axis := range solarAxes {
		volts := SolarVoltsSensorId(axis)
		sensors = append(sensors, GenericSensor{
			Device:            epsDevice,
			Id:                volts,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("Solar %s voltage", axis),
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_VOLTAGE,
			UnitOfMeasurement: "V",
			Icon:              "mdi:solar-panel",
			UniqueId:          uniqueId(epsDevice.Id, volts),
		})
		for _, plus := range []bool{false, true} {
			id := SolarCurrentSensorId(axis, plus)
			sign := "-"
			if plus {
				sign = "+"
			}
			sensors = append(sensors, GenericSensor{
				Device:            epsDevice,
				Id:                id,
				SensorType:        SENSOR_TYPE_SENSOR,
				Name:              fmt.Sprintf("Solar %s%s current", axis, sign),
				StateClass:        STATE_CLASS_MEASUREMENT,
				DeviceClass:       DEVICE_CLASS_CURRENT,
				UnitOfMeasurement: "A",
				EnabledByDefault:  optionalBool(false),
				UniqueId:          uniqueId(epsDevice.Id, id),
			})
		}
	}
	return sensors
}

func PowerManagerSensors(epsDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:     epsDevice,
		Id:         SENSOR_ID_POWER_STATE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Power state",
		Icon:       "mdi:power-settings",
		UniqueId:   uniqueId(epsDevice.Id, SENSOR_ID_POWER_STATE),
	})
	sensors = append(sensors, GenericSensor{
		Device:         epsDevice,
		Id:             SENSOR_ID_LOAD_SHED_CUTOFF,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Load shed cutoff priority",
		StateClass:     STATE_CLASS_MEASUREMENT,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(epsDevice.Id, SENSOR_ID_LOAD_SHED_CUTOFF),
	})
	sensors = append(sensors, GenericSensor{
		Device:      epsDevice,
		Id:          SENSOR_ID_LOAD_SHEDDING_ACTIVE,
		SensorType:  SENSOR_TYPE_BINARY,
		Name:        "Load shedding",
		DeviceClass: DEVICE_CLASS_PROBLEM,
		UniqueId:    uniqueId(epsDevice.Id, SENSOR_ID_LOAD_SHEDDING_ACTIVE),
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func PowerSwitches(epsDevice Device) []GenericSwitch {

	var switches []GenericSwitch

	for _, s := range eps_i2c.Switches() {
		switches = append(switches, GenericSwitch{
			Device:   epsDevice,
			Id:       SwitchId(s),
			Name:     fmt.Sprintf("Output %s", s),
			UniqueId: uniqueId(epsDevice.Id, SwitchId(s)),
			Icon:     "mdi:electric-switch",
		})
	}
	switches = append(switches, GenericSwitch{
		Device:   epsDevice,
		Id:       SWITCH_ID_AUTO_SHED,
		Name:     "Automatic load shedding",
		UniqueId: uniqueId(epsDevice.Id, SWITCH_ID_AUTO_SHED),
		Icon:     "mdi:car-brake-alert",
	})

	return switches
}

func PowerButtons(epsDevice Device) []GenericButton {
	return []GenericButton{
		{
			Device:   epsDevice,
			Id:       BUTTON_ID_ACTIVATE,
			Name:     "Activate",
			UniqueId: uniqueId(epsDevice.Id, BUTTON_ID_ACTIVATE),
			Icon:     "mdi:power-on",
		},
		{
			Device:   epsDevice,
			Id:       BUTTON_ID_SHUTDOWN,
			Name:     "Shutdown",
			UniqueId: uniqueId(epsDevice.Id, BUTTON_ID_SHUTDOWN),
			Icon:     "mdi:power-off",
		},
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
