package eps_i2c

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// DefaultDeviceAddress is the 7-bit bus address of the EPS board.
	DefaultDeviceAddress uint16 = 0x18

	// PayloadSize is the length of every select and command payload.
	PayloadSize = 3
	// ResponseSize is the length of every measurement response.
	ResponseSize = 2

	temperatureSignMask = 0x8000
	temperatureLowMask  = 0x7FFF
)

var ErrUnknownChannel = errors.New("unknown channel")

type measurementSpec struct {
	name     string
	register uint32
	convert  func(raw uint16) float64
}

type commandSpec struct {
	name    string
	payload uint32
}

func scale(factor float64) func(uint16) float64 {
	return func(raw uint16) float64 {
		return float64(raw) * factor
	}
}

// temperature is provisional: the negative branch has not been checked against the board datasheet.
// Its low-order adjustment is clamped to 15 bits, so the branch never goes below -0.0624 * 0x7FFF.
func temperature(raw uint16) float64 {
	if raw&temperatureSignMask != 0 {
		return float64(raw) * 0.00390625
	}
	return float64(raw&temperatureLowMask) * -0.0624
}

var measurementTable = map[MeasurementChannel]measurementSpec{
	Voltage:        {"voltage", 0x300131, scale(0.0023394775)},
	BatteryCurrent: {"battery_current", 0x300231, scale(0.0030517578)},
	Temperature:    {"temperature", 0x304F31, temperature},
	XVolts:         {"x_volts", 0x300531, scale(0.0024414063)},
	XMinusCurrent:  {"x_minus_current", 0x300631, scale(0.0006103516)},
	XPlusCurrent:   {"x_plus_current", 0x300731, scale(0.0006103516)},
	YVolts:         {"y_volts", 0x300831, scale(0.0024414063)},
	YMinusCurrent:  {"y_minus_current", 0x300931, scale(0.0006103516)},
	YPlusCurrent:   {"y_plus_current", 0x300A31, scale(0.0006103516)},
	ZVolts:         {"z_volts", 0x300B31, scale(0.0024414063)},
	ZMinusCurrent:  {"z_minus_current", 0x300C31, scale(0.0006103516)},
	ZPlusCurrent:   {"z_plus_current", 0x300D31, scale(0.0006103516)},
	Bus3V3Volts:    {"bus3v3_volts", 0x300E31, scale(0.0020345052)},
	Bus5VVolts:     {"bus5v_volts", 0x300F31, scale(0.0020345052)},
}

var commandTable = map[CommandChannel]commandSpec{
	SelfLockOn:        {"self_lock_on", 0x300001},
	SelfLockOff:       {"self_lock_off", 0x300000},
	Bus3V3On:          {"bus3v3_on", 0x300301},
	Bus3V3Off:         {"bus3v3_off", 0x300300},
	Bus5VOn:           {"bus5v_on", 0x300401},
	Bus5VOff:          {"bus5v_off", 0x300400},
	LowPowerBus3V3On:  {"lup3v3_on", 0x300501},
	LowPowerBus3V3Off: {"lup3v3_off", 0x300500},
	LowPowerBus5VOn:   {"lup5v_on", 0x300601},
	LowPowerBus5VOff:  {"lup5v_off", 0x300600},
	Heater1On:         {"heater1_on", 0x301001},
	Heater1Off:        {"heater1_off", 0x301000},
	Heater2On:         {"heater2_on", 0x301101},
	Heater2Off:        {"heater2_off", 0x301100},
	Heater3On:         {"heater3_on", 0x301201},
	Heater3Off:        {"heater3_off", 0x301200},
}

// MeasurementChannels lists every registered measurement channel in register order.
func MeasurementChannels() []MeasurementChannel {
	return []MeasurementChannel{
		Voltage, BatteryCurrent, Temperature,
		XVolts, XMinusCurrent, XPlusCurrent,
		YVolts, YMinusCurrent, YPlusCurrent,
		ZVolts, ZMinusCurrent, ZPlusCurrent,
		Bus3V3Volts, Bus5VVolts,
	}
}

// CommandChannels lists every registered command channel.
func CommandChannels() []CommandChannel {
	return []CommandChannel{
		SelfLockOn, SelfLockOff, Bus3V3On, Bus3V3Off, Bus5VOn, Bus5VOff,
		LowPowerBus3V3On, LowPowerBus3V3Off, LowPowerBus5VOn, LowPowerBus5VOff,
		Heater1On, Heater1Off, Heater2On, Heater2Off, Heater3On, Heater3Off,
	}
}

// SelectPayload returns the register-select payload written before reading a measurement.
func SelectPayload(ch MeasurementChannel) ([]byte, error) {
	spec, ok := measurementTable[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return encodePayload(spec.register), nil
}

// CommandPayload returns the bytes written to execute a command.
func CommandPayload(ch CommandChannel) ([]byte, error) {
	spec, ok := commandTable[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return encodePayload(spec.payload), nil
}

// Convert turns a raw register value into a physical unit.
func Convert(ch MeasurementChannel, raw uint16) (float64, error) {
	spec, ok := measurementTable[ch]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return spec.convert(raw), nil
}

// DecodeRaw interprets a measurement response as a big-endian unsigned word.
func DecodeRaw(buf []byte) (uint16, error) {
	if len(buf) != ResponseSize {
		return 0, fmt.Errorf("unexpected response size %d", len(buf))
	}
	return binary.BigEndian.Uint16(buf), nil
}

func encodePayload(v uint32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}
