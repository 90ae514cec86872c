package eps_i2c

import (
	"fmt"
	"strings"
)

// MeasurementChannel identifies one analog telemetry register of the EPS board.
type MeasurementChannel int

const (
	MeasurementUndefined MeasurementChannel = iota
	Voltage
	BatteryCurrent
	Temperature
	XVolts
	XMinusCurrent
	XPlusCurrent
	YVolts
	YMinusCurrent
	YPlusCurrent
	ZVolts
	ZMinusCurrent
	ZPlusCurrent
	Bus3V3Volts
	Bus5VVolts
)

// CommandChannel identifies one write-only switch payload.
type CommandChannel int

const (
	CommandUndefined CommandChannel = iota
	SelfLockOn
	SelfLockOff
	Bus3V3On
	Bus3V3Off
	Bus5VOn
	Bus5VOff
	LowPowerBus3V3On
	LowPowerBus3V3Off
	LowPowerBus5VOn
	LowPowerBus5VOff
	Heater1On
	Heater1Off
	Heater2On
	Heater2Off
	Heater3On
	Heater3Off
)

// Switch groups the on/off command pair of a single board output.
type Switch int

const (
	SwitchUndefined Switch = iota
	SwitchSelfLock
	SwitchBus3V3
	SwitchBus5V
	SwitchLowPowerBus3V3
	SwitchLowPowerBus5V
	SwitchHeater1
	SwitchHeater2
	SwitchHeater3
)

var switchNames = map[Switch]string{
	SwitchSelfLock:       "self_lock",
	SwitchBus3V3:         "bus3v3",
	SwitchBus5V:          "bus5v",
	SwitchLowPowerBus3V3: "lup3v3",
	SwitchLowPowerBus5V:  "lup5v",
	SwitchHeater1:        "heater1",
	SwitchHeater2:        "heater2",
	SwitchHeater3:        "heater3",
}

var switchCommands = map[Switch][2]CommandChannel{
	SwitchSelfLock:       {SelfLockOff, SelfLockOn},
	SwitchBus3V3:         {Bus3V3Off, Bus3V3On},
	SwitchBus5V:          {Bus5VOff, Bus5VOn},
	SwitchLowPowerBus3V3: {LowPowerBus3V3Off, LowPowerBus3V3On},
	SwitchLowPowerBus5V:  {LowPowerBus5VOff, LowPowerBus5VOn},
	SwitchHeater1:        {Heater1Off, Heater1On},
	SwitchHeater2:        {Heater2Off, Heater2On},
	SwitchHeater3:        {Heater3Off, Heater3On},
}

// Switches lists every known board output in register order.
func Switches() []Switch {
	return []Switch{
		SwitchSelfLock, SwitchBus3V3, SwitchBus5V, SwitchLowPowerBus3V3,
		SwitchLowPowerBus5V, SwitchHeater1, SwitchHeater2, SwitchHeater3,
	}
}

func (s Switch) String() string {
	if name, ok := switchNames[s]; ok {
		return name
	}
	return fmt.Sprintf("switch(%d)", int(s))
}

// Command returns the command channel that drives the switch on or off.
func (s Switch) Command(on bool) (CommandChannel, error) {
	pair, ok := switchCommands[s]
	if !ok {
		return CommandUndefined, fmt.Errorf("%w: %s", ErrUnknownChannel, s)
	}
	if on {
		return pair[1], nil
	}
	return pair[0], nil
}

// ParseSwitch resolves a switch by its lowercase name.
func ParseSwitch(name string) (Switch, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range switchNames {
		if n == name {
			return s, nil
		}
	}
	return SwitchUndefined, fmt.Errorf("%w: switch %q", ErrUnknownChannel, name)
}

// SwitchOf returns the switch a command channel belongs to and whether it turns it on.
func SwitchOf(ch CommandChannel) (Switch, bool, error) {
	for s, pair := range switchCommands {
		if pair[0] == ch {
			return s, false, nil
		}
		if pair[1] == ch {
			return s, true, nil
		}
	}
	return SwitchUndefined, false, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
}

func (ch MeasurementChannel) String() string {
	if spec, ok := measurementTable[ch]; ok {
		return spec.name
	}
	return fmt.Sprintf("measurement(%d)", int(ch))
}

func (ch CommandChannel) String() string {
	if spec, ok := commandTable[ch]; ok {
		return spec.name
	}
	return fmt.Sprintf("command(%d)", int(ch))
}

// ParseMeasurementChannel resolves a measurement channel by its lowercase name.
func ParseMeasurementChannel(name string) (MeasurementChannel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for ch, spec := range measurementTable {
		if spec.name == name {
			return ch, nil
		}
	}
	return MeasurementUndefined, fmt.Errorf("%w: measurement %q", ErrUnknownChannel, name)
}

// ParseCommandChannel resolves a command channel by its lowercase name.
func ParseCommandChannel(name string) (CommandChannel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for ch, spec := range commandTable {
		if spec.name == name {
			return ch, nil
		}
	}
	return CommandUndefined, fmt.Errorf("%w: command %q", ErrUnknownChannel, name)
}
