package eps_i2c

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroRawConvertsToZero(t *testing.T) {
	for _, ch := range MeasurementChannels() {
		v, err := Convert(ch, 0)
		require.NoError(t, err, ch.String())
		assert.Equal(t, 0.0, v, ch.String())
	}
}

func TestCalibrationPoints(t *testing.T) {
	cases := []struct {
		ch   MeasurementChannel
		raw  uint16
		want float64
	}{
		{Voltage, 1000, 2.3394775},
		{BatteryCurrent, 1000, 3.0517578},
		{XVolts, 1000, 2.4414063},
		{ZPlusCurrent, 1000, 0.6103516},
		{Bus3V3Volts, 1622, 3.3},
		{Bus5VVolts, 2458, 5.0008637816},
	}
	for _, c := range cases {
		v, err := Convert(c.ch, c.raw)
		require.NoError(t, err)
		assert.InDelta(t, c.want, v, 1e-3, c.ch.String())
	}
}

// The temperature branch is an unverified hardware formula carried as a fixture.
func TestTemperatureUnverifiedFormula(t *testing.T) {
	v, err := Convert(Temperature, 0x8000|0x0100)
	require.NoError(t, err)
	assert.InDelta(t, float64(0x8100)*0.00390625, v, 1e-9)

	v, err = Convert(Temperature, 100)
	require.NoError(t, err)
	assert.InDelta(t, -6.24, v, 1e-9)

	// lowest reading of the negative branch
	v, err = Convert(Temperature, temperatureLowMask)
	require.NoError(t, err)
	assert.InDelta(t, -0.0624*0x7FFF, v, 1e-9)

	// any raw with the sign bit set takes the positive branch
	v, err = Convert(Temperature, 0xFFFF)
	require.NoError(t, err)
	assert.InDelta(t, float64(0xFFFF)*0.00390625, v, 1e-9)
}

func TestSelectPayloadBigEndian(t *testing.T) {
	p, err := SelectPayload(Voltage)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x30, 0x01, 0x31}, p)

	p, err = SelectPayload(Temperature)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x30, 0x4F, 0x31}, p)
}

func TestCommandPayloads(t *testing.T) {
	cases := map[CommandChannel][]byte{
		SelfLockOff:      {0x30, 0x00, 0x00},
		Bus3V3On:         {0x30, 0x03, 0x01},
		Bus5VOff:         {0x30, 0x04, 0x00},
		LowPowerBus3V3On: {0x30, 0x05, 0x01},
		LowPowerBus5VOn:  {0x30, 0x06, 0x01},
		Heater3On:        {0x30, 0x12, 0x01},
	}
	for ch, want := range cases {
		p, err := CommandPayload(ch)
		require.NoError(t, err)
		assert.Equal(t, want, p, ch.String())
	}
}

func TestPayloadIsACopy(t *testing.T) {
	p, _ := SelectPayload(Voltage)
	p[0] = 0xFF
	q, _ := SelectPayload(Voltage)
	assert.Equal(t, byte(0x30), q[0])
}

func TestUnknownChannels(t *testing.T) {
	_, err := SelectPayload(MeasurementUndefined)
	assert.True(t, errors.Is(err, ErrUnknownChannel))
	_, err = Convert(MeasurementChannel(99), 1)
	assert.True(t, errors.Is(err, ErrUnknownChannel))
	_, err = CommandPayload(CommandUndefined)
	assert.True(t, errors.Is(err, ErrUnknownChannel))
}

func TestParseNames(t *testing.T) {
	for _, ch := range MeasurementChannels() {
		parsed, err := ParseMeasurementChannel(ch.String())
		require.NoError(t, err)
		assert.Equal(t, ch, parsed)
	}
	for _, ch := range CommandChannels() {
		parsed, err := ParseCommandChannel(ch.String())
		require.NoError(t, err)
		assert.Equal(t, ch, parsed)
	}
	_, err := ParseCommandChannel("warp_drive_on")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestSwitchCommands(t *testing.T) {
	on, err := SwitchLowPowerBus5V.Command(true)
	require.NoError(t, err)
	assert.Equal(t, LowPowerBus5VOn, on)

	s, isOn, err := SwitchOf(Heater2Off)
	require.NoError(t, err)
	assert.Equal(t, SwitchHeater2, s)
	assert.False(t, isOn)

	parsed, err := ParseSwitch("Bus5V")
	require.NoError(t, err)
	assert.Equal(t, SwitchBus5V, parsed)

	_, err = SwitchUndefined.Command(true)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestDecodeRaw(t *testing.T) {
	raw, err := DecodeRaw([]byte{0x03, 0xE8})
	require.NoError(t, err)
	assert.Equal(t, uint16(1000), raw)

	_, err = DecodeRaw([]byte{0x01})
	assert.Error(t, err)
}
