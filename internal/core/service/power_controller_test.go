package service

import (
	"errors"
	"testing"

	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestController(gating GatingMode) (*DefaultPowerController, *eps_i2c.TestGateway) {
	gw := eps_i2c.NewTestGateway()
	board := eps_i2c.NewBoard(gw, eps_i2c.DefaultDeviceAddress, nil, nil)
	ctrl := NewPowerController(board, PowerControllerOptions{Gating: gating}, zap.NewNop())
	return ctrl, gw
}

// moveTo drives the controller into the wanted state through public transitions.
func moveTo(ctrl *DefaultPowerController, state domain.PowerState) {
	switch state {
	case domain.PowerStateOn:
		ctrl.Activate()
	case domain.PowerStateOnNormal:
		ctrl.CheckBattery(4.0)
	case domain.PowerStateOnLowPower:
		ctrl.CheckBattery(2.8)
	case domain.PowerStateOff:
		ctrl.Shutdown()
	}
}

func TestInitialStateIsInvalid(t *testing.T) {
	ctrl, _ := newTestController(GatingCanonical)
	assert.Equal(t, domain.PowerStateInvalid, ctrl.State())
	assert.Empty(t, ctrl.History(10))
}

func TestCheckBatteryClassification(t *testing.T) {
	ctrl, _ := newTestController(GatingCanonical)

	for _, v := range []float64{0, 1.5, 2.999, 3.0} {
		assert.Equal(t, domain.PowerStateOnLowPower, ctrl.CheckBattery(v), "%v", v)
	}
	for _, v := range []float64{3.0001, 3.3, 4.2} {
		assert.Equal(t, domain.PowerStateOnNormal, ctrl.CheckBattery(v), "%v", v)
	}
}

func TestCheckBatteryPushesPriorState(t *testing.T) {
	ctrl, _ := newTestController(GatingCanonical)
	ctrl.Activate()
	ctrl.CheckBattery(2.5)

	assert.Equal(t, []domain.PowerState{domain.PowerStateOn, domain.PowerStateInvalid}, ctrl.History(5))
}

func TestShutdownFromAnyState(t *testing.T) {
	for _, s := range []domain.PowerState{domain.PowerStateInvalid, domain.PowerStateOn,
		domain.PowerStateOnNormal, domain.PowerStateOnLowPower, domain.PowerStateOff} {
		ctrl, _ := newTestController(GatingCanonical)
		moveTo(ctrl, s)
		assert.Equal(t, domain.PowerStateOff, ctrl.Shutdown())
		assert.Equal(t, domain.PowerStateOff, ctrl.Shutdown())
		assert.Equal(t, domain.PowerStateOff, ctrl.State())
		assert.Equal(t, domain.PowerStateOff, ctrl.History(1)[0])
	}
}

func TestActivateLeavesOff(t *testing.T) {
	ctrl, _ := newTestController(GatingCanonical)
	ctrl.Shutdown()
	assert.Equal(t, domain.PowerStateOn, ctrl.Activate())
	assert.Equal(t, []domain.PowerState{domain.PowerStateOff}, ctrl.History(1))
}

func TestTransitionHook(t *testing.T) {
	var seen [][2]domain.PowerState
	board := eps_i2c.NewBoard(eps_i2c.NewTestGateway(), eps_i2c.DefaultDeviceAddress, nil, nil)
	ctrl := NewPowerController(board, PowerControllerOptions{
		OnTransition: func(from, to domain.PowerState) {
			seen = append(seen, [2]domain.PowerState{from, to})
		},
	}, zap.NewNop())

	ctrl.Activate()
	ctrl.Shutdown()
	assert.Equal(t, [][2]domain.PowerState{
		{domain.PowerStateInvalid, domain.PowerStateOn},
		{domain.PowerStateOn, domain.PowerStateOff},
	}, seen)
}

func TestReadAndExecuteGatedWhenUnpowered(t *testing.T) {
	for _, s := range []domain.PowerState{domain.PowerStateInvalid, domain.PowerStateOff} {
		ctrl, gw := newTestController(GatingCanonical)
		moveTo(ctrl, s)

		_, err := ctrl.Read(eps_i2c.Voltage)
		assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
		err = ctrl.Execute(eps_i2c.Bus3V3On)
		assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
		assert.Equal(t, 0, gw.Transactions(), "no bus traffic in %s", s)
	}
}

func TestReadAndExecuteInPoweredStates(t *testing.T) {
	for _, s := range []domain.PowerState{domain.PowerStateOn, domain.PowerStateOnNormal, domain.PowerStateOnLowPower} {
		ctrl, gw := newTestController(GatingCanonical)
		gw.SetRaw(eps_i2c.Voltage, 1000)
		moveTo(ctrl, s)

		v, err := ctrl.Read(eps_i2c.Voltage)
		require.NoError(t, err)
		assert.InDelta(t, 2.3394775, v, 1e-9)
		require.NoError(t, ctrl.Execute(eps_i2c.Heater1On))
	}
}

func TestDefaultGatingCommandsFromOnNormal(t *testing.T) {
	mode, err := ParseGatingMode("canonical")
	require.NoError(t, err)
	assert.Equal(t, GatingCanonical, mode)

	board := eps_i2c.NewBoard(eps_i2c.NewTestGateway(), eps_i2c.DefaultDeviceAddress, nil, nil)
	ctrl := NewPowerController(board, PowerControllerOptions{}, zap.NewNop())
	moveTo(ctrl, domain.PowerStateOnNormal)
	assert.NoError(t, ctrl.Execute(eps_i2c.Bus5VOff))
}

func TestLegacyGatingRejectsCommandsInOnNormal(t *testing.T) {
	ctrl, gw := newTestController(GatingLegacy)
	moveTo(ctrl, domain.PowerStateOnNormal)

	_, err := ctrl.Read(eps_i2c.Voltage)
	require.NoError(t, err)
	err = ctrl.Execute(eps_i2c.Bus5VOff)
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	assert.Empty(t, gw.Commands())

	moveTo(ctrl, domain.PowerStateOnLowPower)
	assert.NoError(t, ctrl.Execute(eps_i2c.Bus5VOff))
}

func TestUnknownChannelDoesNotTouchBus(t *testing.T) {
	ctrl, gw := newTestController(GatingCanonical)
	ctrl.Activate()

	_, err := ctrl.Read(eps_i2c.MeasurementUndefined)
	assert.ErrorIs(t, err, eps_i2c.ErrUnknownChannel)
	err = ctrl.Execute(eps_i2c.CommandUndefined)
	assert.ErrorIs(t, err, eps_i2c.ErrUnknownChannel)
	assert.Equal(t, 0, gw.Transactions())
}

func TestBusErrorPropagatesWithoutRetry(t *testing.T) {
	ctrl, gw := newTestController(GatingCanonical)
	ctrl.Activate()
	gw.ReadErr = errors.New("arbitration lost")

	_, err := ctrl.Read(eps_i2c.BatteryCurrent)
	var busErr *eps_i2c.BusError
	require.ErrorAs(t, err, &busErr)
	assert.Len(t, gw.Writes(), 1)
	assert.Equal(t, domain.PowerStateOn, ctrl.State())
}

func TestParseGatingMode(t *testing.T) {
	m, err := ParseGatingMode("legacy")
	require.NoError(t, err)
	assert.Equal(t, GatingLegacy, m)
	_, err = ParseGatingMode("loose")
	assert.Error(t, err)
}
