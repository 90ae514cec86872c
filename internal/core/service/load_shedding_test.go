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

func newTestPolicy(t *testing.T, gating GatingMode) (*DefaultLoadSheddingPolicy, *DefaultPowerController, *eps_i2c.TestGateway) {
	ctrl, gw := newTestController(gating)
	policy, err := NewLoadSheddingPolicy(ctrl, domain.DefaultLoadGroups(), DefaultThresholds(), zap.NewNop())
	require.NoError(t, err)
	return policy, ctrl, gw
}

func decisionsById(r domain.ShedReport) map[string]bool {
	out := map[string]bool{}
	for _, d := range r.Decisions {
		out[d.Group.Id] = d.Enabled
	}
	return out
}

func TestShedEverythingButCoreAtCriticalVoltage(t *testing.T) {
	policy, ctrl, gw := newTestPolicy(t, GatingCanonical)
	moveTo(ctrl, domain.PowerStateOnNormal)
	historyBefore := len(ctrl.History(domain.HistoryCapacity))
	gw.SetValue(eps_i2c.Voltage, 2.5)
	gw.SetValue(eps_i2c.Bus3V3Volts, 3.3)
	gw.Reset()

	report, err := policy.Evaluate()
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{
		domain.LOAD_GROUP_CORE:         true,
		domain.LOAD_GROUP_EUV:          false,
		domain.LOAD_GROUP_GNSS_IMU:     false,
		domain.LOAD_GROUP_MAGNETORQUER: false,
		domain.LOAD_GROUP_UHF:          false,
	}, decisionsById(report))
	assert.Equal(t, []eps_i2c.CommandChannel{
		eps_i2c.Bus3V3On, eps_i2c.Bus5VOff, eps_i2c.LowPowerBus3V3Off, eps_i2c.LowPowerBus5VOff,
	}, gw.Commands())
	assert.Equal(t, gw.Commands(), report.Commands)

	assert.Equal(t, domain.PowerStateOnLowPower, ctrl.State())
	assert.Equal(t, domain.PowerStateOnLowPower, report.State)
	assert.Equal(t, domain.PowerStateOnNormal, report.PriorState)
	assert.Len(t, ctrl.History(domain.HistoryCapacity), historyBefore+1)
	assert.Equal(t, domain.PowerStateOnNormal, ctrl.History(1)[0])
	assert.InDelta(t, 3.3, report.Bus3V3Volts, 0.01)
	assert.NotEmpty(t, report.Id)
}

func TestInactiveWhenOff(t *testing.T) {
	policy, ctrl, gw := newTestPolicy(t, GatingCanonical)
	ctrl.Shutdown()
	gw.Reset()

	report, err := policy.Evaluate()
	require.NoError(t, err)
	assert.True(t, report.Inactive)
	assert.Equal(t, domain.PowerStateOff, report.State)
	assert.Equal(t, 0, gw.Transactions())
}

func TestShedBands(t *testing.T) {
	cases := []struct {
		voltage float64
		cutoff  int
		shed    []string
	}{
		{4.1, 0, nil},
		{3.6, 3, []string{domain.LOAD_GROUP_EUV}},
		{3.4, 3, []string{domain.LOAD_GROUP_EUV}},
		{3.3, 4, []string{domain.LOAD_GROUP_EUV, domain.LOAD_GROUP_GNSS_IMU, domain.LOAD_GROUP_MAGNETORQUER}},
		{3.2, 4, []string{domain.LOAD_GROUP_EUV, domain.LOAD_GROUP_GNSS_IMU, domain.LOAD_GROUP_MAGNETORQUER}},
		{3.0, 5, []string{domain.LOAD_GROUP_EUV, domain.LOAD_GROUP_GNSS_IMU, domain.LOAD_GROUP_MAGNETORQUER, domain.LOAD_GROUP_UHF}},
	}
	policy, _, _ := newTestPolicy(t, GatingCanonical)
	for _, c := range cases {
		cutoff, decisions, _, err := policy.Plan(c.voltage)
		require.NoError(t, err)
		assert.Equal(t, c.cutoff, cutoff, "%v", c.voltage)
		r := domain.ShedReport{Decisions: decisions}
		assert.Equal(t, c.shed, r.Shed(), "%v", c.voltage)
	}
}

func TestMiddleBandsShedEUVBeforeUHF(t *testing.T) {
	policy, _, _ := newTestPolicy(t, GatingCanonical)

	_, _, commands, err := policy.Plan(3.4)
	require.NoError(t, err)
	assert.Equal(t, []eps_i2c.CommandChannel{
		eps_i2c.Bus3V3On, eps_i2c.Bus5VOff, eps_i2c.LowPowerBus3V3On, eps_i2c.LowPowerBus5VOn,
	}, commands)

	_, _, commands, err = policy.Plan(3.2)
	require.NoError(t, err)
	assert.Equal(t, []eps_i2c.CommandChannel{
		eps_i2c.Bus3V3On, eps_i2c.Bus5VOff, eps_i2c.LowPowerBus3V3Off, eps_i2c.LowPowerBus5VOn,
	}, commands)
}

func TestSharedRailStaysOnWhileAnyGroupEnabled(t *testing.T) {
	groups := []domain.LoadGroup{
		{Id: domain.LOAD_GROUP_CORE, Priority: 1, Switch: eps_i2c.SwitchBus3V3},
		{Id: domain.LOAD_GROUP_EUV, Priority: 2, Switch: eps_i2c.SwitchBus5V},
		{Id: domain.LOAD_GROUP_UHF, Priority: 4, Switch: eps_i2c.SwitchBus5V},
	}
	ctrl, _ := newTestController(GatingCanonical)
	policy, err := NewLoadSheddingPolicy(ctrl, groups, DefaultThresholds(), zap.NewNop())
	require.NoError(t, err)

	_, _, commands, err := policy.Plan(3.5)
	require.NoError(t, err)
	assert.Equal(t, []eps_i2c.CommandChannel{eps_i2c.Bus3V3On, eps_i2c.Bus5VOn}, commands)
}

func TestGroupsAreOrderedCoreFirst(t *testing.T) {
	groups := domain.DefaultLoadGroups()
	reversed := make([]domain.LoadGroup, 0, len(groups))
	for i := len(groups) - 1; i >= 0; i-- {
		reversed = append(reversed, groups[i])
	}
	ctrl, _ := newTestController(GatingCanonical)
	policy, err := NewLoadSheddingPolicy(ctrl, reversed, DefaultThresholds(), zap.NewNop())
	require.NoError(t, err)

	ordered := policy.Groups()
	assert.Equal(t, domain.LOAD_GROUP_CORE, ordered[0].Id)
	assert.Equal(t, domain.LOAD_GROUP_EUV, ordered[1].Id)
	assert.Equal(t, domain.LOAD_GROUP_UHF, ordered[len(ordered)-1].Id)
}

func TestAbortOnCommandFailure(t *testing.T) {
	policy, ctrl, gw := newTestPolicy(t, GatingCanonical)
	moveTo(ctrl, domain.PowerStateOnNormal)
	gw.SetValue(eps_i2c.Voltage, 2.5)
	gw.Reset()
	failed := errors.New("nack")
	gw.FailOnWrite = func(payload []byte) error {
		if payload[1] == 0x05 && payload[2] != 0x31 {
			return failed
		}
		return nil
	}

	report, err := policy.Evaluate()
	assert.ErrorIs(t, err, failed)
	var busErr *eps_i2c.BusError
	assert.ErrorAs(t, err, &busErr)
	assert.Equal(t, []eps_i2c.CommandChannel{eps_i2c.Bus3V3On, eps_i2c.Bus5VOff}, gw.Commands())
	assert.Equal(t, gw.Commands(), report.Commands)
	// no rollback and no reclassification
	assert.Equal(t, domain.PowerStateOnNormal, ctrl.State())
}

func TestVoltageReadFailureSurfaces(t *testing.T) {
	policy, ctrl, gw := newTestPolicy(t, GatingCanonical)
	ctrl.Activate()
	gw.ReadErr = errors.New("timeout")

	_, err := policy.Evaluate()
	var busErr *eps_i2c.BusError
	require.ErrorAs(t, err, &busErr)
	assert.Empty(t, gw.Commands())
	assert.Equal(t, domain.PowerStateOn, ctrl.State())
}

func TestInvalidStateIsUnavailable(t *testing.T) {
	policy, _, gw := newTestPolicy(t, GatingCanonical)

	_, err := policy.Evaluate()
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	assert.Equal(t, 0, gw.Transactions())
}

func TestLegacyGatingBlocksShedFromOnNormal(t *testing.T) {
	policy, ctrl, gw := newTestPolicy(t, GatingLegacy)
	moveTo(ctrl, domain.PowerStateOnNormal)
	gw.SetValue(eps_i2c.Voltage, 2.5)

	_, err := policy.Evaluate()
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	assert.Empty(t, gw.Commands())
}

func TestThresholdValidation(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{T1: 3.0, T2: 3.3, T3: 2.9}.Validate())
	assert.Error(t, Thresholds{T1: 3.3, T2: 3.3, T3: 2.9}.Validate())

	ctrl, _ := newTestController(GatingCanonical)
	_, err := NewLoadSheddingPolicy(ctrl, domain.DefaultLoadGroups(), Thresholds{T1: 1, T2: 2, T3: 3}, zap.NewNop())
	assert.Error(t, err)
}
