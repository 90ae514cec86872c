package service

import (
	"fmt"

	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/port"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"go.uber.org/zap"
)

const DEFAULT_LOW_POWER_VOLTAGE = 3.0

type GatingMode int

const (
	// GatingCanonical allows measurements and commands in every powered state, including OnNormal,
	// so a shedding pass can run from OnNormal. It is the default; GatingLegacy keeps the stricter table.
	GatingCanonical GatingMode = iota
	// GatingLegacy restricts commands to On and OnLowPower.
	GatingLegacy
)

func ParseGatingMode(name string) (GatingMode, error) {
	switch name {
	case "canonical":
		return GatingCanonical, nil
	case "legacy":
		return GatingLegacy, nil
	}
	return GatingCanonical, fmt.Errorf("unknown gating mode %q", name)
}

type gatingTable struct {
	measure map[domain.PowerState]bool
	command map[domain.PowerState]bool
}

func newGatingTable(mode GatingMode) gatingTable {
	powered := map[domain.PowerState]bool{
		domain.PowerStateOn:         true,
		domain.PowerStateOnNormal:   true,
		domain.PowerStateOnLowPower: true,
	}
	if mode == GatingLegacy {
		return gatingTable{
			measure: powered,
			command: map[domain.PowerState]bool{
				domain.PowerStateOn:         true,
				domain.PowerStateOnLowPower: true,
			},
		}
	}
	return gatingTable{measure: powered, command: powered}
}

type PowerControllerOptions struct {
	Gating          GatingMode
	HistoryPolicy   domain.HistoryPolicy
	LowPowerVoltage float64
	// OnTransition is called after every state change, including self transitions.
	OnTransition func(from, to domain.PowerState)
}

// DefaultPowerController owns the power state of one EPS board and is the only path to its bus.
// Not safe for concurrent use: callers serialize access.
type DefaultPowerController struct {
	board           *eps_i2c.Board
	state           domain.PowerState
	history         *domain.StateHistory
	gating          gatingTable
	lowPowerVoltage float64
	onTransition    func(from, to domain.PowerState)
	Logger          *zap.Logger
}

func NewPowerController(board *eps_i2c.Board, opts PowerControllerOptions, logger *zap.Logger) *DefaultPowerController {
	lowPower := opts.LowPowerVoltage
	if lowPower <= 0 {
		lowPower = DEFAULT_LOW_POWER_VOLTAGE
	}
	return &DefaultPowerController{
		board:           board,
		state:           domain.PowerStateInvalid,
		history:         domain.NewStateHistory(opts.HistoryPolicy),
		gating:          newGatingTable(opts.Gating),
		lowPowerVoltage: lowPower,
		onTransition:    opts.OnTransition,
		Logger:          logger,
	}
}

func (c *DefaultPowerController) State() domain.PowerState {
	return c.state
}

func (c *DefaultPowerController) History(lookback int) []domain.PowerState {
	return c.history.Lookback(lookback)
}

// CheckBattery classifies the battery voltage into OnLowPower or OnNormal.
func (c *DefaultPowerController) CheckBattery(voltage float64) domain.PowerState {
	if voltage <= c.lowPowerVoltage {
		return c.transition(domain.PowerStateOnLowPower, "check_battery")
	}
	return c.transition(domain.PowerStateOnNormal, "check_battery")
}

func (c *DefaultPowerController) Shutdown() domain.PowerState {
	return c.transition(domain.PowerStateOff, "shutdown")
}

// Activate brings the controller to On from any state. It is the only way out of Off.
func (c *DefaultPowerController) Activate() domain.PowerState {
	return c.transition(domain.PowerStateOn, "activate")
}

func (c *DefaultPowerController) transition(to domain.PowerState, reason string) domain.PowerState {
	from := c.state
	c.history.Push(from)
	c.state = to
	if from != to {
		c.Logger.Info(fmt.Sprintf("power state %s -> %s", from, to), zap.String("reason", reason))
	} else {
		c.Logger.Debug(fmt.Sprintf("power state %s unchanged", to), zap.String("reason", reason))
	}
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
	return to
}

// Read performs a gated measurement.
func (c *DefaultPowerController) Read(ch eps_i2c.MeasurementChannel) (float64, error) {
	if !c.gating.measure[c.state] {
		return 0, fmt.Errorf("%w: read %s in %s", domain.ErrChannelUnavailable, ch, c.state)
	}
	v, err := c.board.ReadMeasurement(ch)
	if err != nil {
		return 0, err
	}
	c.Logger.Debug("measurement", zap.Stringer("channel", ch), zap.Float64("value", v))
	return v, nil
}

// Execute performs a gated command write.
func (c *DefaultPowerController) Execute(ch eps_i2c.CommandChannel) error {
	if !c.gating.command[c.state] {
		return fmt.Errorf("%w: execute %s in %s", domain.ErrChannelUnavailable, ch, c.state)
	}
	if err := c.board.WriteCommand(ch); err != nil {
		return err
	}
	c.Logger.Debug("command", zap.Stringer("channel", ch))
	return nil
}

// ensure interface compliance
var _ port.PowerController = (*DefaultPowerController)(nil)
