package service

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/port"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DEFAULT_THRESHOLD_1 = 3.6
	DEFAULT_THRESHOLD_2 = 3.3
	DEFAULT_THRESHOLD_3 = 3.0
)

// Thresholds are battery voltages below which progressively more load is shed. T1 > T2 > T3.
type Thresholds struct {
	T1 float64
	T2 float64
	T3 float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{T1: DEFAULT_THRESHOLD_1, T2: DEFAULT_THRESHOLD_2, T3: DEFAULT_THRESHOLD_3}
}

func (t Thresholds) Validate() error {
	if !(t.T1 > t.T2 && t.T2 > t.T3) {
		return fmt.Errorf("thresholds must be strictly descending, got %.3f/%.3f/%.3f", t.T1, t.T2, t.T3)
	}
	if t.T3 <= 0 {
		return errors.New("thresholds must be positive")
	}
	return nil
}

// Cutoff returns the priority below which non-core groups are shed at the given voltage.
// Zero means nothing is shed.
func (t Thresholds) Cutoff(voltage float64) int {
	switch {
	case voltage <= t.T3:
		return 5
	case voltage <= t.T2:
		return 4
	case voltage <= t.T1:
		return 3
	}
	return 0
}

type DefaultLoadSheddingPolicy struct {
	Controller port.PowerController
	Thresholds Thresholds
	Logger     *zap.Logger
	groups     []domain.LoadGroup
	now        func() time.Time
}

func NewLoadSheddingPolicy(controller port.PowerController, groups []domain.LoadGroup,
	thresholds Thresholds, logger *zap.Logger) (*DefaultLoadSheddingPolicy, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	ordered := make([]domain.LoadGroup, len(groups))
	copy(ordered, groups)
	// core first, then by priority
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Core() != ordered[j].Core() {
			return ordered[i].Core()
		}
		return ordered[i].Priority < ordered[j].Priority
	})
	return &DefaultLoadSheddingPolicy{
		Controller: controller,
		Thresholds: thresholds,
		Logger:     logger,
		groups:     ordered,
		now:        time.Now,
	}, nil
}

func (p *DefaultLoadSheddingPolicy) Groups() []domain.LoadGroup {
	return p.groups
}

// Plan decides which groups stay powered and which switch commands realize that decision.
// A rail shared by several groups stays on while any of them is enabled.
func (p *DefaultLoadSheddingPolicy) Plan(voltage float64) (int, []domain.GroupDecision, []eps_i2c.CommandChannel, error) {
	cutoff := p.Thresholds.Cutoff(voltage)
	decisions := make([]domain.GroupDecision, 0, len(p.groups))
	railOn := map[eps_i2c.Switch]bool{}
	var rails []eps_i2c.Switch
	for _, g := range p.groups {
		enabled := g.Core() || cutoff == 0 || g.Priority >= cutoff
		decisions = append(decisions, domain.GroupDecision{Group: g, Enabled: enabled})
		if _, seen := railOn[g.Switch]; !seen {
			rails = append(rails, g.Switch)
		}
		railOn[g.Switch] = railOn[g.Switch] || enabled
	}
	commands := make([]eps_i2c.CommandChannel, 0, len(rails))
	for _, rail := range rails {
		cmd, err := rail.Command(railOn[rail])
		if err != nil {
			return cutoff, decisions, nil, err
		}
		commands = append(commands, cmd)
	}
	return cutoff, decisions, commands, nil
}

// Evaluate runs one load-shedding pass. A failure aborts the remaining steps without rollback;
// the returned report holds what was done before the failure.
func (p *DefaultLoadSheddingPolicy) Evaluate() (domain.ShedReport, error) {
	state := p.Controller.State()
	report := domain.ShedReport{
		Id:         uuid.NewString(),
		Timestamp:  p.now(),
		PriorState: state,
		State:      state,
	}
	if state == domain.PowerStateOff {
		report.Inactive = true
		p.Logger.Debug("load shedding inactive", zap.String("report", report.Id))
		return report, nil
	}

	voltage, err := p.Controller.Read(eps_i2c.Voltage)
	if err != nil {
		return report, fmt.Errorf("read battery voltage: %w", err)
	}
	report.BatteryVoltage = voltage

	cutoff, decisions, commands, err := p.Plan(voltage)
	report.Cutoff = cutoff
	report.Decisions = decisions
	if err != nil {
		return report, err
	}
	p.Logger.Info("load shedding plan",
		zap.String("report", report.Id),
		zap.Float64("voltage", voltage),
		zap.Int("cutoff", cutoff),
		zap.Strings("shed", report.Shed()))

	for _, cmd := range commands {
		if err := p.Controller.Execute(cmd); err != nil {
			return report, fmt.Errorf("execute %s: %w", cmd, err)
		}
		report.Commands = append(report.Commands, cmd)
	}

	if report.Bus3V3Volts, err = p.Controller.Read(eps_i2c.Bus3V3Volts); err != nil {
		return report, fmt.Errorf("read 3v3 rail: %w", err)
	}
	if report.Bus5VVolts, err = p.Controller.Read(eps_i2c.Bus5VVolts); err != nil {
		return report, fmt.Errorf("read 5v rail: %w", err)
	}

	report.State = p.Controller.CheckBattery(voltage)
	return report, nil
}

// ensure interface compliance
var _ port.LoadSheddingPolicy = (*DefaultLoadSheddingPolicy)(nil)
