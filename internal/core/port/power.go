package port

import (
	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"
)

type PowerStateMachine interface {
	State() domain.PowerState
	History(lookback int) []domain.PowerState
	CheckBattery(voltage float64) domain.PowerState
	Shutdown() domain.PowerState
	Activate() domain.PowerState
}

type PowerController interface {
	PowerStateMachine
	Read(ch eps_i2c.MeasurementChannel) (float64, error)
	Execute(ch eps_i2c.CommandChannel) error
}

type LoadSheddingPolicy interface {
	Evaluate() (domain.ShedReport, error)
}

type TelemetryReader interface {
	ReadBattery() (*domain.BatteryTelemetry, error)
	ReadSolar() (*domain.SolarTelemetry, error)
	ReadBus() (*domain.BusTelemetry, error)
}
