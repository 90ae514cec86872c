package service

import (
	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/port"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"
)

type DefaultTelemetryReader struct {
	Controller port.PowerController
}

func (r *DefaultTelemetryReader) ReadBattery() (*domain.BatteryTelemetry, error) {
	values, err := r.readAll(eps_i2c.Voltage, eps_i2c.BatteryCurrent, eps_i2c.Temperature)
	if err != nil {
		return nil, err
	}
	return &domain.BatteryTelemetry{
		Voltage:     values[0],
		Current:     values[1],
		Temperature: values[2],
	}, nil
}

func (r *DefaultTelemetryReader) ReadSolar() (*domain.SolarTelemetry, error) {
	values, err := r.readAll(
		eps_i2c.XVolts, eps_i2c.XMinusCurrent, eps_i2c.XPlusCurrent,
		eps_i2c.YVolts, eps_i2c.YMinusCurrent, eps_i2c.YPlusCurrent,
		eps_i2c.ZVolts, eps_i2c.ZMinusCurrent, eps_i2c.ZPlusCurrent,
	)
	if err != nil {
		return nil, err
	}
	panel := func(i int) domain.PanelTelemetry {
		return domain.PanelTelemetry{Volts: values[i], MinusCurrent: values[i+1], PlusCurrent: values[i+2]}
	}
	return &domain.SolarTelemetry{X: panel(0), Y: panel(3), Z: panel(6)}, nil
}

func (r *DefaultTelemetryReader) ReadBus() (*domain.BusTelemetry, error) {
	values, err := r.readAll(eps_i2c.Bus3V3Volts, eps_i2c.Bus5VVolts)
	if err != nil {
		return nil, err
	}
	return &domain.BusTelemetry{Bus3V3Volts: values[0], Bus5VVolts: values[1]}, nil
}

func (r *DefaultTelemetryReader) readAll(channels ...eps_i2c.MeasurementChannel) ([]float64, error) {
	values := make([]float64, len(channels))
	for i, ch := range channels {
		v, err := r.Controller.Read(ch)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// ensure interface compliance
var _ port.TelemetryReader = (*DefaultTelemetryReader)(nil)
