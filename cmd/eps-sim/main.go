package main

import (
	"context"
	"log/slog"
	"math"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"github.com/simonvetter/modbus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// register numbers mirror the middle byte of the board payloads
const (
	regSelfLock = 0x00
	regVoltage  = 0x01
	regCurrent  = 0x02
	regBus3V3   = 0x03
	regBus5V    = 0x04
	regLup3V3   = 0x05
	regLup5V    = 0x06
	regXVolts   = 0x05
	regYVolts   = 0x08
	regZVolts   = 0x0B
	regBus3V3V  = 0x0E
	regBus5VV   = 0x0F
	regTemp     = 0x4F
	regHeater1  = 0x10
	regHeater3  = 0x12
	maxRegister = 0x4F
)

type epsSimulator struct {
	mu       sync.Mutex
	unitId   uint8
	voltage  float64
	drain    float64
	charge   float64
	switches map[uint16]uint16
	logger   *zap.Logger
}

func newEPSSimulator(unitId uint8, voltage float64, logger *zap.Logger) *epsSimulator {
	return &epsSimulator{
		unitId:  unitId,
		voltage: voltage,
		drain:   viper.GetFloat64("drain_volts"),
		charge:  viper.GetFloat64("charge_volts"),
		switches: map[uint16]uint16{
			regSelfLock: 0, regBus3V3: 0, regBus5V: 0, regLup3V3: 0, regLup5V: 0,
			regHeater1: 0, regHeater1 + 1: 0, regHeater3: 0,
		},
		logger: logger,
	}
}

// step moves the battery voltage according to the active loads
func (s *epsSimulator) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	load := 0.0
	for reg, on := range s.switches {
		if on == 0 || reg == regSelfLock {
			continue
		}
		load += s.drain
	}
	s.voltage = math.Max(2.5, math.Min(4.2, s.voltage+s.charge-load))
	s.logger.Debug("eps-sim: step", zap.Float64("voltage", s.voltage), zap.Float64("load", load))
}

func (s *epsSimulator) raw(register uint16) (uint16, bool) {
	on := func(reg uint16) float64 {
		if s.switches[reg] != 0 && s.switches[regSelfLock] != 0 {
			return 1
		}
		return 0
	}
	switch register {
	case regVoltage:
		return encode(eps_i2c.Voltage, s.voltage), true
	case regCurrent:
		return encode(eps_i2c.BatteryCurrent, 0.1+0.2*on(regBus5V)), true
	case regXVolts, regYVolts, regZVolts:
		return encode(eps_i2c.XVolts, 4.8), true
	case regXVolts + 1, regXVolts + 2, regYVolts + 1, regYVolts + 2, regZVolts + 1, regZVolts + 2:
		return encode(eps_i2c.XPlusCurrent, 0.05), true
	case regBus3V3V:
		return encode(eps_i2c.Bus3V3Volts, 3.3*on(regBus3V3)), true
	case regBus5VV:
		return encode(eps_i2c.Bus5VVolts, 5.0*on(regBus5V)), true
	case regTemp:
		// about -5 C
		raw := 5 / 0.0624
		return uint16(raw), true
	}
	return 0, false
}

func encode(ch eps_i2c.MeasurementChannel, value float64) uint16 {
	unit, _ := eps_i2c.Convert(ch, 1)
	return uint16(math.Round(value / unit))
}

func (s *epsSimulator) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *epsSimulator) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *epsSimulator) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.UnitId != s.unitId {
		return nil, modbus.ErrIllegalFunction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]uint16, 0, req.Quantity)
	for i := 0; i < int(req.Quantity); i++ {
		reg := req.Addr + uint16(i)
		current, ok := s.switches[reg]
		if !ok {
			return nil, modbus.ErrIllegalDataAddress
		}
		if req.IsWrite {
			current = req.Args[i]
			s.switches[reg] = current
			s.logger.Info("eps-sim: switch", zap.Uint16("register", reg), zap.Uint16("value", current))
		}
		res = append(res, current)
	}
	return res, nil
}

func (s *epsSimulator) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	if req.UnitId != s.unitId {
		return nil, modbus.ErrIllegalFunction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]uint16, 0, req.Quantity)
	for i := 0; i < int(req.Quantity); i++ {
		reg := req.Addr + uint16(i)
		if reg > maxRegister {
			return nil, modbus.ErrIllegalDataAddress
		}
		value, ok := s.raw(reg)
		if !ok {
			return nil, modbus.ErrIllegalDataAddress
		}
		res = append(res, value)
	}
	return res, nil
}

func main() {
	viper.SetEnvPrefix("eps_sim")
	viper.AutomaticEnv()
	viper.SetDefault("url", "tcp://0.0.0.0:5020")
	viper.SetDefault("address", eps_i2c.DefaultDeviceAddress)
	viper.SetDefault("voltage", 3.9)
	viper.SetDefault("drain_volts", 0.002)
	viper.SetDefault("charge_volts", 0.003)
	viper.SetDefault("step_millis", 1000)
	viper.SetDefault("max_clients", 4)

	logger := zap.Must(zap.NewDevelopment())
	defer logger.Sync()

	sim := newEPSSimulator(uint8(viper.GetUint("address")), viper.GetFloat64("voltage"), logger)

	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        viper.GetString("url"),
		Timeout:    30 * time.Second,
		MaxClients: viper.GetUint("max_clients"),
	}, sim)
	if err != nil {
		slog.Error("could not create modbus server", "error", err)
		return
	}
	if err := server.Start(); err != nil {
		slog.Error("could not start modbus server", "error", err)
		return
	}
	defer server.Stop()
	logger.Info("eps-sim: listening", zap.String("url", viper.GetString("url")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Duration(viper.GetInt("step_millis")) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("eps-sim: shutting down")
			return
		case <-ticker.C:
			sim.step()
		}
	}
}
