package eps_i2c

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
)

const (
	// payload prefix shared by every EPS register
	registerPage = 0x30
	// payload suffix marking a register-select instead of a command
	selectMarker = 0x31
)

// ModbusGateway tunnels EPS register transactions to a Modbus TCP emulator.
// Measurements are served from input registers, switch commands land in holding registers,
// both addressed by the middle byte of the payload.
type ModbusGateway struct {
	client   *modbus.ModbusClient
	selected *uint16
}

func CreateModbusGateway(url string, timeout time.Duration) (*ModbusGateway, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Open(); err != nil {
		return nil, err
	}
	return &ModbusGateway{client: client}, nil
}

func (g *ModbusGateway) Write(deviceID uint16, payload []byte) error {
	if len(payload) != PayloadSize || payload[0] != registerPage {
		return fmt.Errorf("malformed payload % x", payload)
	}
	if err := g.client.SetUnitId(uint8(deviceID)); err != nil {
		return err
	}
	register := uint16(payload[1])
	if payload[2] == selectMarker {
		g.selected = &register
		return nil
	}
	g.selected = nil
	return g.client.WriteRegister(register, uint16(payload[2]))
}

func (g *ModbusGateway) Read(deviceID uint16, buf []byte) error {
	if g.selected == nil {
		return errors.New("read without register select")
	}
	if len(buf) != ResponseSize {
		return fmt.Errorf("unexpected buffer size %d", len(buf))
	}
	if err := g.client.SetUnitId(uint8(deviceID)); err != nil {
		return err
	}
	register := *g.selected
	g.selected = nil
	value, err := g.client.ReadRegister(register, modbus.INPUT_REGISTER)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(buf, value)
	return nil
}

func (g *ModbusGateway) Close() error {
	return g.client.Close()
}

var _ Gateway = (*ModbusGateway)(nil)
