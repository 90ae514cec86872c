package eps_i2c

import (
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// I2CGateway talks to the board over a Linux I2C adapter.
type I2CGateway struct {
	bus i2c.BusCloser
}

// OpenI2CGateway initializes the host drivers and opens the named bus.
// An empty name opens the first bus found.
func OpenI2CGateway(busName string) (*I2CGateway, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, err
	}
	return &I2CGateway{bus: bus}, nil
}

func NewI2CGateway(bus i2c.BusCloser) *I2CGateway {
	return &I2CGateway{bus: bus}
}

func (g *I2CGateway) Write(deviceID uint16, payload []byte) error {
	return g.bus.Tx(deviceID, payload, nil)
}

func (g *I2CGateway) Read(deviceID uint16, buf []byte) error {
	return g.bus.Tx(deviceID, nil, buf)
}

func (g *I2CGateway) Close() error {
	return g.bus.Close()
}

var _ Gateway = (*I2CGateway)(nil)
