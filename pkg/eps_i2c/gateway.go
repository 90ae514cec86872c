package eps_i2c

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Gateway is the raw transport to the EPS board. Implementations must bound every call with a timeout.
type Gateway interface {
	Write(deviceID uint16, payload []byte) error
	Read(deviceID uint16, buf []byte) error
	Close() error
}

// BusError wraps any transport failure reported by a Gateway.
type BusError struct {
	Op       string
	DeviceID uint16
	Err      error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s 0x%02x: %v", e.Op, e.DeviceID, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

type BusInstrument struct {
	RecordTime func(fnName string, elapsed time.Duration)
}

func RecordTimer(name string, instrument []BusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *BusInstrument {
	if logger == nil {
		return nil
	}
	return &BusInstrument{
		RecordTime: func(fnName string, elapsed time.Duration) {
			logger.Debug(fmt.Sprintf("bus [%s]: %d micros", fnName, elapsed.Microseconds()))
		},
	}
}

// Board performs register-level transactions against one EPS device.
// It resolves channels before touching the gateway, so an unknown channel never produces bus traffic.
type Board struct {
	gateway    Gateway
	address    uint16
	instrument []BusInstrument
}

func NewBoard(gateway Gateway, address uint16, logger *zap.Logger, instrumentation *BusInstrument) *Board {
	var inst []BusInstrument
	if logInst := traceLoggerInstrumentation(logger); logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return &Board{
		gateway:    gateway,
		address:    address,
		instrument: inst,
	}
}

func (b *Board) Address() uint16 {
	return b.address
}

// ReadMeasurement writes the select payload, reads the 2-byte response and converts it.
func (b *Board) ReadMeasurement(ch MeasurementChannel) (float64, error) {
	raw, err := b.ReadRaw(ch)
	if err != nil {
		return 0, err
	}
	return Convert(ch, raw)
}

func (b *Board) ReadRaw(ch MeasurementChannel) (uint16, error) {
	defer RecordTimer("ReadRaw", b.instrument)()
	payload, err := SelectPayload(ch)
	if err != nil {
		return 0, err
	}
	if err := b.gateway.Write(b.address, payload); err != nil {
		return 0, &BusError{Op: "write", DeviceID: b.address, Err: err}
	}
	buf := make([]byte, ResponseSize)
	if err := b.gateway.Read(b.address, buf); err != nil {
		return 0, &BusError{Op: "read", DeviceID: b.address, Err: err}
	}
	return DecodeRaw(buf)
}

// WriteCommand writes the payload of a command channel.
func (b *Board) WriteCommand(ch CommandChannel) error {
	defer RecordTimer("WriteCommand", b.instrument)()
	payload, err := CommandPayload(ch)
	if err != nil {
		return err
	}
	if err := b.gateway.Write(b.address, payload); err != nil {
		return &BusError{Op: "write", DeviceID: b.address, Err: err}
	}
	return nil
}

func (b *Board) Close() error {
	return b.gateway.Close()
}
