package eps_i2c

import (
	"errors"
	"sync"
)

// TestGateway is an in-memory board used by tests and by the "test" bus driver.
// It records every payload written and serves scripted raw values.
type TestGateway struct {
	mu       sync.Mutex
	raw      map[MeasurementChannel]uint16
	switches map[Switch]bool
	writes   [][]byte
	reads    int
	selected MeasurementChannel

	// WriteErr, when set, is returned by every Write.
	WriteErr error
	// ReadErr, when set, is returned by every Read.
	ReadErr error
	// FailOnWrite is consulted before each write; a non-nil result fails that write only.
	FailOnWrite func(payload []byte) error
}

func NewTestGateway() *TestGateway {
	return &TestGateway{
		raw:      map[MeasurementChannel]uint16{},
		switches: map[Switch]bool{},
	}
}

// SetRaw scripts the raw word returned for a channel.
func (g *TestGateway) SetRaw(ch MeasurementChannel, raw uint16) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.raw[ch] = raw
}

// SetValue scripts a physical value for a linear channel, rounded to the nearest count.
func (g *TestGateway) SetValue(ch MeasurementChannel, value float64) {
	perCount, err := Convert(ch, 1)
	if err != nil || perCount <= 0 {
		return
	}
	g.SetRaw(ch, uint16(value/perCount+0.5))
}

func (g *TestGateway) Write(deviceID uint16, payload []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.WriteErr != nil {
		return g.WriteErr
	}
	if g.FailOnWrite != nil {
		if err := g.FailOnWrite(payload); err != nil {
			return err
		}
	}
	g.writes = append(g.writes, append([]byte(nil), payload...))
	if ch, ok := measurementByPayload(payload); ok {
		g.selected = ch
		return nil
	}
	if ch, ok := commandByPayload(payload); ok {
		if s, on, err := SwitchOf(ch); err == nil {
			g.switches[s] = on
		}
		return nil
	}
	return errors.New("unknown payload")
}

func (g *TestGateway) Read(deviceID uint16, buf []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ReadErr != nil {
		return g.ReadErr
	}
	if g.selected == MeasurementUndefined {
		return errors.New("read without register select")
	}
	g.reads++
	raw := g.raw[g.selected]
	g.selected = MeasurementUndefined
	if len(buf) >= 2 {
		buf[0] = byte(raw >> 8)
		buf[1] = byte(raw)
	}
	return nil
}

func (g *TestGateway) Close() error {
	return nil
}

// Writes returns a copy of every payload written so far.
func (g *TestGateway) Writes() [][]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([][]byte, len(g.writes))
	copy(out, g.writes)
	return out
}

// Commands returns the command channels written so far, in order, skipping register selects.
func (g *TestGateway) Commands() []CommandChannel {
	var out []CommandChannel
	for _, w := range g.Writes() {
		if ch, ok := commandByPayload(w); ok {
			out = append(out, ch)
		}
	}
	return out
}

// Transactions counts writes plus reads.
func (g *TestGateway) Transactions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.writes) + g.reads
}

// SwitchState reports the last commanded state of a switch.
func (g *TestGateway) SwitchState(s Switch) (on bool, known bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	on, known = g.switches[s]
	return on, known
}

func (g *TestGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes = nil
	g.reads = 0
	g.selected = MeasurementUndefined
}

func measurementByPayload(payload []byte) (MeasurementChannel, bool) {
	for ch, spec := range measurementTable {
		if payloadEquals(payload, spec.register) {
			return ch, true
		}
	}
	return MeasurementUndefined, false
}

func commandByPayload(payload []byte) (CommandChannel, bool) {
	for ch, spec := range commandTable {
		if payloadEquals(payload, spec.payload) {
			return ch, true
		}
	}
	return CommandUndefined, false
}

func payloadEquals(payload []byte, v uint32) bool {
	return len(payload) == PayloadSize &&
		payload[0] == byte(v>>16) && payload[1] == byte(v>>8) && payload[2] == byte(v)
}

var _ Gateway = (*TestGateway)(nil)
