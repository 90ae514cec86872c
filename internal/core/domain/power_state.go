package domain

import (
	"errors"
	"fmt"
)

type PowerState int

const (
	PowerStateInvalid PowerState = iota
	PowerStateOnLowPower
	PowerStateOnNormal
	PowerStateOn
	PowerStateOff
)

var powerStateNames = map[PowerState]string{
	PowerStateInvalid:    "invalid",
	PowerStateOnLowPower: "on_low_power",
	PowerStateOnNormal:   "on_normal",
	PowerStateOn:         "on",
	PowerStateOff:        "off",
}

func (s PowerState) String() string {
	if name, ok := powerStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("power_state(%d)", int(s))
}

// Powered reports whether the board is in any of the on states.
func (s PowerState) Powered() bool {
	return s == PowerStateOn || s == PowerStateOnNormal || s == PowerStateOnLowPower
}

func (s PowerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func ParsePowerState(name string) (PowerState, error) {
	for s, n := range powerStateNames {
		if n == name {
			return s, nil
		}
	}
	return PowerStateInvalid, fmt.Errorf("unknown power state %q", name)
}

// ErrChannelUnavailable is returned when the current power state does not allow the operation.
var ErrChannelUnavailable = errors.New("channel unavailable in current power state")

// HistoryCapacity bounds the number of past states kept.
const HistoryCapacity = 50

type HistoryPolicy int

const (
	// HistoryTruncate resets the history to the pushed entry when it is full.
	HistoryTruncate HistoryPolicy = iota
	// HistoryEvict drops the oldest entry when it is full.
	HistoryEvict
)

func ParseHistoryPolicy(name string) (HistoryPolicy, error) {
	switch name {
	case "truncate":
		return HistoryTruncate, nil
	case "evict":
		return HistoryEvict, nil
	}
	return HistoryTruncate, fmt.Errorf("unknown history policy %q", name)
}

func (p HistoryPolicy) String() string {
	if p == HistoryEvict {
		return "evict"
	}
	return "truncate"
}

// StateHistory stores prior power states, oldest first. Not safe for concurrent use.
type StateHistory struct {
	entries []PowerState
	policy  HistoryPolicy
}

func NewStateHistory(policy HistoryPolicy) *StateHistory {
	return &StateHistory{
		entries: make([]PowerState, 0, HistoryCapacity),
		policy:  policy,
	}
}

func (h *StateHistory) Push(s PowerState) {
	if len(h.entries) >= HistoryCapacity {
		switch h.policy {
		case HistoryEvict:
			copy(h.entries, h.entries[1:])
			h.entries = h.entries[:len(h.entries)-1]
		default:
			h.entries = h.entries[:0]
		}
	}
	h.entries = append(h.entries, s)
}

func (h *StateHistory) Len() int {
	return len(h.entries)
}

func (h *StateHistory) Policy() HistoryPolicy {
	return h.policy
}

// Lookback returns up to n entries, most recent first.
func (h *StateHistory) Lookback(n int) []PowerState {
	if n <= 0 {
		return []PowerState{}
	}
	if n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]PowerState, 0, n)
	for i := len(h.entries) - 1; i >= len(h.entries)-n; i-- {
		out = append(out, h.entries[i])
	}
	return out
}
