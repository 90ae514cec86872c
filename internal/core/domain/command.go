package domain

import (
	"fmt"

	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"
)

// PowerCommandRequest

type PowerCommandRequest interface {
	ActorRequest
	PowerCommand() string
}

type PowerCommandRequestMixIn struct {
	ActorRequestMixIn
}

func (r PowerCommandRequestMixIn) PowerCommand() string {
	return fmt.Sprintf("%T", r)
}

// PowerCommandResponse

type PowerCommandResponse struct {
	ActorResponseMixIn
	State PowerState
}

// Power commands

type PowerActivateCommand struct {
	PowerCommandRequestMixIn
}

type PowerShutdownCommand struct {
	PowerCommandRequestMixIn
}

// PowerSwitchCommand drives one board output directly.
type PowerSwitchCommand struct {
	PowerCommandRequestMixIn
	Switch eps_i2c.Switch
	On     bool
}

// PowerAutoShedCommand pauses or resumes the periodic load-shedding pass.
type PowerAutoShedCommand struct {
	PowerCommandRequestMixIn
	Enable bool
}

// ensure interface compliance
var _ PowerCommandRequest = (*PowerSwitchCommand)(nil)
