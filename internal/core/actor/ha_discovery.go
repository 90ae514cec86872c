package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/eps2mqtt/internal/config"
	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/events"
	"github.com/berfenger/eps2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type HADiscoveryActor struct {
	config           *config.Config
	behavior         actor.Behavior
	stash            *actorutil.Stash
	epsActor         *actor.PID
	mqttActor        *actor.PID
	epsActorHealthy  bool
	mqttActorHealthy bool
	healthyRecv      int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, epsActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		epsActor:  epsActor,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check EPS and MQTT actor healthy
		state.healthyRecv = 0
		state.epsActorHealthy = false
		state.mqttActorHealthy = false
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.epsActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_EPS,
				Healthy: false,
			}
		})
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_EPS:
				state.epsActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if !state.epsActorHealthy || !state.mqttActorHealthy {
				panic(errors.New("MQTT Actor or EPS Actor are not healthy"))
			}
			req := state.discoveryRequest()
			state.logger.Info("hadiscovery@healthcheck: publishing discovery",
				zap.Int("sensors", len(req.Sensors)), zap.Int("switches", len(req.Switches)), zap.Int("buttons", len(req.Buttons)))
			ctx.Send(state.mqttActor, req)
			state.behavior.Become(state.Done)
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	if _, ok := ctx.Message().(domain.ActorHealthRequest); ok {
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "done",
		})
	}
}

// discoveryRequest lists the bridge entities and every entity of the EPS board.
// Only the first entity of a device carries the full device description.
func (state *HADiscoveryActor) discoveryRequest() domain.PublishDiscoveryRequest {
	var sensors []domain.GenericSensor

	bridgeDevice := events.BridgeDevice(state.config.MQTT.BaseTopic)
	sensors = append(sensors, events.BridgeSensors(bridgeDevice)...)

	epsDevice := events.EPSDevice(state.config.MQTT.BaseTopic, state.config.EPS.Address)
	epsDevice.ViaDevice = bridgeDevice.Id
	epsIdDevice := events.IdDevice(epsDevice)

	epsSensors := events.BatterySensors(epsDevice)
	epsSensors = append(epsSensors, events.BusSensors(epsIdDevice)...)
	epsSensors = append(epsSensors, events.SolarSensors(epsIdDevice)...)
	epsSensors = append(epsSensors, events.PowerManagerSensors(epsIdDevice)...)
	for i := range epsSensors {
		if i > 0 {
			epsSensors[i].Device = epsIdDevice
		}
	}
	sensors = append(sensors, epsSensors...)

	return domain.PublishDiscoveryRequest{
		Sensors:  sensors,
		Switches: events.PowerSwitches(epsIdDevice),
		Buttons:  events.PowerButtons(epsIdDevice),
	}
}
