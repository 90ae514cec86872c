package actor

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	adactor "github.com/berfenger/eps2mqtt/internal/adapter/actor"
	"github.com/berfenger/eps2mqtt/internal/config"
	"github.com/berfenger/eps2mqtt/internal/core/domain"
	. "github.com/berfenger/eps2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type EPSActorProvider func(*eventstream.EventStream) *adactor.EPSActor

type RecorderActorProvider func(*eventstream.EventStream) *adactor.RecorderActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck    healthCheckResult
	eventStream           *eventstream.EventStream
	epsActor              *actor.PID
	mqttActor             *actor.PID
	telemetryActor        *actor.PID
	powerManagerActor     *actor.PID
	recorderActor         *actor.PID
	epsActorProvider      EPSActorProvider
	mqttActorProvider     MQTTActorProvider
	recorderActorProvider RecorderActorProvider
	logger                *zap.Logger
}

type healthCheckResult struct {
	expected  []string
	healthy   map[string]bool
	received  int
	respondTo *actor.PID
}

// NewMasterOfPuppetsActor builds the root of the actor tree. recorderActorProvider may be nil
// when the telemetry archive is disabled.
func NewMasterOfPuppetsActor(config config.Config, epsActorProvider EPSActorProvider, mqttActorProvider MQTTActorProvider,
	recorderActorProvider RecorderActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                config,
		behavior:              actor.NewBehavior(),
		stash:                 &Stash{},
		logger:                ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:           &eventstream.EventStream{},
		epsActorProvider:      epsActorProvider,
		mqttActorProvider:     mqttActorProvider,
		recorderActorProvider: recorderActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// start EPS child
		epsActorPID, err := state.startEPSActor(ctx)
		if err != nil {
			panic(err)
		}
		state.epsActor = epsActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Telemetry child
		telemetryActorPID, err := state.startTelemetryActor(ctx)
		if err != nil {
			panic(err)
		}
		state.telemetryActor = telemetryActorPID

		// start PowerManager child
		powerManagerActorPID, err := state.startPowerManagerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.powerManagerActor = powerManagerActorPID

		// start Recorder
		if state.recorderActorProvider != nil {
			recorderActorPID, err := state.startRecorderActor(ctx)
			if err != nil {
				panic(err)
			}
			state.recorderActor = recorderActorPID
		}

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(state.healthCheckTargets())
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.children() {
			actorId := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      actorId,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to the power manager
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default unsupported command", zap.Error(err))
				return
			}
			ctx.Send(state.powerManagerActor, cmd)
		}
	case domain.PowerCommandRequest:
		ctx.Forward(state.powerManagerActor)
	case domain.GetPowerStateRequest, domain.ReadMeasurementRequest,
		domain.GetBatteryTelemetryRequest, domain.GetSolarTelemetryRequest, domain.GetBusTelemetryRequest:
		ctx.Forward(state.epsActor)
	case domain.GetSensorHistoryRequest:
		if state.recorderActor == nil {
			ForRequest(msg).Respond(ctx, domain.GetSensorHistoryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrNoArchive},
			})
			return
		}
		ctx.Forward(state.recorderActor)
	case *actor.Terminated:
		// if the EPS actor gives up, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_EPS) {
			state.logger.Error("master@default eps error")
			panic(errors.New("eps terminated"))
		}
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.SetReceiveTimeout(0)
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.received++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {
			ctx.SetReceiveTimeout(0)
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) children() map[string]*actor.PID {
	children := map[string]*actor.PID{
		domain.ACTOR_ID_EPS:           state.epsActor,
		domain.ACTOR_ID_MQTT:          state.mqttActor,
		domain.ACTOR_ID_TELEMETRY:     state.telemetryActor,
		domain.ACTOR_ID_POWER_MANAGER: state.powerManagerActor,
	}
	if state.recorderActor != nil {
		children[domain.ACTOR_ID_RECORDER] = state.recorderActor
	}
	return children
}

func (state *MasterOfPuppetsActor) healthCheckTargets() []string {
	var ids []string
	for id := range state.children() {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (state *MasterOfPuppetsActor) startEPSActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	epsProps := actor.PropsFromProducer(func() actor.Actor {
		return state.epsActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(epsProps, domain.ACTOR_ID_EPS)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startTelemetryActor(ctx actor.Context) (*actor.PID, error) {

	telemetryProps := actor.PropsFromProducer(func() actor.Actor {
		return NewTelemetryActor(&state.config, state.epsActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(restartSupervisor()))
	return ctx.SpawnNamed(telemetryProps, domain.ACTOR_ID_TELEMETRY)
}

func (state *MasterOfPuppetsActor) startPowerManagerActor(ctx actor.Context) (*actor.PID, error) {

	pmProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPowerManagerActor(&state.config, state.epsActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(restartSupervisor()))
	return ctx.SpawnNamed(pmProps, domain.ACTOR_ID_POWER_MANAGER)
}

func (state *MasterOfPuppetsActor) startRecorderActor(ctx actor.Context) (*actor.PID, error) {

	recorderProps := actor.PropsFromProducer(func() actor.Actor {
		return state.recorderActorProvider(state.eventStream)
	}, actor.WithSupervisor(restartSupervisor()))
	return ctx.SpawnNamed(recorderProps, domain.ACTOR_ID_RECORDER)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.epsActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(restartSupervisor()))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func restartSupervisor() actor.SupervisorStrategy {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	return actor.NewOneForOneStrategy(1, 10*time.Second, decider)
}

func (state *healthCheckResult) reset(expected []string) {
	state.expected = expected
	state.healthy = map[string]bool{}
	state.received = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.received >= len(state.expected)
}

func (state *healthCheckResult) unhealthy() []string {
	var out []string
	for _, id := range state.expected {
		if !state.healthy[id] {
			out = append(out, id)
		}
	}
	return out
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	unhealthy := state.unhealthy()
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: len(unhealthy) == 0,
	}
	if len(unhealthy) > 0 {
		resp.State = "unhealthy: " + strings.Join(unhealthy, ",")
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
