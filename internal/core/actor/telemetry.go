package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/eps2mqtt/internal/config"
	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/events"
	. "github.com/berfenger/eps2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

type TelemetryActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	epsActor          *actor.PID
	config            *config.Config
	eventStream       *eventstream.EventStream
	currentSolarCount uint32
	solarEvery        uint32
	pending           int

	logger *zap.Logger
}

type telemetryTick struct {
}

func NewTelemetryActor(config *config.Config, epsActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *TelemetryActor {
	solarEvery := config.Telemetry.SolarEvery
	if solarEvery == 0 {
		solarEvery = 1
	}
	act := &TelemetryActor{
		config:            config,
		epsActor:          epsActor,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		logger:            ActorLogger(domain.ACTOR_ID_TELEMETRY, logger),
		eventStream:       eventStream,
		solarEvery:        solarEvery,
		currentSolarCount: solarEvery,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *TelemetryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *TelemetryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("telemetry@starting started")

		if state.config.Telemetry.PollIntervalMillis > 0 {
			state.scheduler = scheduler.NewTimerScheduler(ctx)
			state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), telemetryTick{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("telemetry@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TelemetryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("telemetry@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TELEMETRY,
			Healthy: true,
			State:   "idle",
		})
	case telemetryTick:
		state.logger.Debug("telemetry@default tick")
		state.pending = 0

		// battery and rails every tick
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.epsActor, domain.GetBatteryTelemetryRequest{}, 2*time.Second), func(err error) any {
			return domain.GetBatteryTelemetryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.epsActor, domain.GetBusTelemetryRequest{}, 2*time.Second), func(err error) any {
			return domain.GetBusTelemetryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.pending += 2

		// solar panels every solarEvery ticks
		if state.currentSolarCount >= state.solarEvery {
			state.currentSolarCount = 1
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.epsActor, domain.GetSolarTelemetryRequest{}, 2*time.Second), func(err error) any {
				return domain.GetSolarTelemetryResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				}
			})
			state.pending++
		} else {
			state.currentSolarCount++
		}

		// schedule next tick
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), telemetryTick{})
		state.behavior.BecomeStacked(state.WaitingTelemetryReceive)
	default:
		state.logger.Debug("telemetry@default: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *TelemetryActor) WaitingTelemetryReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetBatteryTelemetryResponse:
		if msg.HasResponseError() {
			state.logError("telemetry@waiting GetBatteryTelemetryResponse error", msg.GetResponseError())
		} else if msg.Battery != nil {
			state.publish(events.BatteryTelemetryToUpdateEvents(msg.Battery))
		}
		state.received(ctx)
	case domain.GetBusTelemetryResponse:
		if msg.HasResponseError() {
			state.logError("telemetry@waiting GetBusTelemetryResponse error", msg.GetResponseError())
		} else if msg.Bus != nil {
			state.publish(events.BusTelemetryToUpdateEvents(msg.Bus))
		}
		state.received(ctx)
	case domain.GetSolarTelemetryResponse:
		if msg.HasResponseError() {
			state.logError("telemetry@waiting GetSolarTelemetryResponse error", msg.GetResponseError())
		} else if msg.Solar != nil {
			state.publish(events.SolarTelemetryToUpdateEvents(msg.Solar))
		}
		state.received(ctx)
	default:
		state.logger.Debug("telemetry@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TelemetryActor) received(ctx actor.Context) {
	state.pending--
	if state.pending <= 0 {
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	}
}

// gated reads fail while Off
func (state *TelemetryActor) logError(text string, err error) {
	if errors.Is(err, domain.ErrChannelUnavailable) {
		state.logger.Debug(text, zap.Error(err))
		return
	}
	state.logger.Warn(text, zap.Error(err))
}

func (state *TelemetryActor) publish(evs []any) {
	for _, ev := range evs {
		state.eventStream.Publish(ev)
	}
}

func (state *TelemetryActor) pollInterval() time.Duration {
	return time.Duration(state.config.Telemetry.PollIntervalMillis) * time.Millisecond
}
