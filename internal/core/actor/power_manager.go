package actor

import (
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

const (
	POWER_MANAGER_EPS_TIMEOUT = 3 * time.Second
)

// PowerManagerActor runs the load-shedding pass on a fixed period and applies operator commands.
type PowerManagerActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	stash       *Stash
	epsActor    *actor.PID
	config      *config.Config
	eventStream *eventstream.EventStream
	interval    time.Duration
	autoShed    bool
	lastState   domain.PowerState
	lastReport  *domain.ShedReport

	logger *zap.Logger
}

type loadSheddingTick struct {
}

func NewPowerManagerActor(config *config.Config, epsActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *PowerManagerActor {
	act := &PowerManagerActor{
		config:      config,
		epsActor:    epsActor,
		stash:       &Stash{},
		eventStream: eventStream,
		interval:    time.Duration(config.LoadShedding.IntervalMillis) * time.Millisecond,
		autoShed:    true,
		logger:      ActorLogger(domain.ACTOR_ID_POWER_MANAGER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PMStartingState{
		actor: act,
	})
	return act
}

func (state *PowerManagerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type PMStartingState struct {
	ActorState
	actor *PowerManagerActor
}

func (state PMStartingState) Name() string {
	return "starting"
}

func (state PMStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("power_manager@starting started")

		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)

		if state.actor.config.LoadShedding.ActivateOnBoot {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.epsActor, domain.ActivateRequest{}, POWER_MANAGER_EPS_TIMEOUT), func(err error) any {
				return domain.PowerTransitionResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				}
			})
			state.actor.Become(PMBootingState{
				actor: state.actor,
			})
			return
		}
		state.actor.Become(PMIdleState{
			actor: state.actor,
		}.OnEnter(ctx))
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.stashMessage(ctx, msg)
	}
}

// Booting state, waits for the activation on boot

type PMBootingState struct {
	ActorState
	actor *PowerManagerActor
}

func (state PMBootingState) Name() string {
	return "booting"
}

func (state PMBootingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PowerTransitionResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("power_manager@booting: activation failed", zap.Error(msg.GetResponseError()))
		} else {
			state.actor.logger.Info(fmt.Sprintf("power_manager@booting: activated, %s -> %s", msg.From, msg.To))
			state.actor.lastState = msg.To
		}
		state.actor.Become(PMIdleState{
			actor: state.actor,
		}.OnEnter(ctx))
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.stashMessage(ctx, msg)
	}
}

// Idle state, between shedding passes

type PMIdleState struct {
	ActorState
	actor *PowerManagerActor
}

func (state PMIdleState) Name() string {
	if state.actor.autoShed {
		return "running"
	}
	return "paused"
}

func (state PMIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("power_manager@idle: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POWER_MANAGER,
			Healthy: true,
			State:   state.Name(),
		})
	case loadSheddingTick:
		state.actor.scheduleTick(ctx)
		if !state.actor.autoShed {
			state.actor.logger.Debug("power_manager@idle: tick skipped, auto shed disabled")
			return
		}
		state.actor.logger.Debug("power_manager@idle: tick")
		state.actor.BecomeStacked(PMAwaitEvaluationState{
			actor: state.actor,
		}.OnEnterAction(ctx))
	case domain.PowerCommandRequest:
		state.handleCommand(ctx, msg)
	case domain.PowerTransitionResponse, domain.ExecuteCommandResponse, domain.EvaluateLoadSheddingResponse:
		// late answer of a request that already timed out
		state.actor.logger.Warn("power_manager@idle: late response", zap.String("type", fmt.Sprintf("%T", msg)))
	default:
		state.actor.logger.Debug("power_manager@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state PMIdleState) OnEnter(ctx actor.Context) PMIdleState {
	state.actor.eventStream.Publish(events.AutoShedSwitchUpdateEvent(state.actor.autoShed))
	if state.actor.lastState != domain.PowerStateInvalid {
		state.actor.eventStream.Publish(events.PowerStateUpdateEvent(state.actor.lastState))
	}
	state.actor.scheduleTick(ctx)
	return state
}

func (state PMIdleState) handleCommand(ctx actor.Context, cmd domain.PowerCommandRequest) {
	replyTo := ForRequest(cmd).ReplyTo(ctx)
	switch c := cmd.(type) {
	case domain.PowerActivateCommand:
		state.actor.logger.Info("power_manager@idle: cmd activate")
		state.actor.BecomeStacked(PMAwaitCommandState{
			actor:   state.actor,
			replyTo: replyTo,
		}.OnEnterAction(ctx, domain.ActivateRequest{}))
	case domain.PowerShutdownCommand:
		state.actor.logger.Info("power_manager@idle: cmd shutdown")
		state.actor.BecomeStacked(PMAwaitCommandState{
			actor:   state.actor,
			replyTo: replyTo,
		}.OnEnterAction(ctx, domain.ShutdownRequest{}))
	case domain.PowerSwitchCommand:
		state.actor.logger.Sugar().Infof("power_manager@idle: cmd switch %s %t", c.Switch, c.On)
		channel, err := c.Switch.Command(c.On)
		if err != nil {
			state.actor.respond(ctx, replyTo, err)
			return
		}
		state.actor.BecomeStacked(PMAwaitCommandState{
			actor:   state.actor,
			replyTo: replyTo,
		}.OnEnterAction(ctx, domain.ExecuteCommandRequest{Channel: channel}))
	case domain.PowerAutoShedCommand:
		state.actor.logger.Sugar().Infof("power_manager@idle: cmd auto shed %t", c.Enable)
		state.actor.autoShed = c.Enable
		state.actor.eventStream.Publish(events.AutoShedSwitchUpdateEvent(c.Enable))
		state.actor.respond(ctx, replyTo, nil)
	default:
		state.actor.respond(ctx, replyTo, fmt.Errorf("unsupported power command %T", cmd))
	}
}

// Awaiting the result of one shedding pass

type PMAwaitEvaluationState struct {
	ActorState
	actor *PowerManagerActor
}

func (state PMAwaitEvaluationState) Name() string {
	return "shedding"
}

func (state PMAwaitEvaluationState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.EvaluateLoadSheddingResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("power_manager@shedding: pass failed", zap.Error(msg.GetResponseError()))
		} else {
			state.actor.logger.Debug("power_manager@shedding: pass done",
				zap.String("report", msg.Report.Id), zap.Int("cutoff", msg.Report.Cutoff))
		}
		// a failed pass still reports the commands written before the failure
		if msg.Report.Id != "" {
			report := msg.Report
			state.actor.lastReport = &report
			state.actor.lastState = report.State
			for _, ev := range events.ShedReportToUpdateEvents(report) {
				state.actor.eventStream.Publish(ev)
			}
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.stashMessage(ctx, msg)
	}
}

func (state PMAwaitEvaluationState) OnEnterAction(ctx actor.Context) PMAwaitEvaluationState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.epsActor, domain.EvaluateLoadSheddingRequest{}, POWER_MANAGER_EPS_TIMEOUT),
		func(err error) any {
			return domain.EvaluateLoadSheddingResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	return state
}

// Awaiting the result of an operator command

type PMAwaitCommandState struct {
	ActorState
	actor   *PowerManagerActor
	replyTo *actor.PID
}

func (state PMAwaitCommandState) Name() string {
	return "commanding"
}

func (state PMAwaitCommandState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PowerTransitionResponse:
		if !msg.HasResponseError() {
			state.actor.lastState = msg.To
		}
		state.done(ctx, msg.GetResponseError())
	case domain.ExecuteCommandResponse:
		state.done(ctx, msg.GetResponseError())
	default:
		state.actor.stashMessage(ctx, msg)
	}
}

func (state PMAwaitCommandState) done(ctx actor.Context, err error) {
	if err != nil {
		state.actor.logger.Error("power_manager@commanding: command failed", zap.Error(err))
	}
	state.actor.respond(ctx, state.replyTo, err)
	state.actor.UnbecomeStacked()
	state.actor.stash.UnstashAll(ctx)
}

func (state PMAwaitCommandState) OnEnterAction(ctx actor.Context, req any) PMAwaitCommandState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.epsActor, req, POWER_MANAGER_EPS_TIMEOUT),
		func(err error) any {
			switch req.(type) {
			case domain.ExecuteCommandRequest:
				return domain.ExecuteCommandResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				}
			default:
				return domain.PowerTransitionResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				}
			}
		})
	return state
}

// Other actor function helpers

func (state *PowerManagerActor) scheduleTick(ctx actor.Context) {
	if state.interval > 0 {
		state.scheduler.RequestOnce(state.interval, ctx.Self(), loadSheddingTick{})
	}
}

func (state *PowerManagerActor) stashMessage(ctx actor.Context, msg any) {
	state.stash.Stash(ctx, msg)
	state.logger.Debug(fmt.Sprintf("power_manager@%s: stash", state.StateName()),
		zap.String("type", fmt.Sprintf("%T", msg)), zap.Int("stashed", state.stash.Len()))
}

func (state *PowerManagerActor) respond(ctx actor.Context, replyTo *actor.PID, err error) {
	if replyTo == nil {
		return
	}
	ctx.Send(replyTo, domain.PowerCommandResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: err,
		},
		State: state.lastState,
	})
}
