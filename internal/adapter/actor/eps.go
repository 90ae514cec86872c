package actor

import (
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/events"
	"github.com/berfenger/eps2mqtt/internal/core/service"
	"github.com/berfenger/eps2mqtt/internal/util/actorutil"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const DEFAULT_BUS_JOB_TIMEOUT = 2 * time.Second

type EPSActorOptions struct {
	Controller service.PowerControllerOptions
	Groups     []domain.LoadGroup
	Thresholds service.Thresholds
	JobTimeout time.Duration
}

// EPSActor owns the power controller of one board. Every message that touches the
// controller runs as a single bus job; other messages are stashed until it completes.
type EPSActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	board       *eps_i2c.Board
	controller  *service.DefaultPowerController
	policy      *service.DefaultLoadSheddingPolicy
	telemetry   *service.DefaultTelemetryReader
	eventStream *eventstream.EventStream
	jobTimeout  time.Duration
	// held for the whole duration of a bus job, including jobs that outlived their timeout
	busMu  sync.Mutex
	logger *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewEPSActor(board *eps_i2c.Board, opts EPSActorOptions, eventStream *eventstream.EventStream, logger *zap.Logger) (*EPSActor, error) {
	act := &EPSActor{
		board:       board,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		jobTimeout:  opts.JobTimeout,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_EPS, logger),
	}
	if act.jobTimeout <= 0 {
		act.jobTimeout = DEFAULT_BUS_JOB_TIMEOUT
	}
	ctrlOpts := opts.Controller
	ctrlOpts.OnTransition = act.publishTransition
	act.controller = service.NewPowerController(board, ctrlOpts, act.logger)
	policy, err := service.NewLoadSheddingPolicy(act.controller, opts.Groups, opts.Thresholds, act.logger)
	if err != nil {
		return nil, err
	}
	act.policy = policy
	act.telemetry = &service.DefaultTelemetryReader{Controller: act.controller}
	act.behavior.Become(act.StartingReceive)
	return act, nil
}

func (state *EPSActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *EPSActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("eps@starting started", zap.Uint16("address", state.board.Address()))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("eps@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *EPSActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("eps@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_EPS,
			Healthy: true,
			State:   "idle",
		})
	case domain.ReadMeasurementRequest:
		state.logger.Debug("eps@default: ReadMeasurementRequest", zap.Stringer("channel", msg.Channel))
		submitBusJob(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), func() (*domain.ReadMeasurementResponse, error) {
			v, err := state.controller.Read(msg.Channel)
			return &domain.ReadMeasurementResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				Channel:            msg.Channel,
				Value:              v,
			}, nil
		}, func(err error) domain.ReadMeasurementResponse {
			return domain.ReadMeasurementResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}, Channel: msg.Channel}
		})
	case domain.ExecuteCommandRequest:
		state.logger.Debug("eps@default: ExecuteCommandRequest", zap.Stringer("channel", msg.Channel))
		submitBusJob(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), func() (*domain.ExecuteCommandResponse, error) {
			err := state.controller.Execute(msg.Channel)
			if err == nil {
				if ev, ok := events.SwitchCommandUpdateEvent(msg.Channel); ok {
					state.eventStream.Publish(ev)
				}
			}
			return &domain.ExecuteCommandResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}, nil
		}, func(err error) domain.ExecuteCommandResponse {
			return domain.ExecuteCommandResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
		})
	case domain.EvaluateLoadSheddingRequest:
		state.logger.Debug("eps@default: EvaluateLoadSheddingRequest")
		submitBusJob(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), func() (*domain.EvaluateLoadSheddingResponse, error) {
			report, err := state.policy.Evaluate()
			if err != nil {
				state.logger.Error("eps@job: load shedding aborted", zap.String("report", report.Id), zap.Error(err))
			} else {
				state.eventStream.Publish(domain.LoadSheddingEvent{Report: report})
			}
			return &domain.EvaluateLoadSheddingResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				Report:             report,
			}, nil
		}, func(err error) domain.EvaluateLoadSheddingResponse {
			return domain.EvaluateLoadSheddingResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
		})
	case domain.ShutdownRequest:
		state.logger.Info("eps@default: ShutdownRequest")
		submitBusJob(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), func() (*domain.PowerTransitionResponse, error) {
			from := state.controller.State()
			return &domain.PowerTransitionResponse{From: from, To: state.controller.Shutdown()}, nil
		}, transitionError)
	case domain.ActivateRequest:
		state.logger.Info("eps@default: ActivateRequest")
		submitBusJob(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), func() (*domain.PowerTransitionResponse, error) {
			from := state.controller.State()
			return &domain.PowerTransitionResponse{From: from, To: state.controller.Activate()}, nil
		}, transitionError)
	case domain.GetPowerStateRequest:
		state.logger.Debug("eps@default: GetPowerStateRequest")
		submitBusJob(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), func() (*domain.GetPowerStateResponse, error) {
			return &domain.GetPowerStateResponse{
				State:   state.controller.State(),
				History: state.controller.History(msg.Lookback),
			}, nil
		}, func(err error) domain.GetPowerStateResponse {
			return domain.GetPowerStateResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
		})
	case domain.GetBatteryTelemetryRequest:
		state.logger.Debug("eps@default: GetBatteryTelemetryRequest")
		submitBusJob(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), func() (*domain.GetBatteryTelemetryResponse, error) {
			bt, err := state.telemetry.ReadBattery()
			if err != nil {
				return nil, err
			}
			return &domain.GetBatteryTelemetryResponse{Battery: bt}, nil
		}, func(err error) domain.GetBatteryTelemetryResponse {
			return domain.GetBatteryTelemetryResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
		})
	case domain.GetSolarTelemetryRequest:
		state.logger.Debug("eps@default: GetSolarTelemetryRequest")
		submitBusJob(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), func() (*domain.GetSolarTelemetryResponse, error) {
			st, err := state.telemetry.ReadSolar()
			if err != nil {
				return nil, err
			}
			return &domain.GetSolarTelemetryResponse{Solar: st}, nil
		}, func(err error) domain.GetSolarTelemetryResponse {
			return domain.GetSolarTelemetryResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
		})
	case domain.GetBusTelemetryRequest:
		state.logger.Debug("eps@default: GetBusTelemetryRequest")
		submitBusJob(state, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), func() (*domain.GetBusTelemetryResponse, error) {
			bt, err := state.telemetry.ReadBus()
			if err != nil {
				return nil, err
			}
			return &domain.GetBusTelemetryResponse{Bus: bt}, nil
		}, func(err error) domain.GetBusTelemetryResponse {
			return domain.GetBusTelemetryResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
		})
	case *actor.Stopping:
		state.closeBoard()
	default:
		state.logger.Debug("eps@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *EPSActor) WaitingBus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("eps@waitingBus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.closeBoard()
	default:
		state.logger.Debug("eps@waitingBus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *EPSActor) closeBoard() {
	if err := state.board.Close(); err != nil {
		state.logger.Warn("eps: close bus", zap.Error(err))
	}
}

func (state *EPSActor) publishTransition(from, to domain.PowerState) {
	state.eventStream.Publish(domain.PowerTransitionEvent{From: from, To: to})
	state.eventStream.Publish(events.PowerStateUpdateEvent(to))
}

func submitBusJob[T any](state *EPSActor, ctx actor.Context, sender *actor.PID, job func() (*T, error), onError func(error) T) {
	actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, job),
		mapTaskResult[T](sender)).Recover(func(err error) backgroundTaskResult {
		return backgroundTaskResult{
			message: onError(err),
			replyTo: sender,
		}
	}).Exclusive(&state.busMu).WithTimeout(state.jobTimeout).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.WaitingBus)
}

func transitionError(err error) domain.PowerTransitionResponse {
	return domain.PowerTransitionResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
