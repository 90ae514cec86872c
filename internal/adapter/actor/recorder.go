package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/eps2mqtt/internal/adapter/store"
	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const RECORDER_QUERY_TIMEOUT = 2 * time.Second

// RecorderActor archives every sensor update published on the event stream.
type RecorderActor struct {
	behavior       actor.Behavior
	store          *store.TelemetryStore
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	now            func() time.Time
	logger         *zap.Logger
}

func NewRecorderActor(telemetryStore *store.TelemetryStore, eventStream *eventstream.EventStream, logger *zap.Logger) *RecorderActor {
	act := &RecorderActor{
		behavior:    actor.NewBehavior(),
		store:       telemetryStore,
		eventStream: eventStream,
		now:         time.Now,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_RECORDER, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *RecorderActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *RecorderActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("recorder@default started")
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if _, ok := value.(domain.SensorUpdateEvent); ok {
				ctx.Send(ctx.Self(), onEventStreamMessage{message: value})
			}
		})
	case *actor.Stopping, *actor.Restarting:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_RECORDER,
			Healthy: true,
			State:   "idle",
		})
	case onEventStreamMessage:
		reading, ok := state.event2Reading(msg.message)
		if !ok {
			return
		}
		c, cancel := context.WithTimeout(context.Background(), RECORDER_QUERY_TIMEOUT)
		defer cancel()
		if err := state.store.Record(c, reading); err != nil {
			state.logger.Error("recorder@default record failed", zap.String("sensor", reading.SensorId), zap.Error(err))
		}
	case domain.GetSensorHistoryRequest:
		state.logger.Debug("recorder@default GetSensorHistoryRequest", zap.String("sensor", msg.SensorId), zap.Int("limit", msg.Limit))
		c, cancel := context.WithTimeout(context.Background(), RECORDER_QUERY_TIMEOUT)
		defer cancel()
		readings, err := state.store.History(c, msg.SensorId, msg.Limit)
		resp := domain.GetSensorHistoryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
		for _, r := range readings {
			resp.Readings = append(resp.Readings, domain.SensorReading(r))
		}
		actorutil.ForRequest(msg).Respond(ctx, resp)
	default:
		state.logger.Debug("recorder@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *RecorderActor) event2Reading(event any) (store.Reading, bool) {
	r := store.Reading{Timestamp: state.now()}
	switch ev := event.(type) {
	case domain.FloatSensorUpdateEvent:
		v := ev.Value
		r.SensorId, r.Value = ev.Id, &v
	case domain.BinarySensorUpdateEvent:
		r.SensorId, r.Value = ev.Id, boolValue(ev.Value)
	case domain.SwitchSensorUpdateEvent:
		r.SensorId, r.Value = ev.Id, boolValue(ev.Value)
	case domain.TextSensorUpdateEvent:
		r.SensorId, r.Text = ev.Id, ev.Value
	default:
		return r, false
	}
	return r, true
}

func boolValue(b bool) *float64 {
	v := 0.0
	if b {
		v = 1
	}
	return &v
}
