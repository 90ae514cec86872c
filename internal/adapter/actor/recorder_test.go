package actor

import (
	"testing"
	"time"

	"github.com/berfenger/eps2mqtt/internal/adapter/store"
	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/events"
	"github.com/berfenger/eps2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecorderActor(t *testing.T) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	s, err := store.OpenTelemetryStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	es := &eventstream.EventStream{}
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewRecorderActor(s, es, logger) }))

	time.Sleep(200 * time.Millisecond)

	for _, ev := range events.BatteryTelemetryToUpdateEvents(&domain.BatteryTelemetry{Voltage: 3.61, Current: 0.2}) {
		es.Publish(ev)
	}
	es.Publish(events.PowerStateUpdateEvent(domain.PowerStateOnNormal))
	es.Publish(events.AutoShedSwitchUpdateEvent(true))
	// not a sensor update
	es.Publish(domain.PowerTransitionEvent{From: domain.PowerStateOn, To: domain.PowerStateOnNormal})

	time.Sleep(200 * time.Millisecond)

	result, err := as.Root.RequestFuture(pid, domain.GetSensorHistoryRequest{SensorId: events.SENSOR_ID_BATTERY_VOLTAGE, Limit: 10}, 2*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetSensorHistoryResponse)
	require.NoError(t, resp.ResponseError)
	require.Len(t, resp.Readings, 1)
	assert.InDelta(t, 3.61, *resp.Readings[0].Value, 1e-9)

	result, err = as.Root.RequestFuture(pid, domain.GetSensorHistoryRequest{SensorId: events.SENSOR_ID_POWER_STATE, Limit: 10}, 2*time.Second).Result()
	require.NoError(t, err)
	resp = result.(domain.GetSensorHistoryResponse)
	require.Len(t, resp.Readings, 1)
	assert.Equal(t, "on_normal", resp.Readings[0].Text)

	result, err = as.Root.RequestFuture(pid, domain.GetSensorHistoryRequest{SensorId: events.SWITCH_ID_AUTO_SHED, Limit: 10}, 2*time.Second).Result()
	require.NoError(t, err)
	resp = result.(domain.GetSensorHistoryResponse)
	require.Len(t, resp.Readings, 1)
	assert.Equal(t, 1.0, *resp.Readings[0].Value)
}
