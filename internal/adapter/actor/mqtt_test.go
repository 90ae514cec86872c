package actor

import (
	"testing"
	"time"

	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/events"
	"github.com/berfenger/eps2mqtt/internal/util"
	"github.com/berfenger/eps2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)

	es.Publish(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: events.SENSOR_ID_BATTERY_VOLTAGE,
		},
		Value:    3.712,
		Decimals: 2,
	})
	es.Publish(events.PowerStateUpdateEvent(domain.PowerStateOnLowPower))
	es.Publish(domain.SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: "bus5v",
		},
		Value: false,
	})
	// not a sensor update, ignored
	es.Publish(domain.PowerTransitionEvent{From: domain.PowerStateOn, To: domain.PowerStateOff})

	time.Sleep(200 * time.Millisecond)

	result, err = context.RequestFuture(pid, MQTTMessagesRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	messages := result.(MQTTMessagesResponse).Messages

	assert.Equal(t, "3.71", messages["eps/sensor/battery_voltage/state"])
	assert.Equal(t, domain.PowerStateOnLowPower.String(), messages["eps/sensor/power_state/state"])
	assert.Equal(t, "off", messages["eps/switch/bus5v/state"])
	assert.Len(t, messages, 3)

	context.Stop(pid)

	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}

func TestMQTTActorDiscovery(t *testing.T) {
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, nil, logger) }))

	device := events.EPSDevice(cfg.MQTT.BaseTopic, cfg.EPS.Address)
	req := domain.PublishDiscoveryRequest{
		Sensors:  events.BatterySensors(device),
		Switches: events.PowerSwitches(device),
		Buttons:  events.PowerButtons(device),
	}
	result, err := as.Root.RequestFuture(pid, req, 2*time.Second).Result()
	require.NoError(t, err)
	assert.NoError(t, result.(domain.PublishDiscoveryResponse).ResponseError)

	result, err = as.Root.RequestFuture(pid, MQTTMessagesRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	messages := result.(MQTTMessagesResponse).Messages
	assert.Len(t, messages, len(req.Sensors)+len(req.Switches)+len(req.Buttons))
	assert.Contains(t, messages, "homeassistant/button/"+device.Id+"/"+events.BUTTON_ID_SHUTDOWN+"/config")
}
