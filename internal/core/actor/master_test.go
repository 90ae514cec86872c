package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/eps2mqtt/internal/adapter/actor"
	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/service"
	"github.com/berfenger/eps2mqtt/internal/util"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEPSActorProvider(gw *eps_i2c.TestGateway, logger *zap.Logger) EPSActorProvider {
	return func(es *eventstream.EventStream) *adactor.EPSActor {
		board := eps_i2c.NewBoard(gw, eps_i2c.DefaultDeviceAddress, nil, nil)
		act, err := adactor.NewEPSActor(board, adactor.EPSActorOptions{
			Controller: service.PowerControllerOptions{Gating: service.GatingCanonical},
			Groups:     domain.DefaultLoadGroups(),
			Thresholds: service.DefaultThresholds(),
		}, es, logger)
		if err != nil {
			panic(err)
		}
		return act
	}
}

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	gw := eps_i2c.NewTestGateway()
	gw.SetValue(eps_i2c.Voltage, 3.9)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, testEPSActorProvider(gw, logger), func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, nil, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, healthResp.Healthy, "healthy is true")

	// activated on boot, then classified by the first shedding pass
	res, err = context.RequestFuture(pid, domain.GetPowerStateRequest{Lookback: 10}, 2*time.Second).Result()
	require.NoError(t, err)
	ps := res.(domain.GetPowerStateResponse)
	assert.Equal(t, domain.PowerStateOnNormal, ps.State)
	assert.Contains(t, ps.History, domain.PowerStateInvalid)

	res, err = context.RequestFuture(pid, domain.GetSensorHistoryRequest{SensorId: "battery_voltage", Limit: 1}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.ErrorIs(t, res.(domain.GetSensorHistoryResponse).ResponseError, domain.ErrNoArchive)

	res, err = context.RequestFuture(pid, domain.PowerShutdownCommand{}, 5*time.Second).Result()
	require.NoError(t, err)
	cmdResp := res.(domain.PowerCommandResponse)
	assert.NoError(t, cmdResp.ResponseError)
	assert.Equal(t, domain.PowerStateOff, cmdResp.State)

	context.Stop(pid)

	as.Shutdown()
}
