package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/events"
	"github.com/berfenger/eps2mqtt/internal/mqtt"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps an operator command received over MQTT to a power command.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.PowerCommandRequest, error) {
	switch cmd.Command {
	case mqtt.MQTT_COMMAND_BUTTON:
		switch cmd.DeviceId {
		case events.BUTTON_ID_ACTIVATE:
			return domain.PowerActivateCommand{}, nil
		case events.BUTTON_ID_SHUTDOWN:
			return domain.PowerShutdownCommand{}, nil
		}
	case mqtt.MQTT_COMMAND_SWITCH:
		on := cmd.Payload == mqtt.MQTT_PAYLOAD_ON
		if cmd.DeviceId == events.SWITCH_ID_AUTO_SHED {
			return domain.PowerAutoShedCommand{Enable: on}, nil
		}
		s, err := eps_i2c.ParseSwitch(cmd.DeviceId)
		if err != nil {
			return nil, err
		}
		return domain.PowerSwitchCommand{Switch: s, On: on}, nil
	}
	return nil, fmt.Errorf("unsupported command %s/%s", cmd.Command, cmd.DeviceId)
}
