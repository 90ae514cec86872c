package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/eps2mqtt/internal/adapter/actor"
	"github.com/berfenger/eps2mqtt/internal/adapter/store"
	"github.com/berfenger/eps2mqtt/internal/config"
	"github.com/berfenger/eps2mqtt/internal/core/actor"
	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/core/service"
	"github.com/berfenger/eps2mqtt/internal/server"
	"github.com/berfenger/eps2mqtt/internal/util/actorutil"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	logger.Info("eps2mqtt starting", zap.String("version", versioninfo.Short()), zap.String("bus", cfg.Bus.Driver))

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init EPS actor provider
	epsProv, err := epsActorProvider(cfg, logger)
	if err != nil {
		logger.Error("could not open EPS bus", zap.Error(err))
		return
	}

	// init telemetry archive
	recorderProv, telemetryStore, err := recorderActorProvider(cfg, logger)
	if err != nil {
		logger.Error("could not open telemetry store", zap.Error(err))
		return
	}
	if telemetryStore != nil {
		defer telemetryStore.Close()
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, epsProv, mqttActorProvider(cfg, logger), recorderProv, logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => EPS_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("EPS_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("eps")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bus
	switch cfg.Bus.Driver {
	case config.BUS_DRIVER_I2C, config.BUS_DRIVER_MODBUS, config.BUS_DRIVER_TEST:
	default:
		return nil, fmt.Errorf("config param bus.driver should be one of %s, %s, %s",
			config.BUS_DRIVER_I2C, config.BUS_DRIVER_MODBUS, config.BUS_DRIVER_TEST)
	}
	if cfg.EPS.Address == 0 || cfg.EPS.Address > 0x7F {
		return nil, errors.New("config param eps.address should be a 7-bit bus address")
	}
	if cfg.Bus.TimeoutMillis < 10 {
		return nil, errors.New("config param bus.timeout_millis should be >= 10")
	}

	// check power control
	if _, err := service.ParseGatingMode(cfg.EPS.Gating); err != nil {
		return nil, fmt.Errorf("config param eps.gating: %w", err)
	}
	if _, err := domain.ParseHistoryPolicy(cfg.EPS.HistoryPolicy); err != nil {
		return nil, fmt.Errorf("config param eps.history_policy: %w", err)
	}
	if err := thresholdsFromConfig(cfg).Validate(); err != nil {
		return nil, fmt.Errorf("config params load_shedding.threshold1..3: %w", err)
	}
	if cfg.LoadShedding.LowPowerVoltage <= 0 {
		return nil, errors.New("config param load_shedding.low_power_voltage should be > 0")
	}
	if _, err := cfg.LoadShedding.LoadGroups(); err != nil {
		return nil, err
	}

	// check bounds
	if cfg.LoadShedding.IntervalMillis < 200 {
		return nil, errors.New("config param load_shedding.interval_millis should be >= 200")
	}
	if cfg.Telemetry.PollIntervalMillis < 1000 {
		return nil, errors.New("config param telemetry.poll_interval_millis should be >= 1000")
	}

	return &cfg, nil
}

func thresholdsFromConfig(cfg config.Config) service.Thresholds {
	return service.Thresholds{
		T1: cfg.LoadShedding.Threshold1,
		T2: cfg.LoadShedding.Threshold2,
		T3: cfg.LoadShedding.Threshold3,
	}
}

func openGateway(cfg *config.Config) (eps_i2c.Gateway, error) {
	switch cfg.Bus.Driver {
	case config.BUS_DRIVER_I2C:
		return eps_i2c.OpenI2CGateway(cfg.Bus.I2CDevice)
	case config.BUS_DRIVER_MODBUS:
		return eps_i2c.CreateModbusGateway(cfg.Bus.ModbusURL, time.Duration(cfg.Bus.TimeoutMillis)*time.Millisecond)
	default:
		gw := eps_i2c.NewTestGateway()
		gw.SetValue(eps_i2c.Voltage, 3.9)
		gw.SetValue(eps_i2c.BatteryCurrent, 0.25)
		gw.SetValue(eps_i2c.Bus3V3Volts, 3.3)
		gw.SetValue(eps_i2c.Bus5VVolts, 5.0)
		return gw, nil
	}
}

// the gateway outlives EPS actor restarts, only a stop closes it
func epsActorProvider(cfg *config.Config, logger *zap.Logger) (actor.EPSActorProvider, error) {

	gateway, err := openGateway(cfg)
	if err != nil {
		return nil, err
	}

	gating, _ := service.ParseGatingMode(cfg.EPS.Gating)
	historyPolicy, _ := domain.ParseHistoryPolicy(cfg.EPS.HistoryPolicy)
	groups, err := cfg.LoadShedding.LoadGroups()
	if err != nil {
		return nil, err
	}
	opts := adactor.EPSActorOptions{
		Controller: service.PowerControllerOptions{
			Gating:          gating,
			HistoryPolicy:   historyPolicy,
			LowPowerVoltage: cfg.LoadShedding.LowPowerVoltage,
		},
		Groups:     groups,
		Thresholds: thresholdsFromConfig(*cfg),
		JobTimeout: 4 * time.Duration(cfg.Bus.TimeoutMillis) * time.Millisecond,
	}
	board := eps_i2c.NewBoard(gateway, cfg.EPS.Address, traceLogger(logger), nil)

	return func(es *eventstream.EventStream) *adactor.EPSActor {
		act, err := adactor.NewEPSActor(board, opts, es, logger)
		if err != nil {
			// options are validated by initConfig
			panic(err)
		}
		return act
	}, nil
}

func traceLogger(logger *zap.Logger) *zap.Logger {
	if viper.GetString("log_level") != "trace" {
		return nil
	}
	return logger.Named("bus")
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func recorderActorProvider(cfg *config.Config, logger *zap.Logger) (actor.RecorderActorProvider, *store.TelemetryStore, error) {
	if cfg.Store.Path == "" {
		return nil, nil, nil
	}
	telemetryStore, err := store.OpenTelemetryStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	return func(es *eventstream.EventStream) *adactor.RecorderActor {
		return adactor.NewRecorderActor(telemetryStore, es, logger)
	}, telemetryStore, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("eps.address", eps_i2c.DefaultDeviceAddress)
	viper.SetDefault("eps.gating", "canonical")
	viper.SetDefault("eps.history_policy", "truncate")
	viper.SetDefault("bus.driver", config.BUS_DRIVER_TEST)
	viper.SetDefault("bus.i2c_device", "")
	viper.SetDefault("bus.modbus_url", "tcp://localhost:5020")
	viper.SetDefault("bus.timeout_millis", 500)
	viper.SetDefault("load_shedding.interval_millis", 1000)
	viper.SetDefault("load_shedding.low_power_voltage", service.DEFAULT_LOW_POWER_VOLTAGE)
	viper.SetDefault("load_shedding.threshold1", service.DefaultThresholds().T1)
	viper.SetDefault("load_shedding.threshold2", service.DefaultThresholds().T2)
	viper.SetDefault("load_shedding.threshold3", service.DefaultThresholds().T3)
	viper.SetDefault("load_shedding.activate_on_boot", true)
	viper.SetDefault("telemetry.poll_interval_millis", 5000)
	viper.SetDefault("telemetry.solar_every", 3)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "eps")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("store.path", "")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
