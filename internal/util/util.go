package util

import (
	"github.com/berfenger/eps2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		EPS: config.EPSConfig{
			Address:       0x18,
			Gating:        "canonical",
			HistoryPolicy: "truncate",
		},
		Bus: config.BusConfig{
			Driver:        config.BUS_DRIVER_TEST,
			TimeoutMillis: 500,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "eps",
		},
		LoadShedding: config.LoadSheddingConfig{
			IntervalMillis:  1000,
			LowPowerVoltage: 3.0,
			Threshold1:      3.6,
			Threshold2:      3.3,
			Threshold3:      3.0,
			ActivateOnBoot:  true,
		},
		Telemetry: config.TelemetryConfig{
			PollIntervalMillis: 5000,
			SolarEvery:         3,
		},
		Port: 8080,
	}
}
