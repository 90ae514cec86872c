package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"go.uber.org/zap/zapcore"
)

const (
	BUS_DRIVER_I2C    = "i2c"
	BUS_DRIVER_MODBUS = "modbus"
	BUS_DRIVER_TEST   = "test"
)

type Config struct {
	LogLevel     zapcore.Level
	EPS          EPSConfig          `mapstructure:"eps"`
	Bus          BusConfig          `mapstructure:"bus"`
	MQTT         MQTTConfig         `mapstructure:"mqtt"`
	LoadShedding LoadSheddingConfig `mapstructure:"load_shedding"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Store        StoreConfig        `mapstructure:"store"`
	Port         uint               `mapstructure:"port"`
	HttpLog      bool               `mapstructure:"http_log"`
}

type EPSConfig struct {
	Address       uint16
	Gating        string
	HistoryPolicy string `mapstructure:"history_policy"`
}

type BusConfig struct {
	Driver        string
	I2CDevice     string `mapstructure:"i2c_device"`
	ModbusURL     string `mapstructure:"modbus_url"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type LoadSheddingConfig struct {
	IntervalMillis  uint32  `mapstructure:"interval_millis"`
	LowPowerVoltage float64 `mapstructure:"low_power_voltage"`
	Threshold1      float64 `mapstructure:"threshold1"`
	Threshold2      float64 `mapstructure:"threshold2"`
	Threshold3      float64 `mapstructure:"threshold3"`
	ActivateOnBoot  bool    `mapstructure:"activate_on_boot"`
	// Buses maps a load group id to the switch that powers it.
	Buses map[string]string `mapstructure:"buses"`
}

type TelemetryConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	SolarEvery         uint32 `mapstructure:"solar_every"`
}

type StoreConfig struct {
	Path string
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// LoadGroups applies the configured bus mapping to the default load groups.
func (c LoadSheddingConfig) LoadGroups() ([]domain.LoadGroup, error) {
	groups := domain.DefaultLoadGroups()
	known := map[string]bool{}
	for i := range groups {
		known[groups[i].Id] = true
		name, ok := c.Buses[groups[i].Id]
		if !ok || name == "" {
			continue
		}
		s, err := eps_i2c.ParseSwitch(name)
		if err != nil {
			return nil, fmt.Errorf("load_shedding.buses.%s: %w", groups[i].Id, err)
		}
		groups[i].Switch = s
	}
	for id := range c.Buses {
		if !known[id] {
			return nil, fmt.Errorf("load_shedding.buses: unknown load group %q", id)
		}
	}
	return groups, nil
}
