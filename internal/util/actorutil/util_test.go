package actorutil

import (
	"testing"

	"github.com/berfenger/eps2mqtt/internal/core/domain"
	"github.com/berfenger/eps2mqtt/internal/mqtt"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsedMQTTCommandToCommand(t *testing.T) {
	cmd, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: "heater2", Command: mqtt.MQTT_COMMAND_SWITCH, Payload: mqtt.MQTT_PAYLOAD_ON,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PowerSwitchCommand{Switch: eps_i2c.SwitchHeater2, On: true}, cmd)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: "auto_shed", Command: mqtt.MQTT_COMMAND_SWITCH, Payload: mqtt.MQTT_PAYLOAD_OFF,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PowerAutoShedCommand{Enable: false}, cmd)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "shutdown", Command: mqtt.MQTT_COMMAND_BUTTON})
	require.NoError(t, err)
	assert.Equal(t, domain.PowerShutdownCommand{}, cmd)

	_, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "reboot", Command: mqtt.MQTT_COMMAND_BUTTON})
	assert.Error(t, err)
	_, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "bus12v", Command: mqtt.MQTT_COMMAND_SWITCH})
	assert.ErrorIs(t, err, eps_i2c.ErrUnknownChannel)
}
