package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/eps2mqtt/internal/core/events"
	"github.com/berfenger/eps2mqtt/pkg/eps_i2c"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinarySensorDiscoveryPayloads(t *testing.T) {
	c := testClient()
	dev := events.EPSDevice("eps", eps_i2c.DefaultDeviceAddress)
	for _, s := range events.PowerManagerSensors(dev) {
		msg := GenericSensorToHADiscoveryMessage(c, s)
		if s.Id == events.SENSOR_ID_LOAD_SHEDDING_ACTIVE {
			assert.Equal(t, "eps/binary_sensor/load_shedding_active/state", msg.StateTopic)
			assert.Equal(t, MQTT_PAYLOAD_ON, msg.PayloadOn)
		}
	}
}

func TestButtonDiscovery(t *testing.T) {
	c := testClient()
	dev := events.EPSDevice("eps", eps_i2c.DefaultDeviceAddress)
	button := events.PowerButtons(dev)[1]

	assert.Equal(t, "homeassistant/button/"+dev.Id+"/shutdown/config", HADiscoveryButtonTopic(c, button))
	raw, err := json.Marshal(GenericButtonToHADiscoveryMessage(c, button))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "state_topic")
	assert.Contains(t, string(raw), `"command_topic":"eps/button/shutdown/press"`)
}
