package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestTelemetryStoreRecordAndHistory(t *testing.T) {
	s, err := OpenTelemetryStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Reading{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			SensorId:  "battery_voltage",
			Value:     floatPtr(3.5 + float64(i)/10),
		}))
	}
	require.NoError(t, s.Record(ctx, Reading{Timestamp: base, SensorId: "power_state", Text: "on_normal"}))

	history, err := s.History(ctx, "battery_voltage", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.InDelta(t, 3.9, *history[0].Value, 1e-9)
	assert.InDelta(t, 3.7, *history[2].Value, 1e-9)
	assert.True(t, history[0].Timestamp.After(history[1].Timestamp))

	latest, err := s.Latest(ctx, "power_state")
	require.NoError(t, err)
	assert.Equal(t, "on_normal", latest.Text)
	assert.Nil(t, latest.Value)

	empty, err := s.History(ctx, "battery_voltage", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTelemetryStoreLatestNotFound(t *testing.T) {
	s, err := OpenTelemetryStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Latest(context.Background(), "bus5v_voltage")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTelemetryStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.sqlite")
	s, err := OpenTelemetryStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), Reading{Timestamp: time.Now(), SensorId: "bus3v3_voltage", Value: floatPtr(3.31)}))
	require.NoError(t, s.Close())

	s, err = OpenTelemetryStore(path)
	require.NoError(t, err)
	defer s.Close()
	latest, err := s.Latest(context.Background(), "bus3v3_voltage")
	require.NoError(t, err)
	assert.InDelta(t, 3.31, *latest.Value, 1e-9)
}
