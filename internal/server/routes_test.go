package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/eps2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMaster answers the requests the HTTP API sends to the master actor.
func fakeMaster(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: true})
	case domain.GetPowerStateRequest:
		history := []domain.PowerState{domain.PowerStateOn, domain.PowerStateInvalid}
		if msg.Lookback < len(history) {
			history = history[:msg.Lookback]
		}
		ctx.Respond(domain.GetPowerStateResponse{State: domain.PowerStateOnNormal, History: history})
	case domain.PowerShutdownCommand:
		ctx.Respond(domain.PowerCommandResponse{State: domain.PowerStateOff})
	case domain.PowerActivateCommand:
		// misrouted, answered by the wrong actor
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_EPS, Healthy: true})
	case domain.GetSolarTelemetryRequest:
		ctx.Respond(domain.GetBusTelemetryResponse{Bus: &domain.BusTelemetry{}})
	case domain.GetBatteryTelemetryRequest:
		ctx.Respond(domain.GetBatteryTelemetryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrChannelUnavailable},
		})
	case domain.GetBusTelemetryRequest:
		ctx.Respond(domain.GetBusTelemetryResponse{Bus: &domain.BusTelemetry{Bus3V3Volts: 3.3, Bus5VVolts: 5}})
	case domain.GetSensorHistoryRequest:
		ctx.Respond(domain.GetSensorHistoryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrNoArchive},
		})
	}
}

func newTestServer(t *testing.T) http.Handler {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromFunc(fakeMaster))
	s := &Server{
		rootContext:    as.Root,
		masterActor:    pid,
		requestTimeout: 2 * time.Second,
	}
	return s.RegisterRoutes()
}

func doRequest(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := doRequest(newTestServer(t), http.MethodGet, "/healthcheck")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())
}

func TestPowerState(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(h, http.MethodGet, "/api/power")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"on_normal","history":["on","invalid"]}`, rec.Body.String())

	rec = doRequest(h, http.MethodGet, "/api/power?lookback=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"on_normal","history":["on"]}`, rec.Body.String())

	rec = doRequest(h, http.MethodGet, "/api/power?lookback=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPowerShutdown(t *testing.T) {
	rec := doRequest(newTestServer(t), http.MethodPost, "/api/power/shutdown")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"off","history":[]}`, rec.Body.String())
}

func TestTelemetryErrors(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(h, http.MethodGet, "/api/telemetry/battery")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(h, http.MethodGet, "/api/telemetry/bus")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bus3v3_volts":3.3,"bus5v_volts":5}`, rec.Body.String())

	rec = doRequest(h, http.MethodGet, "/api/history/battery_voltage")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnexpectedResponseIsUnavailable(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(h, http.MethodPost, "/api/power/activate")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unexpected actor response")

	rec = doRequest(h, http.MethodGet, "/api/telemetry/solar")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "domain.GetBusTelemetryResponse")
}
