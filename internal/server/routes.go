package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/berfenger/eps2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	DEFAULT_HISTORY_LIMIT = 20
	MAX_HISTORY_LIMIT     = 1000
)

var errUnexpectedResponse = errors.New("unexpected actor response")

type powerStateView struct {
	State   domain.PowerState   `json:"state"`
	History []domain.PowerState `json:"history"`
}

type errorView struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/power", s.PowerStateHandler)
	api.POST("/power/activate", s.PowerCommandHandler(func() domain.PowerCommandRequest { return domain.PowerActivateCommand{} }))
	api.POST("/power/shutdown", s.PowerCommandHandler(func() domain.PowerCommandRequest { return domain.PowerShutdownCommand{} }))
	api.GET("/telemetry/battery", s.BatteryTelemetryHandler)
	api.GET("/telemetry/solar", s.SolarTelemetryHandler)
	api.GET("/telemetry/bus", s.BusTelemetryHandler)
	api.GET("/history/:sensor", s.SensorHistoryHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, s.requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// PowerStateHandler returns the current power state and up to ?lookback prior states.
func (s *Server) PowerStateHandler(c echo.Context) error {
	lookback, err := intQueryParam(c, "lookback", domain.HistoryCapacity, domain.HistoryCapacity)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorView{Error: err.Error()})
	}
	resp, err := requestAs[domain.GetPowerStateResponse](s, domain.GetPowerStateRequest{Lookback: lookback})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, powerStateView{State: resp.State, History: resp.History})
}

func (s *Server) PowerCommandHandler(command func() domain.PowerCommandRequest) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp, err := requestAs[domain.PowerCommandResponse](s, command())
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(http.StatusOK, powerStateView{State: resp.State, History: []domain.PowerState{}})
	}
}

func (s *Server) BatteryTelemetryHandler(c echo.Context) error {
	resp, err := requestAs[domain.GetBatteryTelemetryResponse](s, domain.GetBatteryTelemetryRequest{})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp.Battery)
}

func (s *Server) SolarTelemetryHandler(c echo.Context) error {
	resp, err := requestAs[domain.GetSolarTelemetryResponse](s, domain.GetSolarTelemetryRequest{})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp.Solar)
}

func (s *Server) BusTelemetryHandler(c echo.Context) error {
	resp, err := requestAs[domain.GetBusTelemetryResponse](s, domain.GetBusTelemetryRequest{})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp.Bus)
}

func (s *Server) SensorHistoryHandler(c echo.Context) error {
	limit, err := intQueryParam(c, "limit", DEFAULT_HISTORY_LIMIT, MAX_HISTORY_LIMIT)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorView{Error: err.Error()})
	}
	resp, err := requestAs[domain.GetSensorHistoryResponse](s, domain.GetSensorHistoryRequest{SensorId: c.Param("sensor"), Limit: limit})
	if err != nil {
		return s.fail(c, err)
	}
	readings := resp.Readings
	if readings == nil {
		readings = []domain.SensorReading{}
	}
	return c.JSON(http.StatusOK, readings)
}

// request asks the master actor and unwraps actor response errors.
func (s *Server) request(msg any) (any, error) {
	res, err := s.rootContext.RequestFuture(s.masterActor, msg, s.requestTimeout).Result()
	if err != nil {
		return nil, err
	}
	if resp, ok := res.(domain.ActorResponse); ok && resp.HasResponseError() {
		return nil, resp.GetResponseError()
	}
	return res, nil
}

func requestAs[T any](s *Server, msg any) (T, error) {
	var zero T
	res, err := s.request(msg)
	if err != nil {
		return zero, err
	}
	resp, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%w %T", errUnexpectedResponse, res)
	}
	return resp, nil
}

func (s *Server) fail(c echo.Context, err error) error {
	status := http.StatusServiceUnavailable
	switch {
	case errors.Is(err, domain.ErrChannelUnavailable):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNoArchive):
		status = http.StatusNotFound
	}
	return c.JSON(status, errorView{Error: err.Error()})
}

func intQueryParam(c echo.Context, name string, def, max int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + name)
	}
	if v > max {
		v = max
	}
	return v, nil
}

