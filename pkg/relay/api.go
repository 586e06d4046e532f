package relay

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"sbrw-mp-go/pkg/log"
)

type RelayApi struct {
	Api   *echo.Echo
	Relay *Relay
}

func (rapi *RelayApi) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, rapi.Relay.Snapshot())
}

func (rapi *RelayApi) GetSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, rapi.Relay.Sessions())
}

// GetLogs serves the last n persisted log entries, n defaulting to log.DefaultLimit.
func (rapi *RelayApi) GetLogs(c echo.Context) error {
	n := log.DefaultLimit
	if q := c.QueryParam("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "n must be a positive integer")
		}
		n = v
	}

	entries, err := log.GetLastNLogs(n)
	if errors.Is(err, log.ErrNotInitialized) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "log persistence is disabled")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func NewRelayApi(r *Relay) *RelayApi {
	api := echo.New()
	api.HideBanner = true
	api.HidePort = true
	rapi := &RelayApi{
		Api:   api,
		Relay: r,
	}
	rapi.Api.GET("/stats", rapi.GetStats)
	rapi.Api.GET("/sessions", rapi.GetSessions)
	rapi.Api.GET("/logs", rapi.GetLogs)
	return rapi
}

// Run serves the API on addr until Shutdown is called.
func (rapi *RelayApi) Run(addr string) error {
	log.Info().Str("addr", addr).Msg("management api listening")
	if err := rapi.Api.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (rapi *RelayApi) Shutdown(ctx context.Context) error {
	return rapi.Api.Shutdown(ctx)
}
