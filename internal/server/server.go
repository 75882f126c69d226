// Package server exposes the relay over HTTP with echo.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samvad-hq/thinkup-relay/internal/logger"
	"github.com/samvad-hq/thinkup-relay/internal/render"
	"github.com/samvad-hq/thinkup-relay/internal/routes"
	"github.com/samvad-hq/thinkup-relay/internal/storage"
	"github.com/samvad-hq/thinkup-relay/pkg/thinkup"
)

const defaultCallsLimit = 50

// Relay is what the handlers need from the runtime.
type Relay interface {
	Invoke(ctx context.Context, route routes.Route, positional []string, optional thinkup.Args) (thinkup.Result, error)
	RecentCalls(ctx context.Context, limit int) ([]storage.Entry, error)
	Diagnostics() thinkup.Diagnostics
	BaseURL() string
}

// New builds the echo instance serving every registry route plus the health and
// debug endpoints.
func New(relay Relay, reg *routes.Registry, log logger.Logger) *echo.Echo {
	if log == nil {
		log = logger.NopLogger{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(log))

	h := &handlers{relay: relay, log: log}
	for _, route := range reg.All() {
		e.GET(route.Path, h.call(route))
	}
	e.GET("/healthz", h.health)
	e.GET("/debug/calls", h.calls)
	e.GET("/debug/diagnostics", h.diagnostics)

	return e
}

func requestLogger(log logger.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]any{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
			}
			if v.Error != nil {
				fields["error"] = v.Error.Error()
				log.WarnObj("request failed", "http_request", fields)
				return nil
			}
			log.InfoObj("request served", "http_request", fields)
			return nil
		},
	})
}

type handlers struct {
	relay Relay
	log   logger.Logger
}

// call binds the route's path params positionally and passes the query string
// through as optional arguments. API and HTTP failures still render with 200.
func (h *handlers) call(route routes.Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		positional := make([]string, len(route.Params))
		for i, name := range route.Params {
			positional[i] = pathParam(c, name)
		}

		res, err := h.relay.Invoke(c.Request().Context(), route, positional, queryArgs(c.QueryParams()))
		if err != nil {
			if errors.Is(err, thinkup.ErrTransport) || errors.Is(err, thinkup.ErrDecode) {
				return echo.NewHTTPError(http.StatusBadGateway, err.Error())
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.HTML(http.StatusOK, render.Result(h.relay.BaseURL(), res, callDiagnostics(res, h.relay.Diagnostics())))
	}
}

// callDiagnostics describes this call from its own result. Only the error
// descriptor falls back to the client's, which outlives non-200 responses.
func callDiagnostics(res thinkup.Result, client thinkup.Diagnostics) thinkup.Diagnostics {
	d := thinkup.Diagnostics{
		StatusCode: res.StatusCode,
		Error:      client.Error,
		Args:       res.Args.Clone(),
		URL:        res.URL,
	}
	if res.APIError != nil {
		d.Error = *res.APIError
	}
	return d
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) calls(c echo.Context) error {
	limit := defaultCallsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	entries, err := h.relay.RecentCalls(c.Request().Context(), limit)
	if err != nil {
		h.log.ErrorObj("read call journal failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "call journal unavailable")
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count": len(entries),
		"calls": entries,
	})
}

func (h *handlers) diagnostics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"base_url":    h.relay.BaseURL(),
		"diagnostics": h.relay.Diagnostics(),
	})
}

// pathParam returns a decoded path parameter. echo matches against RawPath when
// the request has one, and only then are the values still escaped.
func pathParam(c echo.Context, name string) string {
	raw := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// queryArgs keeps the first value of each query parameter.
func queryArgs(values url.Values) thinkup.Args {
	if len(values) == 0 {
		return nil
	}
	args := make(thinkup.Args, len(values))
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		args[k] = vs[0]
	}
	return args
}
