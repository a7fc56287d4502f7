package handler

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"

	"route-proxy-go/internal/client"
	"route-proxy-go/internal/metrics"
	"route-proxy-go/internal/model"
	"route-proxy-go/internal/service"
)

// ProxyHandler runs every non-reserved request through the proxy pipeline.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional;
// pass nil to disable route-miss recording.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle buffers the inbound request, forwards it through the routing
// pipeline, and relays the upstream response. Every branch ends in exactly
// one response to the client; per-request failures never escape the handler.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	// A request with no determinable host cannot be routed; it is rejected
	// at the proxy boundary, never forwarded.
	host := req.Host
	if host == "" {
		return h.synthesized(c, http.StatusBadGateway, "")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.logger.Warn("reading request body",
			"err", err,
			"path", req.URL.Path,
		)
		return c.NoContent(http.StatusServiceUnavailable)
	}

	pr := &model.ProxyRequest{
		Ctx:      req.Context(),
		Method:   req.Method,
		Host:     host,
		Path:     req.URL.Path,
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
		ClientIP: clientIP(req),
		Scheme:   scheme(req),
		Body:     body,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	// Upstream headers are added to, not replacing, what middleware already
	// set on the response; an upstream X-Request-Id coexists with the one the
	// RequestID middleware assigned.
	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	_, err = c.Response().Write(resp.Body)
	return err
}

// mapError translates pipeline failures into the statuses clients see:
// 404 when no route matched, 503 when the upstream body could not be read,
// and 502 with the failure text otherwise.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrNoRoute) {
		if h.metrics != nil {
			h.metrics.RouteMisses.Inc()
		}
		h.logger.Debug("no route matched",
			"host", c.Request().Host,
			"path", c.Request().URL.Path,
		)
		return h.synthesized(c, http.StatusNotFound, "")
	}

	h.logger.Error("proxy error",
		"err", err,
		"host", c.Request().Host,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, client.ErrUpstreamBody) {
		return c.NoContent(http.StatusServiceUnavailable)
	}

	return h.synthesized(c, http.StatusBadGateway, err.Error())
}

// synthesized writes a response originating at the proxy itself, tagged with
// the configured Server header so it is distinguishable from upstream output.
func (h *ProxyHandler) synthesized(c echo.Context, status int, body string) error {
	c.Response().Header().Set(echo.HeaderServer, h.service.Snapshot().Load().ErrorServerHeader)
	if body == "" {
		return c.NoContent(status)
	}
	return c.String(status, body)
}

// clientIP returns the connection's remote address without the port, or the
// raw remote address when it has no port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// scheme reports what the proxy itself received the request over, not what
// any earlier hop claims via forwarding headers.
func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
