// Package client provides the pooled HTTP client for upstream servers.
package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"route-proxy-go/internal/config"
	"route-proxy-go/internal/metrics"
	"route-proxy-go/internal/model"
)

// ErrUpstreamBody marks a failure to read the upstream response body after a
// successful status line. The proxy answers 503 with an empty body in that
// case, never a truncated payload.
var ErrUpstreamBody = errors.New("read upstream response body")

// UpstreamClient sends requests to upstream servers. A single pooled client
// is shared by all routes.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do forwards one request and returns the upstream response with its body
// fully buffered. pr supplies the request context (cancelling it abandons the
// in-flight upstream call), the Host header value, and the buffered body;
// url, header, and method describe the outbound request itself.
//
// A transport-level failure (DNS, connect, TLS, timeout) is returned as-is;
// there is no retry. A body read failure after response headers were received
// is returned wrapped in ErrUpstreamBody.
func (c *UpstreamClient) Do(pr *model.ProxyRequest, url string, header http.Header) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, url, bytes.NewReader(pr.Body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header
	// net/http ignores a Host entry in the header map; the field carries it.
	req.Host = pr.Host

	c.logger.Debug("upstream request",
		"method", pr.Method,
		"url", url,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(pr.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamBody, err)
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
