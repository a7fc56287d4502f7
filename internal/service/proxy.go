// Package service implements the core proxy pipeline: route resolution,
// path rewriting, header translation, and upstream forwarding.
package service

import (
	"errors"
	"log/slog"

	"route-proxy-go/internal/client"
	"route-proxy-go/internal/model"
	"route-proxy-go/internal/router"
)

// ErrNoRoute is returned when no route in the table matches the request.
var ErrNoRoute = errors.New("no route matches request")

// ProxyService runs one buffered request through the routing pipeline.
type ProxyService struct {
	client   *client.UpstreamClient
	snapshot *router.Snapshot
	logger   *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, snap *router.Snapshot, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client:   c,
		snapshot: snap,
		logger:   logger.With("component", "proxy_service"),
	}
}

// Snapshot returns the routing snapshot the service reads from.
func (s *ProxyService) Snapshot() *router.Snapshot {
	return s.snapshot
}

// Forward resolves the route for pr, rewrites the path, translates the
// headers, and forwards the request. On success the route's configured
// response headers are overlaid onto the upstream response, overriding
// upstream values on collision.
//
// Returns ErrNoRoute when the table has no match, client.ErrUpstreamBody
// (wrapped) when the upstream body could not be read, and the transport
// error otherwise.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	st := s.snapshot.Load()

	route, ok := st.Table.Resolve(pr.Host, pr.Path)
	if !ok {
		return nil, ErrNoRoute
	}

	path := router.Rewrite(pr.Path, route)
	url := buildUpstreamURL(route.Upstream, path, pr.RawQuery)
	header := TranslateHeaders(pr.Header, pr.ClientIP, pr.Scheme, pr.Host)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"host", pr.Host,
		"path", pr.Path,
		"upstream", route.Upstream,
	)

	resp, err := s.client.Do(pr, url, header)
	if err != nil {
		return nil, err
	}

	for k, v := range route.ResponseHeaders {
		resp.Header.Set(k, v)
	}

	return resp, nil
}

// buildUpstreamURL concatenates the route's upstream base with the rewritten
// path, appending the original query string only when non-empty. Prefix
// stripping may leave an empty path; upstreams receive "/" then.
func buildUpstreamURL(upstream, path, rawQuery string) string {
	if path == "" {
		path = "/"
	}
	u := upstream + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}
