// Package model defines shared types for the proxy.
package model

import (
	"context"
	"net/http"
)

// ProxyRequest is one inbound request after the transport layer has parsed
// it and the handler has fully buffered its body.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Host     string // host the client requested, as received
	Path     string
	RawQuery string
	Header   http.Header
	ClientIP string // remote address of the connection, empty if unknown
	Scheme   string // "http" or "https", per the listener the request came in on
	Body     []byte
}

// ProxyResponse is an upstream response with its body fully buffered.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
