package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"route-proxy-go/internal/config"
	"route-proxy-go/internal/model"
)

func newTestClient() *UpstreamClient {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{TimeoutSeconds: 10, IdleConnections: 10},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUpstreamClient(cfg, logger, nil)
}

func TestDo_BuffersResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host != "a.com" {
			t.Errorf("upstream Host = %q, want %q", r.Host, "a.com")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "hello" {
			t.Errorf("upstream body = %q, want %q", body, "hello")
		}
		w.Header().Set("X-Test", "1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("response-bytes"))
	}))
	defer upstream.Close()

	c := newTestClient()
	pr := &model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodPost,
		Host:   "a.com",
		Body:   []byte("hello"),
	}

	resp, err := c.Do(pr, upstream.URL+"/x", http.Header{})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if resp.Header.Get("X-Test") != "1" {
		t.Errorf("X-Test = %q, want %q", resp.Header.Get("X-Test"), "1")
	}
	if string(resp.Body) != "response-bytes" {
		t.Errorf("body = %q, want %q (fully buffered)", resp.Body, "response-bytes")
	}
}

func TestDo_TransportError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	c := newTestClient()
	pr := &model.ProxyRequest{Ctx: context.Background(), Method: http.MethodGet}

	_, err := c.Do(pr, url, http.Header{})
	if err == nil {
		t.Fatal("Do() error = nil, want a connect failure")
	}
	if errors.Is(err, ErrUpstreamBody) {
		t.Errorf("Do() error = %v, want a transport error, not ErrUpstreamBody", err)
	}
	if err.Error() == "" {
		t.Error("Do() error has no description")
	}
}

func TestDo_ContextCancellationAbandonsCall(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	c := newTestClient()
	pr := &model.ProxyRequest{Ctx: ctx, Method: http.MethodGet}

	_, err := c.Do(pr, upstream.URL, http.Header{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}
