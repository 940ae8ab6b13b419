package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"http-bridge-go/internal/client"
	"http-bridge-go/internal/config"
	"http-bridge-go/internal/model"
	"http-bridge-go/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:         baseURL,
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
}

func newTestProxyHandler(t *testing.T, cfg *config.Config) *ProxyHandler {
	t.Helper()
	logger := testLogger()
	uc := client.NewUpstreamClient(cfg, logger, nil)
	svc, err := service.NewBridgeService(uc, cfg, logger, nil)
	if err != nil {
		t.Fatalf("NewBridgeService: %v", err)
	}
	return NewProxyHandler(svc, logger)
}

func TestProxyHandler_Handle_RewritesToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x" || r.URL.RawQuery != "q=1" {
			t.Errorf("upstream URL = %s, want /x?q=1", r.URL)
		}
		if r.Host != "127.0.0.1" {
			t.Errorf("Host = %q, want %q", r.Host, "127.0.0.1")
		}
		if got := r.Header.Get("Accept"); got != "*/*" {
			t.Errorf("Accept = %q, want %q", got, "*/*")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"a":1}` {
			t.Errorf("body = %q, want %q", body, `{"a":1}`)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("X-Trace", "one")
		w.Header().Add("X-Trace", "two")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer upstream.Close()

	h := newTestProxyHandler(t, testConfig(upstream.URL))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/x?q=1", strings.NewReader(`{"a":1}`))
	req.Header.Set("Accept", "*/*")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if got := rec.Header().Values("X-Trace"); len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("X-Trace = %v, want [one two]", got)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["result"] != "ok" {
		t.Errorf("body.result = %q, want %q", body["result"], "ok")
	}
}

func TestProxyHandler_Handle_ProxyFormSameDestination(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("direct"))
	}))
	defer upstream.Close()

	h := newTestProxyHandler(t, testConfig(""))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, upstream.URL+"/page", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "direct" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "direct")
	}
}

func TestProxyHandler_Handle_UpstreamNotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Not Found"))
	}))
	defer upstream.Close()

	h := newTestProxyHandler(t, testConfig(upstream.URL))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/missing", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestProxyHandler_Handle_TransportFailure(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	h := newTestProxyHandler(t, testConfig(addr))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected a diagnostic body for transport failure")
	}
}

func TestProxyHandler_Handle_InvalidHeader(t *testing.T) {
	h := newTestProxyHandler(t, testConfig("http://127.0.0.1:1"))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	req.Header["X-Bad"] = []string{"line\nbreak"}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(body["error"], "header") {
		t.Errorf("error = %q, want mention of header", body["error"])
	}
}

func TestProxyHandler_Handle_CallerCanceled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	h := newTestProxyHandler(t, testConfig(upstream.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Code != statusClientClosedRequest {
		t.Errorf("status = %d, want %d", rec.Code, statusClientClosedRequest)
	}
}

func TestInboundURL(t *testing.T) {
	tests := []struct {
		name   string
		target string
		host   string
		want   string
	}{
		{"origin form", "/x?q=1", "a.example", "http://a.example/x?q=1"},
		{"origin form with port", "/x", "a.example:8080", "http://a.example:8080/x"},
		{"proxy form", "http://b.example/y?z=2", "b.example", "http://b.example/y?z=2"},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			req.Host = tt.host
			c := e.NewContext(req, httptest.NewRecorder())

			if got := inboundURL(c).String(); got != tt.want {
				t.Errorf("inboundURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInboundHeader_IncludesHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	req.Host = "a.example"
	req.Header.Set("Accept", "*/*")

	got := inboundHeader(req)
	if got.Get("Host") != "a.example" {
		t.Errorf("Host = %q, want %q", got.Get("Host"), "a.example")
	}
	if got.Get("Accept") != "*/*" {
		t.Errorf("Accept = %q, want %q", got.Get("Accept"), "*/*")
	}
	if req.Header.Get("Host") != "" {
		t.Error("inboundHeader must not modify the request's header map")
	}
}

func TestProxyHandler_Handle_UpstreamHeadersReplaceBridgeDefaults(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	h := newTestProxyHandler(t, testConfig(upstream.URL))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Response().Header().Set("X-Frame-Options", "DENY")
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if got := rec.Header().Values("X-Frame-Options"); len(got) != 1 || got[0] != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %v, want [SAMEORIGIN]", got)
	}
	if got := rec.Header().Values("X-Content-Type-Options"); len(got) != 1 || got[0] != "nosniff" {
		t.Errorf("X-Content-Type-Options = %v, want [nosniff]", got)
	}
}

func TestWriteResponse_ReplacesNonCanonicalDuplicates(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody), rec)
	c.Response().Header().Set("X-Frame-Options", "DENY")

	resp := &model.InboundResponse{
		StatusCode: http.StatusOK,
		Header:     http.Header{"x-frame-options": {"SAMEORIGIN"}},
	}
	if err := writeResponse(c, resp); err != nil {
		t.Fatalf("writeResponse() error = %v", err)
	}

	if _, ok := rec.Header()["X-Frame-Options"]; ok {
		t.Error("bridge default X-Frame-Options should be replaced by the upstream value")
	}
	if got := rec.Header()["x-frame-options"]; len(got) != 1 || got[0] != "SAMEORIGIN" {
		t.Errorf("x-frame-options = %v, want [SAMEORIGIN]", got)
	}
}
