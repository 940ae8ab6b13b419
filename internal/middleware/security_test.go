package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders_AddsHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/test", func(c echo.Context) error {
		// Written directly, as the proxy handler does.
		c.Response().WriteHeader(http.StatusOK)
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("X-Content-Type-Options"); v != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", v, "nosniff")
	}
	if v := rec.Header().Get("X-Frame-Options"); v != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", v, "DENY")
	}
}

func TestSecurityHeaders_StripsHopByHop(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())

	var got http.Header
	e.GET("/test", func(c echo.Context) error {
		got = c.Request().Header.Clone()
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Connection", "keep-alive, X-Session-Hop")
	req.Header.Set("X-Session-Hop", "1")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Accept", "*/*")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	tests := []struct {
		key     string
		wantLen int
	}{
		{"Connection", 0},
		{"X-Session-Hop", 0},
		{"Proxy-Authorization", 0},
		{"Accept", 1},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if n := len(got.Values(tt.key)); n != tt.wantLen {
				t.Errorf("header %q: got %d values, want %d", tt.key, n, tt.wantLen)
			}
		})
	}
}
