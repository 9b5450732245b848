package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newCORSRouter(cfg CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware(cfg))
	router.POST("/api/v1/submissions", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.OPTIONS("/api/v1/submissions", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	return router
}

func TestCORSMiddleware(t *testing.T) {
	router := newCORSRouter(CORSConfig{AllowedOrigins: []string{"https://editor.example.com"}, MaxAgeSeconds: 600})

	cases := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantAllowed string
	}{
		{name: "same origin", method: http.MethodPost, wantStatus: http.StatusOK},
		{name: "allowed preflight", method: http.MethodOptions, origin: "https://editor.example.com", wantStatus: http.StatusNoContent, wantAllowed: "https://editor.example.com"},
		{name: "allowed request", method: http.MethodPost, origin: "https://EDITOR.example.com", wantStatus: http.StatusOK, wantAllowed: "https://EDITOR.example.com"},
		{name: "rejected preflight", method: http.MethodOptions, origin: "https://evil.example.com", wantStatus: http.StatusForbidden},
		{name: "unlisted request", method: http.MethodPost, origin: "https://evil.example.com", wantStatus: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/api/v1/submissions", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllowed {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantAllowed)
			}
			if tc.wantAllowed != "" && rec.Header().Get("Access-Control-Max-Age") != "600" {
				t.Fatalf("expected max age header")
			}
		})
	}
}

func TestCORSMiddlewareDisabled(t *testing.T) {
	router := newCORSRouter(CORSConfig{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/submissions", nil)
	req.Header.Set("Origin", "https://editor.example.com")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("disabled middleware should pass through, got %d", rec.Code)
	}
}

func TestCORSWildcard(t *testing.T) {
	router := newCORSRouter(CORSConfig{AllowedOrigins: []string{"*"}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q, want *", got)
	}
}

func TestOriginAllowed(t *testing.T) {
	if OriginAllowed("https://a.example.com", nil) {
		t.Fatalf("empty allow list must reject")
	}
	if !OriginAllowed("https://a.example.com", []string{" https://a.example.com "}) {
		t.Fatalf("trimmed entries should match")
	}
}
