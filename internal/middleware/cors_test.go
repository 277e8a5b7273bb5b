package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsConfig(origins ...string) CORSConfig {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = origins
	return cfg
}

func TestCORSAllowedOrigin(t *testing.T) {
	handler := CORS(corsConfig("https://app.example.com"))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Error("Vary: Origin header missing")
	}
}

func TestCORSDisallowedOriginGetsNoHeaders(t *testing.T) {
	handler := CORS(corsConfig("https://app.example.com"))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (browser enforces the block)", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin must not receive CORS headers")
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(corsConfig("https://app.example.com"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Allow-Methods header missing on preflight")
	}
}

func TestCORSPreflightDisallowedOrigin(t *testing.T) {
	handler := CORS(corsConfig("https://app.example.com"))(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCORSSameOriginSkipped(t *testing.T) {
	handler := CORS(corsConfig("https://app.example.com"))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("same-origin request must not receive CORS headers")
	}
}

func TestIsOriginAllowedWildcard(t *testing.T) {
	allowed := []string{"*.example.com"}
	originMap := map[string]bool{}

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://sub.example.com", true},
		{"https://a.b.example.com", true},
		{"HTTPS://SUB.EXAMPLE.COM", true},
		{"https://example.com", false},
		{"https://notexample.com", false},
		{"https://evil.com", false},
	}

	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, originMap, allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
