package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// Basic Auth Middleware Tests
// =============================================================================

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("metrics data"))
	})
}

func TestBasicAuthMiddleware_AllowsValidCredentials(t *testing.T) {
	wrapped := NewBasicAuthMiddleware("metrics", "admin", "secret123").Handler(okHandler())

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.SetBasicAuth("admin", "secret123")
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "metrics data" {
		t.Errorf("expected body 'metrics data', got %q", rec.Body.String())
	}
}

func TestBasicAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no credentials", func(r *http.Request) {}},
		{"wrong username", func(r *http.Request) { r.SetBasicAuth("root", "secret123") }},
		{"wrong password", func(r *http.Request) { r.SetBasicAuth("admin", "wrong") }},
		{"empty credentials", func(r *http.Request) { r.SetBasicAuth("", "") }},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Basic not-base64!") }},
		{"bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }},
	}

	mw := NewBasicAuthMiddleware("metrics", "admin", "secret123")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()

			mw.Handler(okHandler()).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != `Basic realm="metrics"` {
				t.Errorf("unexpected WWW-Authenticate header %q", got)
			}
		})
	}
}

func TestBasicAuthMiddleware_DisabledWhenNoCredentials(t *testing.T) {
	mw := NewBasicAuthMiddleware("metrics", "", "")
	if mw.Enabled() {
		t.Fatal("expected auth to be disabled")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	mw.Handler(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 when auth disabled, got %d", rec.Code)
	}
}
