package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	const id = "3f2a9c1e-8b7d-4e6f-9a0b-1c2d3e4f5a6b"

	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/sessions", "/api/sessions"},
		{"/api/sessions/" + id, "/api/sessions/{id}"},
		{"/api/sessions/" + id + "/images/" + id + "/crop", "/api/sessions/{id}/images/{id}/crop"},
		{"/api/sessions/" + id + "/exports/" + id + "/holiday_cropped.png", "/api/sessions/{id}/exports/{id}/{filename}"},
		{"/files/sessions/" + id + "/originals/" + id + ".png", "/files/{key}"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, normalizePath(tc.path), tc.path)
	}
}

func TestMiddleware_PassesThrough(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/aspect-ratios", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
