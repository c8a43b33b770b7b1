package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	policy := NewOriginPolicy([]string{"https://chat.example.com"})

	cases := map[string]bool{
		"http://localhost:5173":    true,
		"http://localhost:8080":    true,
		"http://127.0.0.1:9999":    true,
		"https://chat.example.com": true,
		"https://evil.example":     false,
		"http://localhost.evil.io": false,
		"not a url":                false,
		"":                         false,
	}
	for origin, want := range cases {
		assert.Equal(t, want, policy.Allowed(origin), origin)
	}
}

func TestRateLimitRejectsBeyondLimit(t *testing.T) {
	limited := RateLimit("test", 2, time.Minute, KeyByIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1001").Code)

	rec := do("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate_limited"}`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1000").Code, "other clients have their own bucket")
}

func TestRequestLoggerKeepsStatus(t *testing.T) {
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
