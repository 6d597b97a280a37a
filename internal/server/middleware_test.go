package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"emberlive/internal/observability/logging"
)

func TestRequestIDIsEchoedAndStored(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = logging.RequestIDFromContext(r.Context())
	}))

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	request.Header.Set("X-Request-Id", "inbound-id")
	handler.ServeHTTP(recorder, request)

	if seen != "inbound-id" {
		t.Fatalf("inbound request id not propagated, got %q", seen)
	}
	if got := recorder.Header().Get("X-Request-Id"); got != "inbound-id" {
		t.Fatalf("request id not echoed, got %q", got)
	}
}

func TestRequestIDIsGeneratedWhenMissing(t *testing.T) {
	handler := requestIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	if recorder.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := securityHeaders(SecurityConfig{}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	headers := recorder.Header()
	cases := map[string]string{
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	}
	for name, want := range cases {
		if got := headers.Get(name); got != want {
			t.Fatalf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{Limit: 2, Window: time.Minute})
	now := time.Now()
	if !limiter.allow("1.2.3.4", now) || !limiter.allow("1.2.3.4", now) {
		t.Fatal("requests within the limit must pass")
	}
	if limiter.allow("1.2.3.4", now) {
		t.Fatal("third request must be blocked")
	}
	if !limiter.allow("5.6.7.8", now) {
		t.Fatal("other clients are unaffected")
	}
	if !limiter.allow("1.2.3.4", now.Add(2*time.Minute)) {
		t.Fatal("a new window must reset the budget")
	}
}

func TestRateLimiterDisabledWithZeroLimit(t *testing.T) {
	if newRateLimiter(RateLimitConfig{}) != nil {
		t.Fatal("zero limit must disable the limiter")
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{Limit: 1, Window: time.Minute})
	handler := limiter.middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "9.9.9.9:12345"

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("first request: %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d, want 429", recorder.Code)
	}
	if recorder.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}
