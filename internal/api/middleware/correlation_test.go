package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCorrelationID_GeneratesWhenHeaderAbsent(t *testing.T) {
	var gotFromContext string

	handler := CorrelationID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFromContext = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotFromContext == "" {
		t.Fatal("expected a generated correlation ID in the request context")
	}
	if rec.Header().Get("X-Correlation-ID") != gotFromContext {
		t.Fatal("response header should echo the context correlation ID")
	}
}

func TestCorrelationID_PropagatesIncomingHeader(t *testing.T) {
	var gotFromContext string

	handler := CorrelationID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFromContext = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "caller-supplied-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotFromContext != "caller-supplied-id" {
		t.Fatalf("context correlation ID = %q, want the caller-supplied value", gotFromContext)
	}
	if rec.Header().Get("X-Correlation-ID") != "caller-supplied-id" {
		t.Fatal("response header should echo the caller-supplied value")
	}
}

func TestGetCorrelationID_ReturnsUnknownWithoutMiddleware(t *testing.T) {
	if got := GetCorrelationID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "unknown" {
		t.Fatalf("got %q, want %q", got, "unknown")
	}
}
