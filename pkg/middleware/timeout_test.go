package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRequestTimeout_PassesFastHandlerThrough(t *testing.T) {
	handler := RequestTimeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body %q, got %q", "ok", rec.Body.String())
	}
}

func TestRequestTimeout_RespondsGatewayTimeoutAndDiscardsLateWrite(t *testing.T) {
	release := make(chan struct{})
	wrote := make(chan error, 1)
	handler := RequestTimeout(10*time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, err := w.Write([]byte("late"))
		wrote <- err
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status 504, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "request timed out") {
		t.Errorf("expected timeout body, got %q", rec.Body.String())
	}

	close(release)
	if err := <-wrote; err != http.ErrHandlerTimeout {
		t.Errorf("expected ErrHandlerTimeout for a write after the deadline, got %v", err)
	}
	if strings.Contains(rec.Body.String(), "late") {
		t.Errorf("late handler output must not reach the client, got %q", rec.Body.String())
	}
}
