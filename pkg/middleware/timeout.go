package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// guardedWriter blocks handler writes once the deadline response has gone
// out, so a slow handler cannot corrupt the wire after the timeout fires.
type guardedWriter struct {
	http.ResponseWriter
	mu       sync.Mutex
	timedOut bool
	written  bool
}

func (gw *guardedWriter) WriteHeader(code int) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.timedOut || gw.written {
		return
	}

	gw.written = true
	gw.ResponseWriter.WriteHeader(code)
}

func (gw *guardedWriter) Write(b []byte) (int, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.timedOut {
		return 0, http.ErrHandlerTimeout
	}

	gw.written = true
	return gw.ResponseWriter.Write(b)
}

// expire answers whether the timeout response should be written. It returns
// false when the handler already produced output.
func (gw *guardedWriter) expire() bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	gw.timedOut = true
	if gw.written {
		return false
	}
	gw.written = true
	return true
}

// RequestTimeout bounds each request by the given duration. The handler runs
// with a deadline on its context; when the deadline passes first, the client
// gets a 504 and any late handler output is discarded.
func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			gw := &guardedWriter{ResponseWriter: w}

			done := make(chan struct{})
			go func() {
				next.ServeHTTP(gw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if gw.expire() {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					_, _ = w.Write([]byte(`{"error":"request timed out"}`))
				}
			}
		})
	}
}
