// Package httpx builds the instrumented HTTP clients the service uses to talk
// to its collaborators.
package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewClient returns a client that stamps request ids, logs every call and
// propagates trace context.
func NewClient(logger *slog.Logger, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: Chain(http.DefaultTransport, logger),
	}
}

// Chain wraps base as otel(log(request id(base))).
func Chain(base http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	var rt http.RoundTripper = &requestIDTransport{next: base}
	if logger != nil {
		rt = &loggingTransport{next: rt, logger: logger}
	}
	return otelhttp.NewTransport(rt)
}

type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(r)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	attrs := []any{
		"request_id", RequestIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		t.logger.Warn("http call failed", append(attrs, "err", err)...)
		return resp, err
	}
	t.logger.Debug("http call", attrs...)
	return resp, nil
}
