package channel

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"
)

// traceTransport logs every HTTP exchange at debug level with the token
// redacted.
type traceTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
	token  string
}

func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if dump, err := httputil.DumpRequestOut(req, true); err == nil {
		t.logger.Debug("HTTP request", "method", req.Method, "url", req.URL.String(), "content", t.redact(string(dump)))
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Debug("HTTP request failed", "method", req.Method, "url", req.URL.String(), "elapsed", time.Since(start), "err", err)
		return nil, err
	}

	if dump, err := httputil.DumpResponse(resp, true); err == nil {
		t.logger.Debug("HTTP response", "status", resp.StatusCode, "elapsed", time.Since(start), "content", t.redact(string(dump)))
	}
	return resp, nil
}

func (t *traceTransport) redact(s string) string {
	if t.token == "" {
		return s
	}
	return strings.ReplaceAll(s, t.token, "[redacted]")
}
