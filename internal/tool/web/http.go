// Package web implements archon.http.request: a gated outbound HTTP call.
// Success is an HTTP status in [200,300); anything else is a structured
// error carrying the status.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/tool"
)

const (
	defaultTimeout = 30 * time.Second
	maxTimeout     = 300 * time.Second

	// maxBodyBytes caps how much of a response is buffered into the result
	// payload. Responses travel back through JSON; unbounded bodies would
	// blow up the envelope.
	maxBodyBytes = 4 << 20
)

// StatusError reports a non-2xx response with the numeric status intact, so
// in-process callers can branch on it with errors.As instead of parsing the
// message text.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned status %d: %s", e.URL, e.Status, firstLine(e.Body))
}

type handlers struct {
	gate           tool.Gate
	client         *http.Client
	defaultTimeout time.Duration
}

// RegisterAll wires archon.http.request into the registry. client may be
// nil; httpTimeout of zero keeps the default.
func RegisterAll(registry *tool.Registry, gate tool.Gate, client *http.Client, httpTimeout time.Duration) error {
	if client == nil {
		client = &http.Client{}
	}
	if httpTimeout <= 0 {
		httpTimeout = defaultTimeout
	}
	h := &handlers{gate: gate, client: client, defaultTimeout: httpTimeout}

	return registry.Register(tool.Spec{
		Name: "archon.http.request",
		Help: "Issue an HTTP request. Args: url, method (optional, default GET), headers (optional map), " +
			"body (optional string), timeout (optional seconds). Returns status, headers, and body; " +
			"a non-2xx status is an error with the status preserved.",
		Handler: h.request,
	})
}

func (h *handlers) request(ctx context.Context, args map[string]any) (any, error) {
	url, err := tool.String(args, "url")
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("url must be http or https: %q", url)
	}

	method := strings.ToUpper(tool.StringOr(args, "method", http.MethodGet))
	headers := tool.StringMap(args, "headers")
	body := tool.StringOr(args, "body", "")

	timeout := h.defaultTimeout
	if secs := tool.IntOr(args, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}

	if err := h.gate.Decide(ctx, domain.ActionHTTPRequest, url); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("request to %s timed out after %s", url, timeout)
		}
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s failed: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: url, Status: resp.StatusCode, Body: string(data)}
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	return map[string]any{
		"status":  resp.StatusCode,
		"headers": respHeaders,
		"body":    string(data),
	}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
