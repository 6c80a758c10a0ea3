package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcaneos/archon-runtime/internal/tool"
)

func httpTool(t *testing.T) tool.Handler {
	t.Helper()
	r := tool.NewRegistry()
	require.NoError(t, RegisterAll(r, tool.OpenGate{}, nil, 0))
	spec, err := r.Get("archon.http.request")
	require.NoError(t, err)
	return spec.Handler
}

func TestRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("X-Kind", "test")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	run := httpTool(t)
	res, err := run(context.Background(), map[string]any{
		"url":     srv.URL,
		"headers": map[string]any{"Accept": "application/json"},
	})
	require.NoError(t, err)

	payload := res.(map[string]any)
	assert.Equal(t, http.StatusOK, payload["status"])
	assert.Equal(t, `{"ok":true}`, payload["body"])
	assert.Equal(t, "test", payload["headers"].(map[string]string)["X-Kind"])
}

func TestRequestPostBody(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		received = string(data)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	run := httpTool(t)
	res, err := run(context.Background(), map[string]any{
		"url": srv.URL, "method": "post", "body": "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.(map[string]any)["status"])
	assert.Equal(t, "hello", received)
}

func TestRequestNon2xxIsErrorWithStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	run := httpTool(t)
	_, err := run(context.Background(), map[string]any{"url": srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "gone")

	// The numeric status survives as a typed error, not just message text.
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
	assert.Equal(t, srv.URL, statusErr.URL)
	assert.Contains(t, statusErr.Body, "gone")
}

func TestRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	run := httpTool(t)
	start := time.Now()
	_, err := run(context.Background(), map[string]any{"url": srv.URL, "timeout": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRequestRejectsNonHTTPScheme(t *testing.T) {
	run := httpTool(t)
	_, err := run(context.Background(), map[string]any{"url": "file:///etc/passwd"})
	assert.Error(t, err)
}
