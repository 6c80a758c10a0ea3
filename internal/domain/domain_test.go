package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRequestValidate(t *testing.T) {
	req := ToolRequest{Summary: "empty"}
	assert.ErrorIs(t, req.Validate(), ErrEmptyBatch)

	req = ToolRequest{Tools: []ToolCall{{Name: "archon.fs.read"}, {Name: ""}}}
	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call 1")

	req = ToolRequest{Tools: []ToolCall{{Name: "archon.fs.read"}}}
	assert.NoError(t, req.Validate())
}

func TestDeniedErrorDetection(t *testing.T) {
	denied := &DeniedError{Action: ActionWrite, Resource: "/tmp/x", Reason: "denied by user"}
	assert.True(t, IsDenied(denied))
	assert.True(t, IsDenied(fmt.Errorf("handler: %w", denied)))
	assert.False(t, IsDenied(errors.New("permission denied by user")), "message text alone is not a denial")
	assert.Contains(t, denied.Error(), "/tmp/x")
}

func TestResponseConstructors(t *testing.T) {
	ok := Succeeded([]ToolResult{{Tool: "archon.fs.read", Result: "x"}})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Failure)

	den := Denied("archon.fs.delete", "permission denied")
	assert.False(t, den.Success)
	assert.Equal(t, FailureDenied, den.Failure.Kind)
	assert.Equal(t, "archon.fs.delete", den.Failure.Tool)

	fail := Failed("archon.exec", "exit code %d", 3)
	assert.Equal(t, FailureError, fail.Failure.Kind)
	assert.Equal(t, "exit code 3", fail.Failure.Message)
}

func TestContextCarriers(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", RequesterFromContext(ctx))
	assert.Empty(t, TraceIDFromContext(ctx))

	ctx = WithRequester(ctx, "agent-1")
	ctx = WithTraceID(ctx, "trace-9")
	assert.Equal(t, "agent-1", RequesterFromContext(ctx))
	assert.Equal(t, "trace-9", TraceIDFromContext(ctx))
}

func TestScopeMatching(t *testing.T) {
	claims := &CustomClaims{Scopes: map[string]bool{"archon.fs.*": true, "archon.exec": true, "archon.db.query": false}}

	assert.True(t, claims.AllowsTool("archon.fs.read"))
	assert.True(t, claims.AllowsTool("archon.exec"))
	assert.False(t, claims.AllowsTool("archon.db.query"), "explicitly false scopes do not grant")
	assert.False(t, claims.AllowsTool("archon.http.request"))

	wildcard := &CustomClaims{Scopes: map[string]bool{"*": true}}
	assert.True(t, wildcard.AllowsTool("anything"))

	empty := &CustomClaims{}
	assert.False(t, empty.AllowsTool("archon.fs.read"))
}
