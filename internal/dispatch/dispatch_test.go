package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcaneos/archon-runtime/internal/audit"
	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/tool"
)

func newDispatcher(t *testing.T, build func(r *tool.Registry)) (*Dispatcher, *audit.Trail) {
	t.Helper()
	r := tool.NewRegistry()
	if build != nil {
		build(r)
	}
	trail := audit.NewTrail(100)
	return New(r, trail, nil, zap.NewNop()), trail
}

func okTool(name string, result any) tool.Spec {
	return tool.Spec{
		Name: name,
		Handler: func(context.Context, map[string]any) (any, error) {
			return result, nil
		},
	}
}

func TestDispatchEmptyBatchIsValidationError(t *testing.T) {
	d, trail := newDispatcher(t, nil)

	resp := d.Dispatch(context.Background(), domain.ToolRequest{Summary: "nothing"})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Failure)
	assert.Equal(t, domain.FailureError, resp.Failure.Kind)
	assert.Contains(t, resp.Failure.Message, "no calls")

	// Even validation failures are audited.
	assert.Equal(t, 1, trail.Len())
}

func TestDispatchAllSucceed(t *testing.T) {
	d, _ := newDispatcher(t, func(r *tool.Registry) {
		r.MustRegister(okTool("archon.fs.read", "content-a"))
		r.MustRegister(okTool("archon.exec", "content-b"))
	})

	resp := d.Dispatch(context.Background(), domain.ToolRequest{
		Summary: "two calls",
		Tools:   []domain.ToolCall{{Name: "archon.fs.read"}, {Name: "archon.exec"}},
	})

	require.True(t, resp.Success)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "archon.fs.read", resp.Results[0].Tool)
	assert.Equal(t, "content-a", resp.Results[0].Result)
	assert.Equal(t, "content-b", resp.Results[1].Result)
}

func TestDispatchUnknownToolAbortsAll(t *testing.T) {
	calls := 0
	d, _ := newDispatcher(t, func(r *tool.Registry) {
		r.MustRegister(tool.Spec{Name: "archon.fs.read", Handler: func(context.Context, map[string]any) (any, error) {
			calls++
			return "x", nil
		}})
	})

	resp := d.Dispatch(context.Background(), domain.ToolRequest{
		Summary: "middle call unknown",
		Tools: []domain.ToolCall{
			{Name: "archon.fs.read"},
			{Name: "archon.bogus"},
			{Name: "archon.fs.read"},
		},
	})

	assert.False(t, resp.Success)
	assert.Empty(t, resp.Results, "no partial results on abort")
	require.NotNil(t, resp.Failure)
	assert.Equal(t, domain.FailureError, resp.Failure.Kind)
	assert.Equal(t, "archon.bogus", resp.Failure.Tool)
	assert.Equal(t, 1, calls, "calls after the unknown name must not run")
}

func TestDispatchDenialShortCircuits(t *testing.T) {
	later := filepath.Join(t.TempDir(), "later.txt")
	d, _ := newDispatcher(t, func(r *tool.Registry) {
		r.MustRegister(okTool("archon.fs.read", "ok"))
		r.MustRegister(tool.Spec{Name: "archon.fs.delete", Handler: func(context.Context, map[string]any) (any, error) {
			return nil, &domain.DeniedError{Action: domain.ActionDelete, Resource: "/tmp/x", Reason: "denied by user"}
		}})
		r.MustRegister(tool.Spec{Name: "archon.fs.write", Handler: func(context.Context, map[string]any) (any, error) {
			return nil, os.WriteFile(later, []byte("side effect"), 0o644)
		}})
	})

	resp := d.Dispatch(context.Background(), domain.ToolRequest{
		Summary: "denied mid-batch",
		Tools: []domain.ToolCall{
			{Name: "archon.fs.read"},
			{Name: "archon.fs.delete"},
			{Name: "archon.fs.write"},
		},
	})

	assert.False(t, resp.Success)
	assert.Empty(t, resp.Results)
	require.NotNil(t, resp.Failure)
	assert.Equal(t, domain.FailureDenied, resp.Failure.Kind)
	assert.Equal(t, "archon.fs.delete", resp.Failure.Tool)
	assert.NoFileExists(t, later, "calls after the denial must have zero side effects")
}

func TestDispatchHandlerErrorIsErrorKind(t *testing.T) {
	d, _ := newDispatcher(t, func(r *tool.Registry) {
		r.MustRegister(tool.Spec{Name: "archon.http.request", Handler: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("connection refused")
		}})
	})

	resp := d.Dispatch(context.Background(), domain.ToolRequest{
		Summary: "failing call",
		Tools:   []domain.ToolCall{{Name: "archon.http.request"}},
	})

	require.NotNil(t, resp.Failure)
	assert.Equal(t, domain.FailureError, resp.Failure.Kind)
	assert.Contains(t, resp.Failure.Message, "connection refused")
}

func TestDispatchPanicIsContained(t *testing.T) {
	d, _ := newDispatcher(t, func(r *tool.Registry) {
		r.MustRegister(tool.Spec{Name: "archon.exec", Handler: func(context.Context, map[string]any) (any, error) {
			panic("boom")
		}})
	})

	resp := d.Dispatch(context.Background(), domain.ToolRequest{
		Summary: "panicking handler",
		Tools:   []domain.ToolCall{{Name: "archon.exec"}},
	})

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Failure)
	assert.Equal(t, domain.FailureError, resp.Failure.Kind)
	assert.Contains(t, resp.Failure.Message, "panicked")
}

func TestDispatchAuditsEveryOutcome(t *testing.T) {
	d, trail := newDispatcher(t, func(r *tool.Registry) {
		r.MustRegister(okTool("archon.fs.read", "x"))
	})

	ctx := domain.WithRequester(context.Background(), "agent-7")
	d.Dispatch(ctx, domain.ToolRequest{Summary: "ok", Tools: []domain.ToolCall{{Name: "archon.fs.read"}}})
	d.Dispatch(ctx, domain.ToolRequest{Summary: "bad", Tools: []domain.ToolCall{{Name: "archon.bogus"}}})

	entries := trail.Snapshot()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Response.Success)
	assert.False(t, entries[1].Response.Success)
	assert.Equal(t, "agent-7", entries[0].Requester)
	assert.NotEmpty(t, entries[0].TraceID)
}

func TestDispatchAuditRingHonorsCapacityFIFO(t *testing.T) {
	r := tool.NewRegistry()
	r.MustRegister(okTool("archon.fs.read", "x"))
	trail := audit.NewTrail(5)
	d := New(r, trail, nil, zap.NewNop())

	for i := 0; i < 6; i++ {
		d.Dispatch(context.Background(), domain.ToolRequest{
			Summary: fmt.Sprintf("dispatch-%d", i),
			Tools:   []domain.ToolCall{{Name: "archon.fs.read"}},
		})
	}

	entries := trail.Snapshot()
	require.Len(t, entries, 5)
	assert.Equal(t, "dispatch-1", entries[0].Request.Summary, "oldest entry evicted first")
	assert.Equal(t, "dispatch-5", entries[4].Request.Summary)
}
