package domain

import (
	"context"
	"errors"
	"fmt"
)

// ToolCall identifies one requested operation: a registry name plus
// handler-specific arguments. The shape travels as JSON between the agent
// process and the runtime.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolRequest is the batch unit the dispatcher accepts. Calls execute
// strictly in order; a denial or error at call k aborts calls k+1..n without
// rolling back effects already performed by calls 1..k-1.
type ToolRequest struct {
	Summary string     `json:"summary"`
	Tools   []ToolCall `json:"tools"`

	// RequiresPermission is advisory only. Permission is always enforced
	// per handler regardless of what the caller claims here.
	RequiresPermission bool `json:"requires_permission,omitempty"`
}

var ErrEmptyBatch = errors.New("tool request contains no calls")

// Validate rejects requests the dispatcher must not even start on.
func (r *ToolRequest) Validate() error {
	if len(r.Tools) == 0 {
		return ErrEmptyBatch
	}
	for i, call := range r.Tools {
		if call.Name == "" {
			return fmt.Errorf("call %d has no tool name", i)
		}
	}
	return nil
}

// ToolResult is the per-call outcome on the success path.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

// FailureKind distinguishes a consent refusal from a handler-level failure.
// The dispatcher never inspects error message text to tell these apart.
type FailureKind string

const (
	FailureDenied FailureKind = "denied"
	FailureError  FailureKind = "error"
)

// Failure is the abort marker of a ToolResponse. Tool names the call the
// batch stopped on.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Tool    string      `json:"tool,omitempty"`
	Message string      `json:"message"`
}

// ToolResponse is the aggregate outcome of a whole ToolRequest. Exactly one
// of Results (success) or Failure (abort) is set. Success == true implies one
// result per requested call. Partial progress before an abort is visible only
// through the audit trail; the envelope has no partial-success variant.
type ToolResponse struct {
	Success bool         `json:"success"`
	Results []ToolResult `json:"results,omitempty"`
	Failure *Failure     `json:"failure,omitempty"`
}

func Succeeded(results []ToolResult) ToolResponse {
	return ToolResponse{Success: true, Results: results}
}

func Denied(tool, message string) ToolResponse {
	return ToolResponse{Success: false, Failure: &Failure{Kind: FailureDenied, Tool: tool, Message: message}}
}

func Failed(tool, format string, args ...any) ToolResponse {
	return ToolResponse{Success: false, Failure: &Failure{
		Kind:    FailureError,
		Tool:    tool,
		Message: fmt.Sprintf(format, args...),
	}}
}

type ctxKey string

const (
	requesterKey ctxKey = "requester"
	traceIDKey   ctxKey = "trace_id"
)

// WithRequester tags the context with the identity of the calling agent.
// Handlers and the gatekeeper read it back for prompts and audit entries.
func WithRequester(ctx context.Context, requester string) context.Context {
	return context.WithValue(ctx, requesterKey, requester)
}

func RequesterFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requesterKey).(string); ok && id != "" {
		return id
	}
	return "unknown"
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}
