// Package dispatch runs tool request batches: registry lookup, sequential
// execution, short-circuit on denial or failure, and an audit entry for
// every outcome.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcaneos/archon-runtime/internal/audit"
	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/tool"
)

type Dispatcher struct {
	registry *tool.Registry
	trail    *audit.Trail
	metrics  *Metrics
	logger   *zap.Logger
}

// New builds a dispatcher. metrics may be nil.
func New(registry *tool.Registry, trail *audit.Trail, metrics *Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		trail:    trail,
		metrics:  metrics,
		logger:   logger,
	}
}

// Dispatch executes the batch strictly in order. The first denial or error
// aborts the remaining calls; effects already performed stay applied and are
// visible only through the audit trail. Every dispatch is audited, including
// failed ones.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.ToolRequest) domain.ToolResponse {
	start := time.Now()

	traceID := domain.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = domain.WithTraceID(ctx, traceID)
	}
	requester := domain.RequesterFromContext(ctx)
	logger := d.logger.With(zap.String("trace_id", traceID), zap.String("requester", requester))

	if err := req.Validate(); err != nil {
		resp := domain.Failed("", "invalid request: %v", err)
		d.finish(ctx, req, resp, start, "invalid")
		return resp
	}

	logger.Info("dispatching",
		zap.String("summary", req.Summary),
		zap.Int("calls", len(req.Tools)))

	results := make([]domain.ToolResult, 0, len(req.Tools))
	for _, call := range req.Tools {
		spec, err := d.registry.Get(call.Name)
		if err != nil {
			// Unknown name aborts the whole batch, even mid-way: partial
			// results never travel back on the response.
			resp := domain.Failed(call.Name, "unknown tool: %s", call.Name)
			d.observeCall(call.Name, "unknown")
			d.finish(ctx, req, resp, start, "error")
			return resp
		}

		payload, err := d.invoke(ctx, spec, call.Args)
		if err != nil {
			var resp domain.ToolResponse
			status := "error"
			if domain.IsDenied(err) {
				resp = domain.Denied(call.Name, err.Error())
				status = "denied"
				d.observeCall(call.Name, "denied")
				logger.Info("call denied", zap.String("tool", call.Name), zap.Error(err))
			} else {
				resp = domain.Failed(call.Name, "%v", err)
				d.observeCall(call.Name, "error")
				logger.Warn("call failed", zap.String("tool", call.Name), zap.Error(err))
			}
			d.finish(ctx, req, resp, start, status)
			return resp
		}

		d.observeCall(call.Name, "ok")
		results = append(results, domain.ToolResult{Tool: call.Name, Result: payload})
	}

	resp := domain.Succeeded(results)
	d.finish(ctx, req, resp, start, "success")
	return resp
}

// invoke runs one handler, converting a panic into an error so a misbehaving
// handler cannot take the process down.
func (d *Dispatcher) invoke(ctx context.Context, spec tool.Spec, args map[string]any) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				zap.String("tool", spec.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("tool %s panicked: %v", spec.Name, r)
		}
	}()
	return spec.Handler(ctx, args)
}

func (d *Dispatcher) finish(ctx context.Context, req domain.ToolRequest, resp domain.ToolResponse, start time.Time, status string) {
	elapsed := time.Since(start)

	d.trail.Record(audit.Entry{
		TraceID:    domain.TraceIDFromContext(ctx),
		Requester:  domain.RequesterFromContext(ctx),
		Request:    req,
		Response:   resp,
		DurationMs: elapsed.Milliseconds(),
	})

	d.metrics.observeDispatch(status, elapsed.Seconds())
	d.metrics.setAuditEntries(d.trail.Len())
}

func (d *Dispatcher) observeCall(toolName, outcome string) {
	d.metrics.observeCall(toolName, outcome)
}
