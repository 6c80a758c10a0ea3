// Package tool defines the capability surface of the runtime: handlers,
// their registry, and the permission gate every sensitive handler consults
// before acting.
package tool

import (
	"context"

	"github.com/arcaneos/archon-runtime/internal/domain"
)

// Handler executes one tool invocation. Args arrive as decoded JSON, so
// numbers are float64 unless a handler converts them. A handler returns
// either a result payload or an error; a *domain.DeniedError signals the
// gatekeeper refused, everything else is an execution failure.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Gate is the permission check handlers call before any side effect. The
// requester identity travels on the context. A nil return means proceed;
// a *domain.DeniedError means the action was refused.
type Gate interface {
	Decide(ctx context.Context, action domain.Action, resource string) error
}

// OpenGate approves everything. Only for tests and for handlers whose
// operations are inherently harmless (tool listing, help).
type OpenGate struct{}

func (OpenGate) Decide(context.Context, domain.Action, string) error { return nil }
