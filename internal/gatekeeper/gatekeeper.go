// Package gatekeeper decides whether a requester may perform an action on a
// resource. Order of authority: kill switch, session grant cache, auto-deny
// rules, auto-approve rules, then the prompter. Anything that cannot be
// decided is refused.
package gatekeeper

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcaneos/archon-runtime/internal/domain"
)

// Prompter asks a human (terminal or console queue) to decide a permission
// request. It blocks until granted, refused, expired, or ctx is done.
type Prompter interface {
	Ask(ctx context.Context, req domain.PermissionRequest) (bool, error)
}

// Blocklist reports requesters cut off by the operator kill switch.
type Blocklist interface {
	IsBlocked(requester string) bool
}

type Gatekeeper struct {
	mu      sync.RWMutex
	grants  map[string]struct{}
	rules   *Rules
	prompt  Prompter
	blocked Blocklist
	logger  *zap.Logger
}

// New builds a gatekeeper. prompt may be nil (headless deployments), in
// which case anything the rules don't settle is denied. blocked may be nil
// when no Redis kill switch is wired.
func New(rules *Rules, prompt Prompter, blocked Blocklist, logger *zap.Logger) *Gatekeeper {
	return &Gatekeeper{
		grants:  make(map[string]struct{}),
		rules:   rules,
		prompt:  prompt,
		blocked: blocked,
		logger:  logger,
	}
}

func grantKey(action domain.Action, resource string) string {
	return string(action) + ":" + resource
}

// Decide implements tool.Gate. Grants are cached for the session; denials
// never are, so a refused action is asked about again next time.
func (g *Gatekeeper) Decide(ctx context.Context, action domain.Action, resource string) error {
	requester := domain.RequesterFromContext(ctx)

	if g.blocked != nil && g.blocked.IsBlocked(requester) {
		g.logger.Warn("requester blocked by kill switch",
			zap.String("requester", requester),
			zap.String("action", string(action)))
		return &domain.DeniedError{Action: action, Resource: resource, Reason: "requester is blocked"}
	}

	key := grantKey(action, resource)

	g.mu.RLock()
	_, granted := g.grants[key]
	g.mu.RUnlock()
	if granted {
		return nil
	}

	switch g.rules.Evaluate(action, resource) {
	case Deny:
		g.logger.Info("auto-denied",
			zap.String("requester", requester),
			zap.String("action", string(action)),
			zap.String("resource", resource))
		return &domain.DeniedError{Action: action, Resource: resource, Reason: "matched auto-deny rule"}
	case Allow:
		g.remember(key)
		return nil
	}

	if g.prompt == nil {
		return &domain.DeniedError{Action: action, Resource: resource, Reason: "no prompter available"}
	}

	req := domain.PermissionRequest{
		ID:        uuid.NewString(),
		Action:    action,
		Resource:  resource,
		Requester: requester,
		CreatedAt: time.Now(),
	}

	ok, err := g.prompt.Ask(ctx, req)
	if err != nil {
		g.logger.Warn("prompt failed, denying",
			zap.String("request_id", req.ID),
			zap.Error(err))
		return &domain.DeniedError{Action: action, Resource: resource, Reason: "permission prompt failed: " + err.Error()}
	}
	if !ok {
		return &domain.DeniedError{Action: action, Resource: resource, Reason: "denied by user"}
	}

	g.remember(key)
	return nil
}

func (g *Gatekeeper) remember(key string) {
	g.mu.Lock()
	g.grants[key] = struct{}{}
	g.mu.Unlock()
}

// GrantCount reports cached session grants. Exposed as a metric.
func (g *Gatekeeper) GrantCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.grants)
}
