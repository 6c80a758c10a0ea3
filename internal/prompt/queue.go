package prompt

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcaneos/archon-runtime/internal/domain"
)

// settledCap bounds the settled-id ledger; it exists only to distinguish
// "decided twice" from "never existed" at the console, not as history.
const settledCap = 1024

// PendingView is what the console lists for each undecided request.
type PendingView struct {
	domain.PermissionRequest
	Status    domain.PermissionStatus `json:"status"`
	ExpiresAt time.Time               `json:"expires_at"`
}

type pendingRequest struct {
	req       domain.PermissionRequest
	expiresAt time.Time
	decision  chan bool
}

// Queue parks permission requests for an operator to decide through the
// console (directly or via the Redis decisions channel). Each Ask blocks its
// own dispatch goroutine; duplicate questions from concurrent dispatches are
// queued independently and decided independently.
type Queue struct {
	mu           sync.Mutex
	pending      map[string]*pendingRequest
	settled      map[string]domain.PermissionStatus
	settledOrder []string
	ttl          time.Duration
	logger       *zap.Logger
}

func NewQueue(ttl time.Duration, logger *zap.Logger) *Queue {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Queue{
		pending: make(map[string]*pendingRequest),
		settled: make(map[string]domain.PermissionStatus),
		ttl:     ttl,
		logger:  logger,
	}
}

// Ask enqueues the request and blocks until an operator resolves it, the TTL
// lapses, or ctx is cancelled. Expiry and cancellation both read as refusals
// upstream, since the gatekeeper fails closed on error.
func (q *Queue) Ask(ctx context.Context, req domain.PermissionRequest) (bool, error) {
	p := &pendingRequest{
		req:       req,
		expiresAt: time.Now().Add(q.ttl),
		decision:  make(chan bool, 1),
	}

	q.mu.Lock()
	q.pending[req.ID] = p
	q.mu.Unlock()

	q.logger.Info("permission request queued",
		zap.String("request_id", req.ID),
		zap.String("requester", req.Requester),
		zap.String("action", string(req.Action)),
		zap.String("resource", req.Resource))

	timer := time.NewTimer(q.ttl)
	defer timer.Stop()

	select {
	case granted := <-p.decision:
		return granted, nil
	case <-timer.C:
		q.settle(req.ID, domain.PermissionExpired)
		q.logger.Info("permission request expired", zap.String("request_id", req.ID))
		return false, context.DeadlineExceeded
	case <-ctx.Done():
		q.settle(req.ID, domain.PermissionExpired)
		return false, ctx.Err()
	}
}

// Resolve delivers an operator decision. An id that was already decided or
// has expired returns domain.ErrAlreadyProcessed; an id the queue never saw
// (or that fell off the settled ledger) returns domain.ErrUnknownRequest.
func (q *Queue) Resolve(id string, granted bool, reviewer string) error {
	q.mu.Lock()
	p, ok := q.pending[id]
	if !ok {
		_, wasSettled := q.settled[id]
		q.mu.Unlock()
		if wasSettled {
			return domain.ErrAlreadyProcessed
		}
		return domain.ErrUnknownRequest
	}
	delete(q.pending, id)
	status := domain.PermissionRejected
	if granted {
		status = domain.PermissionApproved
	}
	q.recordSettled(id, status)
	q.mu.Unlock()

	p.decision <- granted
	q.logger.Info("permission request resolved",
		zap.String("request_id", id),
		zap.Bool("granted", granted),
		zap.String("reviewer", reviewer))
	return nil
}

// Status reports the settled outcome for an id, if it is still remembered.
func (q *Queue) Status(id string) (domain.PermissionStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; ok {
		return domain.PermissionPending, true
	}
	status, ok := q.settled[id]
	return status, ok
}

// Pending lists undecided requests, oldest first.
func (q *Queue) Pending() []PendingView {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]PendingView, 0, len(q.pending))
	for _, p := range q.pending {
		out = append(out, PendingView{
			PermissionRequest: p.req,
			Status:            domain.PermissionPending,
			ExpiresAt:         p.expiresAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (q *Queue) settle(id string, status domain.PermissionStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		// Resolve won the race; its status stands.
		return
	}
	delete(q.pending, id)
	q.recordSettled(id, status)
}

// recordSettled assumes q.mu is held. Oldest entries fall off at settledCap.
func (q *Queue) recordSettled(id string, status domain.PermissionStatus) {
	if _, ok := q.settled[id]; !ok {
		q.settledOrder = append(q.settledOrder, id)
	}
	q.settled[id] = status
	for len(q.settledOrder) > settledCap {
		delete(q.settled, q.settledOrder[0])
		q.settledOrder = q.settledOrder[1:]
	}
}

// Len reports queue depth. Exposed as a metric.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
