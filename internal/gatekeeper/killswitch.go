package gatekeeper

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arcaneos/archon-runtime/internal/infra"
)

// BlockedSet mirrors the operator kill switch: a Redis set of requester IDs
// that must be refused outright, kept current by a pub/sub listener. With no
// Redis wired the set is empty and nothing is ever blocked.
type BlockedSet struct {
	mu        sync.RWMutex
	requester map[string]struct{}
	logger    *zap.Logger
}

func NewBlockedSet(logger *zap.Logger) *BlockedSet {
	return &BlockedSet{
		requester: make(map[string]struct{}),
		logger:    logger,
	}
}

func (b *BlockedSet) IsBlocked(requester string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.requester[requester]
	return ok
}

func (b *BlockedSet) set(requester string, blocked bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if blocked {
		b.requester[requester] = struct{}{}
	} else {
		delete(b.requester, requester)
	}
}

// Warmup loads the current blocked set from Redis, retrying while the
// broker comes up.
func (b *BlockedSet) Warmup(ctx context.Context, rdb *redis.Client) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
	)

	var members []string
	err := r.Do(func() error {
		var loadErr error
		members, loadErr = rdb.SMembers(ctx, infra.RedisKeyBlockedRequesters).Result()
		return loadErr
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range members {
		b.requester[m] = struct{}{}
	}
	b.logger.Info("blocked set warmed up", zap.Int("count", len(members)))
	return nil
}

// Listen follows the kill-switch channel until ctx is cancelled. Payloads
// are "requester:true|false"; malformed messages are logged and skipped.
// Subscription drops are retried with a short backoff.
func (b *BlockedSet) Listen(ctx context.Context, rdb *redis.Client) {
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := rdb.Subscribe(ctx, infra.RedisChanKillSwitch)
		ch := pubsub.Channel()

	recv:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				b.apply(msg.Payload)
			}
		}

		_ = pubsub.Close()
		b.logger.Warn("kill-switch subscription lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (b *BlockedSet) apply(payload string) {
	idx := strings.LastIndex(payload, ":")
	if idx <= 0 || idx == len(payload)-1 {
		b.logger.Warn("malformed kill-switch payload", zap.String("payload", payload))
		return
	}
	requester, state := payload[:idx], payload[idx+1:]

	switch state {
	case "true":
		b.set(requester, true)
		b.logger.Info("requester blocked", zap.String("requester", requester))
	case "false":
		b.set(requester, false)
		b.logger.Info("requester unblocked", zap.String("requester", requester))
	default:
		b.logger.Warn("malformed kill-switch payload", zap.String("payload", payload))
	}
}
