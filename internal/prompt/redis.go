package prompt

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arcaneos/archon-runtime/internal/infra"
)

// StartDecisionListener subscribes to the decisions channel and feeds
// operator verdicts into the queue. Lets a console on another host resolve
// prompts for this runtime. Payload format is "request_id:true|false".
// Reconnects with a short backoff until ctx is cancelled.
func StartDecisionListener(ctx context.Context, rdb *redis.Client, q *Queue, logger *zap.Logger) {
	go func() {
		for {
			if ctx.Err() != nil {
				return
			}

			pubsub := rdb.Subscribe(ctx, infra.RedisChanDecisions)
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
					applyDecision(q, msg.Payload, logger)
				}
			}

			_ = pubsub.Close()
			logger.Warn("decisions subscription lost, reconnecting")

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()
}

func applyDecision(q *Queue, payload string, logger *zap.Logger) {
	idx := strings.LastIndex(payload, ":")
	if idx <= 0 || idx == len(payload)-1 {
		logger.Warn("malformed decision payload", zap.String("payload", payload))
		return
	}
	id, verdict := payload[:idx], payload[idx+1:]

	var granted bool
	switch verdict {
	case "true":
		granted = true
	case "false":
		granted = false
	default:
		logger.Warn("malformed decision payload", zap.String("payload", payload))
		return
	}

	if err := q.Resolve(id, granted, "redis"); err != nil {
		// Expired, already decided locally, or another replica's request.
		logger.Debug("decision had no local pending request",
			zap.String("request_id", id),
			zap.Error(err))
	}
}

// PublishDecision broadcasts an operator verdict so every runtime replica
// holding the pending request can settle it.
func PublishDecision(ctx context.Context, rdb *redis.Client, id string, granted bool) error {
	payload := id + ":false"
	if granted {
		payload = id + ":true"
	}
	return rdb.Publish(ctx, infra.RedisChanDecisions, payload).Err()
}
