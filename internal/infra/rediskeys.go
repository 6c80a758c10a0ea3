package infra

const (
	// RedisNamespace isolates this project's keys in a shared Redis.
	RedisNamespace = "archon"
)

// Sets (state).
const (
	RedisKeyBlockedRequesters = RedisNamespace + ":requesters:blocked_set"
)

// Pub/Sub channels (events).
const (
	// RedisChanDecisions broadcasts operator decisions for queued
	// permission requests, payload "request_id:true|false".
	RedisChanDecisions = RedisNamespace + ":permissions:decisions"

	// RedisChanKillSwitch toggles the blocked-requester set, payload
	// "requester:true|false".
	RedisChanKillSwitch = RedisNamespace + ":requesters:kill-switch"
)
