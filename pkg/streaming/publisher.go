package streaming

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// EnginePublisher publishes a token-scoped event onto the Redis pubsub
// channel RedisFeed reads from, so a transition/lifecycle/binding event
// reaches a live WebSocket/SSE subscriber the moment it happens rather
// than only once a consumer replays the event-sourced log. Implements
// pkg/workflow.Publisher by duck typing: neither package imports the
// other, matching pkg/workflow's dependency-direction discipline for
// Store/Binder.
type EnginePublisher struct {
	redis  *redis.Client
	logger Logger
}

// NewEnginePublisher wires an EnginePublisher to an existing Redis
// client, the same one RedisFeed subscribes through.
func NewEnginePublisher(client *redis.Client, logger Logger) *EnginePublisher {
	return &EnginePublisher{redis: client, logger: logger}
}

// PublishEvent marshals an Event envelope and publishes it on
// ChannelName(scope, scopeID). Errors are returned rather than
// swallowed so the caller (pkg/workflow.Engine) can log with its own
// token/transition context attached.
func (p *EnginePublisher) PublishEvent(ctx context.Context, scope, scopeID, eventType string, payload map[string]interface{}) error {
	ev := Event{
		EventType: EventType(eventType),
		ScopeID:   scopeID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal stream event", "scope", scope, "scope_id", scopeID, "error", err)
		return err
	}
	return p.redis.Publish(ctx, ChannelName(Scope(scope), scopeID), data).Err()
}
