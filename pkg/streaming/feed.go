package streaming

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Logger is the narrow logging interface every core package accepts.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// channelPrefix namespaces every pubsub channel this feed understands,
// formatted as "<channelPrefix>:<scope>:<id>".
const channelPrefix = "circuitbreaker:stream"

// ChannelName builds the Redis pubsub channel name a publisher (the
// engine, an agent adapter) writes to for a given scope+id, so cmd/engine
// and this feed agree on the wire format without importing each other.
func ChannelName(scope Scope, id string) string {
	return channelPrefix + ":" + string(scope) + ":" + id
}

// parseChannelName is the inverse of ChannelName, generalized from
// cmd/fanout/redis_subscriber.go's extractUsernameFromChannel (which
// only handled a single fixed "workflow:events:{username}" shape) to
// any of the three declared scopes.
func parseChannelName(channel string) (ChannelKey, bool) {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) != 3 || parts[0] != "circuitbreaker" || parts[1] != "stream" {
		return ChannelKey{}, false
	}
	rest := strings.SplitN(parts[2], ":", 2)
	if len(rest) != 2 {
		return ChannelKey{}, false
	}
	scope := Scope(rest[0])
	switch scope {
	case ScopeToken, ScopeWorkflow, ScopeSession:
		return ChannelKey{Scope: scope, ID: rest[1]}, true
	default:
		return ChannelKey{}, false
	}
}

// RedisFeed bridges Redis pubsub, fed by engine/agent-adapter
// publishers, into a Hub's in-process fan-out. Adapted from
// cmd/fanout/redis_subscriber.go's PSubscribe/Receive/Channel loop,
// generalized from a single hardcoded pattern to the three declared
// scopes and from raw []byte forwarding to parsed Event envelopes.
type RedisFeed struct {
	redis  *redis.Client
	hub    *Hub
	logger Logger
}

// NewRedisFeed wires a Hub to an existing Redis client.
func NewRedisFeed(client *redis.Client, hub *Hub, logger Logger) *RedisFeed {
	return &RedisFeed{redis: client, hub: hub, logger: logger}
}

// Run subscribes to every scope's pubsub pattern and forwards parsed
// events to the Hub until ctx is cancelled.
func (f *RedisFeed) Run(ctx context.Context) error {
	pattern := channelPrefix + ":*"
	pubsub := f.redis.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	f.logger.Info("streaming feed subscribed", "pattern", pattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			if msg == nil {
				continue
			}
			key, ok := parseChannelName(msg.Channel)
			if !ok {
				f.logger.Warn("streaming feed: unrecognized channel", "channel", msg.Channel)
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.Warn("streaming feed: malformed event payload", "channel", msg.Channel, "error", err)
				continue
			}
			f.hub.Publish(ctx, key, ev)
		}
	}
}
