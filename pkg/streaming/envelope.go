// Package streaming delivers real-time workflow events (transition
// notifications, agent content chunks) to subscribers over WebSocket,
// SSE, or an in-process Go channel, normalized to one event envelope
// across all three.
package streaming

import (
	"errors"
	"time"
)

// EventType enumerates the kinds of envelope carried on a channel.
type EventType string

const (
	EventContentChunk EventType = "content_chunk"
	EventThinking      EventType = "thinking"
	EventToolCall      EventType = "tool_call"
	EventToolResult    EventType = "tool_result"
	EventTransition    EventType = "transition"
	EventLifecycle     EventType = "lifecycle"
	EventCompleted     EventType = "completed"
	EventError         EventType = "error"
)

// Scope identifies which kind of id an Event's ScopeID names.
type Scope string

const (
	ScopeToken    Scope = "token"
	ScopeWorkflow Scope = "workflow"
	ScopeSession  Scope = "session"
)

// ChannelKey identifies one in-memory topic a Session can subscribe to.
type ChannelKey struct {
	Scope Scope
	ID    string
}

// Event is the normalized, cross-protocol envelope delivered to
// subscribers.
type Event struct {
	EventType EventType              `json:"event_type"`
	ScopeID   string                 `json:"scope_id"`
	Seq       int64                  `json:"seq"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
	Usage     *Usage                 `json:"usage,omitempty"`

	// Dropped, when non-zero, is stamped onto a heartbeat event a lossy
	// session emits to surface how many events it has discarded.
	Dropped int64 `json:"dropped,omitempty"`
}

// Usage reports token accounting for an agent completion, when the
// adapter reports one.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrChannelClosed is returned by Deliver once a session has been
// closed; it is a signal, not a failure (§4.4's Cancellation clause).
var ErrChannelClosed = errors.New("streaming: channel closed")

// ErrOverloaded is returned by Hub.Subscribe when a resource limit
// would be exceeded by accepting a new subscription.
var ErrOverloaded = errors.New("streaming: overloaded")
