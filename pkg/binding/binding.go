// Package binding implements the agent/function binding contract (C6):
// the engine invokes these interfaces by reference from a transition's
// AgentBinding/FunctionBinding, never embedding execution logic itself.
package binding

import (
	"context"
	"time"
)

// Invocation is the projected input an agent or function binding
// receives: token fields mapped through BindingRef.InputMapping.
type Invocation struct {
	BindingID string
	Input     map[string]interface{}
	Timeout   time.Duration
}

// Outcome is what a binding call returns: output fields to be mapped
// back onto the token via BindingRef.OutputMapping, the call's Duration
// (Adapter does not pass it on to the engine, so it is not recorded on
// the TransitionRecord), and any stream events emitted while
// the call was in flight (§4.5's optional stream_events, typically only
// an agent binding's content chunks).
type Outcome struct {
	Output       map[string]interface{}
	Duration     time.Duration
	StreamEvents []StreamEvent
}

// StreamEvent is a single chunk a binding call emits while executing,
// forwarded live to C5 (pkg/streaming) tagged with the invoking token's
// scope rather than held until the call completes.
type StreamEvent struct {
	EventType string
	Payload   map[string]interface{}
}

// AgentBinding invokes an external agent by reference.
type AgentBinding interface {
	InvokeAgent(ctx context.Context, inv Invocation) (Outcome, error)
}

// FunctionBinding invokes an external function/webhook by reference.
type FunctionBinding interface {
	InvokeFunction(ctx context.Context, inv Invocation) (Outcome, error)
}

// Registry resolves a binding ID to an executor. The engine looks up
// bindings by ID rather than holding direct references, so hosts can
// register HTTP-backed, in-process, or test doubles interchangeably.
type Registry struct {
	agents    map[string]AgentBinding
	functions map[string]FunctionBinding
}

// NewRegistry creates an empty binding registry.
func NewRegistry() *Registry {
	return &Registry{
		agents:    make(map[string]AgentBinding),
		functions: make(map[string]FunctionBinding),
	}
}

// RegisterAgent attaches an AgentBinding under id.
func (r *Registry) RegisterAgent(id string, b AgentBinding) {
	r.agents[id] = b
}

// RegisterFunction attaches a FunctionBinding under id.
func (r *Registry) RegisterFunction(id string, b FunctionBinding) {
	r.functions[id] = b
}

// Agent looks up a registered agent binding.
func (r *Registry) Agent(id string) (AgentBinding, bool) {
	b, ok := r.agents[id]
	return b, ok
}

// Function looks up a registered function binding.
func (r *Registry) Function(id string) (FunctionBinding, bool) {
	b, ok := r.functions[id]
	return b, ok
}

