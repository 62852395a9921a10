package binding

import (
	"context"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// Adapter satisfies workflow.Binder against a Registry, applying each
// BindingRef's own timeout and retry policy around the resolved
// AgentBinding/FunctionBinding call.
type Adapter struct {
	registry *Registry
}

// NewAdapter wraps registry as a workflow.Binder.
func NewAdapter(registry *Registry) *Adapter {
	return &Adapter{registry: registry}
}

// InvokeAgent implements workflow.Binder.
func (a *Adapter) InvokeAgent(ctx context.Context, ref *workflow.BindingRef, input map[string]interface{}) (workflow.BindingOutcome, error) {
	b, ok := a.registry.Agent(ref.ID)
	if !ok {
		return workflow.BindingOutcome{}, workflow.New(workflow.KindAgentFailure, "no agent binding registered for "+ref.ID, nil)
	}
	return a.invoke(ctx, ref, input, func(ctx context.Context, inv Invocation) (Outcome, error) {
		return b.InvokeAgent(ctx, inv)
	})
}

// InvokeFunction implements workflow.Binder.
func (a *Adapter) InvokeFunction(ctx context.Context, ref *workflow.BindingRef, input map[string]interface{}) (workflow.BindingOutcome, error) {
	b, ok := a.registry.Function(ref.ID)
	if !ok {
		return workflow.BindingOutcome{}, workflow.New(workflow.KindFunctionFailure, "no function binding registered for "+ref.ID, nil)
	}
	return a.invoke(ctx, ref, input, func(ctx context.Context, inv Invocation) (Outcome, error) {
		return b.InvokeFunction(ctx, inv)
	})
}

func (a *Adapter) invoke(ctx context.Context, ref *workflow.BindingRef, input map[string]interface{}, call func(context.Context, Invocation) (Outcome, error)) (workflow.BindingOutcome, error) {
	inv := Invocation{BindingID: ref.ID, Input: input, Timeout: ref.Timeout}

	wrapped := func(ctx context.Context) (Outcome, error) {
		return WithTimeout(ctx, ref.Timeout, func(ctx context.Context) (Outcome, error) {
			return call(ctx, inv)
		})
	}

	out, err := WithRetry(ctx, ref.RetryPolicy, wrapped)
	if err != nil {
		return workflow.BindingOutcome{}, err
	}
	result := workflow.BindingOutcome{Output: out.Output}
	if result.Output == nil {
		result.Output = map[string]interface{}{}
	}
	for _, se := range out.StreamEvents {
		result.StreamEvents = append(result.StreamEvents, workflow.StreamEvent{EventType: se.EventType, Payload: se.Payload})
	}
	return result, nil
}
