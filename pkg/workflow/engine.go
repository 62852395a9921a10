package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/castingclouds/circuit-breaker-sub001/common/clients"
)

// Logger is the narrow logging interface the engine accepts, matching
// the shape every core package uses (common/logger's Info/Warn/Error/Debug).
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Store is the subset of pkg/eventstore.Store the engine depends on.
// Declared here (rather than importing pkg/eventstore directly) so
// pkg/workflow stays the dependency root: pkg/eventstore imports
// pkg/workflow for its types and errors, and pkg/workflow must not
// import it back.
type Store interface {
	PublishToken(ctx context.Context, token *Token) error
	GetToken(ctx context.Context, workflowID, tokenID string) (*Token, error)
	AppendEvent(ctx context.Context, workflowID, subject string, payload interface{}) error
}

// Binder resolves and invokes agent/function bindings by reference,
// applying ref's own timeout and retry policy. pkg/binding implements
// this against its Registry.
type Binder interface {
	InvokeAgent(ctx context.Context, ref *BindingRef, input map[string]interface{}) (BindingOutcome, error)
	InvokeFunction(ctx context.Context, ref *BindingRef, input map[string]interface{}) (BindingOutcome, error)
}

// BindingOutcome is what invoking an agent or function binding
// returns: output fields to fold onto the token via
// BindingRef.OutputMapping, plus any stream events the binding emitted
// while executing (§4.5's optional stream_events — in practice only
// agent bindings stream content chunks).
type BindingOutcome struct {
	Output       map[string]interface{}
	StreamEvents []StreamEvent
}

// StreamEvent is a single chunk a binding call emits while executing,
// forwarded to Publisher tagged with the invoking token's scope.
type StreamEvent struct {
	EventType string
	Payload   map[string]interface{}
}

// Publisher forwards a token-scoped event to C5 (pkg/streaming) so a
// live subscriber sees activity as it happens, rather than only once it
// replays the event-sourced log. Declared here (rather than importing
// pkg/streaming) for the same dependency-direction reason as Store: a
// nil Publisher, the default, disables stream forwarding entirely.
type Publisher interface {
	PublishEvent(ctx context.Context, scope, scopeID, eventType string, payload map[string]interface{}) error
}

// Engine implements the workflow/transition engine (C2): instance
// creation, transition enumeration, firing, and data updates, all
// against an event-sourced Store and a pure rule evaluator.
type Engine struct {
	store              Store
	eval               RuleEval
	binder             Binder
	logger             Logger
	publisher          Publisher
	transitionsSubject func(workflowID string) string
	lifecycleSubject   func(workflowID string) string
}

// scopeToken is the Publisher scope tag used for every event this
// engine forwards; it mirrors pkg/streaming.ScopeToken's string value
// without importing that package.
const scopeToken = "token"

// RuleEval is satisfied by (*rules.Evaluator).Evaluate, adapted via
// rules_adapter.go's ToRulesTree so this package never imports
// pkg/rules' concrete Rule type into its exported signatures.
type RuleEval interface {
	EvaluateNode(node *RuleNode, token *Token, transition *TransitionDefinition) (passed bool, failingRuleID string)
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithTransitionsSubject overrides the subject Fire appends transition
// events to. pkg/workflow must not import pkg/eventstore (eventstore
// imports pkg/workflow for its types, so the reverse would cycle), so
// the canonical builder (eventstore.TransitionsSubject) is injected by
// the caller that CAN see both packages, rather than duplicated here.
func WithTransitionsSubject(f func(workflowID string) string) Option {
	return func(e *Engine) { e.transitionsSubject = f }
}

// WithLifecycleSubject overrides the subject CreateInstance appends
// lifecycle events to, for the same reason as WithTransitionsSubject.
func WithLifecycleSubject(f func(workflowID string) string) Option {
	return func(e *Engine) { e.lifecycleSubject = f }
}

// WithPublisher attaches a Publisher so CreateInstance, Fire, and
// binding invocations forward live activity to C5 as it happens.
// Without this option stream forwarding is a no-op.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// NewEngine constructs an Engine. binder may be nil for workflows whose
// transitions never attach bindings. Without WithTransitionsSubject/
// WithLifecycleSubject options, subjects fall back to this package's own
// bit-exact copy of eventstore's format, matched by
// TestEngineSubjects_MatchEventstoreFormat against eventstore's builders
// so the two can't silently drift apart again.
func NewEngine(store Store, eval RuleEval, binder Binder, logger Logger, opts ...Option) *Engine {
	e := &Engine{
		store:              store,
		eval:               eval,
		binder:             binder,
		logger:             logger,
		transitionsSubject: transitionsEventSubject,
		lifecycleSubject:   lifecycleEventSubject,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateInstance publishes a new token in def's initial place, with a
// synthetic creation record as the first history entry, and appends a
// lifecycle event.
func (e *Engine) CreateInstance(ctx context.Context, def *WorkflowDefinition, initialData, metadata map[string]interface{}, triggeredBy string) (*Token, error) {
	if def == nil {
		return nil, New(KindUnknownWorkflow, "workflow definition is required", nil)
	}
	now := time.Now().UTC()
	if initialData == nil {
		initialData = map[string]interface{}{}
	}

	token := &Token{
		ID:         newTokenID(),
		WorkflowID: def.Identifier,
		Place:      def.InitialPlace,
		Data:       initialData,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
		History: []TransitionRecord{
			{
				FromPlace:    "",
				ToPlace:      def.InitialPlace,
				TransitionID: "",
				Timestamp:    now,
				TriggeredBy:  triggeredBy,
			},
		},
	}

	if err := e.store.PublishToken(ctx, token); err != nil {
		return nil, err
	}
	if err := e.store.AppendEvent(ctx, def.Identifier, e.lifecycleSubject(def.Identifier), map[string]interface{}{
		"event":      "instance_created",
		"token_id":   token.ID,
		"place":      token.Place,
		"created_at": now,
	}); err != nil {
		e.logger.Warn("failed to append lifecycle event", "token_id", token.ID, "error", err)
	}
	e.publish(ctx, token.ID, "lifecycle", map[string]interface{}{
		"event": "instance_created",
		"place": token.Place,
	})
	return token, nil
}

// publish forwards an event to Publisher, tagged with the given
// token's scope, logging rather than failing the caller's operation if
// the publish itself errors (stream fan-out is best-effort; the
// event-sourced log in Store already has the durable record).
func (e *Engine) publish(ctx context.Context, tokenID, eventType string, payload map[string]interface{}) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishEvent(ctx, scopeToken, tokenID, eventType, payload); err != nil {
		e.logger.Warn("failed to forward stream event", "token_id", tokenID, "event_type", eventType, "error", err)
	}
}

// AvailableTransitions enumerates transitions whose FromPlaces includes
// token.Place and whose rule tree currently evaluates to true.
func (e *Engine) AvailableTransitions(def *WorkflowDefinition, token *Token) []TransitionDefinition {
	var out []TransitionDefinition
	for _, t := range def.TransitionsFrom(token.Place) {
		if e.evaluateRule(t, token) {
			out = append(out, t)
		}
	}
	return out
}

// CanFire reports, with no side effects, whether transitionID could
// currently fire against token.
func (e *Engine) CanFire(def *WorkflowDefinition, token *Token, transitionID string) bool {
	t, ok := def.TransitionByID(transitionID)
	if !ok {
		return false
	}
	if !placeIn(token.Place, t.FromPlaces) {
		return false
	}
	return e.evaluateRule(*t, token)
}

// Fire executes the transition firing algorithm (§4.2 steps 1-6):
// re-read for staleness, validate from_places, evaluate rules, invoke
// bindings in declaration order, construct and two-phase-publish the
// new token, and append a transition event.
func (e *Engine) Fire(ctx context.Context, def *WorkflowDefinition, snapshot *Token, transitionID, triggeredBy string, extraData map[string]interface{}) (*Token, error) {
	t, ok := def.TransitionByID(transitionID)
	if !ok {
		return nil, New(KindInvalidTransition, "unknown transition: "+transitionID, nil)
	}

	// Step 1: re-read authoritative token, fail Stale if caller's
	// snapshot sequence is older than storage's.
	current, err := e.store.GetToken(ctx, def.Identifier, snapshot.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, New(KindUnknownToken, "token not found: "+snapshot.ID, nil)
	}
	if current.Sequence > snapshot.Sequence {
		return nil, New(KindStale, "token has been updated since the caller's snapshot was read", nil)
	}

	// Step 2: from_places check.
	if !placeIn(current.Place, t.FromPlaces) {
		return nil, New(KindInvalidTransition, "token is not in transition "+transitionID+"'s from_places", nil)
	}
	if def.IsTerminal(current.Place) {
		return nil, New(KindInvalidTransition, "place "+current.Place+" is terminal", nil)
	}

	// Step 3: rule evaluation.
	if !e.evaluateRule(*t, current) {
		failing := e.failingRuleID(*t, current)
		return nil, RuleDenied([]string{failing})
	}

	// Step 4: invoke bindings, in declaration order (agent then function).
	// triggeredBy rides on ctx so a binder backed by an outbound HTTP call
	// (pkg/binding's HTTPFunctionBinding) can attribute the request.
	bindingCtx := clients.WithTriggeredBy(ctx, triggeredBy)

	data := cloneMap(current.Data)
	for k, v := range extraData {
		data[k] = v
	}
	metadata := cloneMap(current.Metadata)

	if t.AgentBinding != nil {
		out, err := e.invokeBinding(bindingCtx, t.AgentBinding, data, true, current.ID)
		if err != nil {
			return nil, err
		}
		applyOutput(data, t.AgentBinding.OutputMapping, out)
	}
	if t.FunctionBinding != nil {
		out, err := e.invokeBinding(bindingCtx, t.FunctionBinding, data, false, current.ID)
		if err != nil {
			return nil, err
		}
		applyOutput(data, t.FunctionBinding.OutputMapping, out)
	}

	// Step 5: construct the new token.
	now := time.Now().UTC()
	next := &Token{
		ID:         current.ID,
		WorkflowID: current.WorkflowID,
		Place:      t.ToPlace,
		Data:       data,
		Metadata:   metadata,
		CreatedAt:  current.CreatedAt,
		UpdatedAt:  now,
		History: append(append([]TransitionRecord{}, current.History...), TransitionRecord{
			FromPlace:    current.Place,
			ToPlace:      t.ToPlace,
			TransitionID: t.Identifier,
			Timestamp:    now,
			TriggeredBy:  triggeredBy,
		}),
	}
	if def.IsTerminal(t.ToPlace) {
		archivedAt := now
		next.Archived = true
		next.ArchivedAt = &archivedAt
	}

	// Step 6: two-phase publish, then append transition event.
	if err := e.store.PublishToken(ctx, next); err != nil {
		return nil, err
	}
	if err := e.store.AppendEvent(ctx, def.Identifier, e.transitionsSubject(def.Identifier), map[string]interface{}{
		"event":         "transition_fired",
		"token_id":      next.ID,
		"transition_id": t.Identifier,
		"from_place":    current.Place,
		"to_place":      t.ToPlace,
		"sequence":      next.Sequence,
	}); err != nil {
		e.logger.Warn("failed to append transition event", "token_id", next.ID, "error", err)
	}
	e.publish(ctx, next.ID, "transition", map[string]interface{}{
		"transition_id": t.Identifier,
		"from_place":    current.Place,
		"to_place":      t.ToPlace,
	})
	return next, nil
}

// invokeBinding projects data through ref's input mapping, calls the
// binder, and forwards any stream events the call emitted to Publisher
// tagged with tokenID before returning the output fields to fold back
// onto the token.
func (e *Engine) invokeBinding(ctx context.Context, ref *BindingRef, data map[string]interface{}, isAgent bool, tokenID string) (map[string]interface{}, error) {
	input := projectInput(data, ref.InputMapping)
	var out BindingOutcome
	var err error
	if isAgent {
		out, err = e.binder.InvokeAgent(ctx, ref, input)
	} else {
		out, err = e.binder.InvokeFunction(ctx, ref, input)
	}
	if err != nil {
		return nil, err
	}
	for _, se := range out.StreamEvents {
		e.publish(ctx, tokenID, se.EventType, se.Payload)
	}
	return out.Output, nil
}

func (e *Engine) evaluateRule(t TransitionDefinition, token *Token) bool {
	if t.Rule == nil {
		return true
	}
	passed, _ := e.eval.EvaluateNode(t.Rule, token, &t)
	return passed
}

func (e *Engine) failingRuleID(t TransitionDefinition, token *Token) string {
	if t.Rule == nil {
		return ""
	}
	_, failing := e.eval.EvaluateNode(t.Rule, token, &t)
	return failing
}

func placeIn(place string, places []string) bool {
	for _, p := range places {
		if p == place {
			return true
		}
	}
	return false
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func projectInput(data map[string]interface{}, mapping map[string]string) map[string]interface{} {
	in := make(map[string]interface{}, len(mapping))
	for tokenField, inputField := range mapping {
		if v, ok := data[tokenField]; ok {
			in[inputField] = v
		}
	}
	return in
}

func applyOutput(data map[string]interface{}, mapping map[string]string, output map[string]interface{}) {
	for outputField, tokenField := range mapping {
		if v, ok := output[outputField]; ok {
			data[tokenField] = v
		}
	}
}

func newTokenID() string {
	return uuid.New().String()
}

// lifecycleEventSubject/transitionsEventSubject are the default
// fallback when no Option overrides them; kept bit-exact with
// eventstore.LifecycleSubject/TransitionsSubject's format
// ("cb.workflows.{id}.events.{lifecycle,transitions}") even though this
// package can't import eventstore to call those functions directly.
func lifecycleEventSubject(workflowID string) string {
	return "cb.workflows." + workflowID + ".events.lifecycle"
}

func transitionsEventSubject(workflowID string) string {
	return "cb.workflows." + workflowID + ".events.transitions"
}
