package workflow

import "time"

// WorkflowDefinition is immutable once published. Every TransitionDefinition's
// FromPlaces/ToPlace must refer to a declared place, and InitialPlace must be
// one of Places — both are enforced by Validate.
type WorkflowDefinition struct {
	Identifier    string                  `json:"identifier" yaml:"identifier"`
	Version       int                     `json:"version" yaml:"version"`
	Places        []string                `json:"places" yaml:"places"`
	InitialPlace  string                  `json:"initial_place" yaml:"initial_place"`
	Transitions   []TransitionDefinition  `json:"transitions" yaml:"transitions"`
	Triggers      []TriggerDefinition     `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Compatibility map[string]interface{}  `json:"compatibility,omitempty" yaml:"compatibility,omitempty"`
}

// TransitionDefinition describes a single declared move. A transition
// combining multiple conditions declares a single Rule whose Kind is
// composite, with LogicalOp set to "and" or "or" over its Children —
// there is no separate multi-rule list, so AND/OR selection lives
// entirely in the rule tree's own shape rather than as a transition-level
// flag.
type TransitionDefinition struct {
	Identifier      string      `json:"identifier" yaml:"identifier"`
	FromPlaces      []string    `json:"from_places" yaml:"from_places"`
	ToPlace         string      `json:"to_place" yaml:"to_place"`
	Rule            *RuleNode   `json:"rule,omitempty" yaml:"rule,omitempty"`
	AgentBinding    *BindingRef `json:"agent_binding,omitempty" yaml:"agent_binding,omitempty"`
	FunctionBinding *BindingRef `json:"function_binding,omitempty" yaml:"function_binding,omitempty"`
}

// BindingRef references an agent or function binding attached to a
// transition, with the field-projection mappings §4.5 requires.
type BindingRef struct {
	ID            string            `json:"id" yaml:"id"`
	InputMapping  map[string]string `json:"input_mapping,omitempty" yaml:"input_mapping,omitempty"`
	OutputMapping map[string]string `json:"output_mapping,omitempty" yaml:"output_mapping,omitempty"`
	RetryPolicy   *RetryPolicy      `json:"retry_policy,omitempty" yaml:"retry_policy,omitempty"`
	Timeout       time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// RetryPolicy is the shared {max_attempts, backoff, retry_on} shape used
// by both bindings (§4.5) and the webhook dispatcher (§4.3).
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Backoff     BackoffKind   `json:"backoff" yaml:"backoff"`
	Multiplier  float64       `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay"`
	RetryOn     []string      `json:"retry_on,omitempty" yaml:"retry_on,omitempty"`
}

// BackoffKind enumerates retry backoff algorithms.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// TriggerDefinition is a webhook dispatcher trigger attached to a workflow
// (§4.3). Kept here alongside WorkflowDefinition since a trigger is part
// of a workflow's published configuration.
type TriggerDefinition struct {
	SubjectPattern     string            `json:"subject_pattern" yaml:"subject_pattern"`
	Action             TriggerAction     `json:"action" yaml:"action"`
	Correlation        CorrelationConfig `json:"correlation" yaml:"correlation"`
	InitialDataMapping map[string]string `json:"initial_data_mapping,omitempty" yaml:"initial_data_mapping,omitempty"`
	UpdateMapping      map[string]string `json:"update_mapping,omitempty" yaml:"update_mapping,omitempty"`
	Filters            []FilterPredicate `json:"filters,omitempty" yaml:"filters,omitempty"`
	RateLimit          RateLimitConfig   `json:"rate_limit" yaml:"rate_limit"`
	Retry              RetryPolicy       `json:"retry" yaml:"retry"`
	DeadLetterSubject  string            `json:"dead_letter_subject" yaml:"dead_letter_subject"`
}

// TriggerAction enumerates dispatcher actions.
type TriggerAction string

const (
	ActionCreateNewInstance     TriggerAction = "create-new-instance"
	ActionUpdateExistingInstance TriggerAction = "update-existing-instance"
	ActionCreateOrUpdate        TriggerAction = "create-or-update"
)

// CorrelationConfig describes how to extract a correlation key.
type CorrelationConfig struct {
	PayloadPath string `json:"payload_path" yaml:"payload_path"`
	TokenField  string `json:"token_field" yaml:"token_field"`
}

// FilterPredicate is a simple rule evaluated against the raw payload;
// non-matching events are dropped (FilterDrop).
type FilterPredicate struct {
	PayloadPath string      `json:"payload_path" yaml:"payload_path"`
	Operator    string      `json:"operator" yaml:"operator"`
	Value       interface{} `json:"value" yaml:"value"`
}

// RateLimitConfig is the per-trigger tokens-per-minute + burst limit.
type RateLimitConfig struct {
	TokensPerMinute int `json:"tokens_per_minute" yaml:"tokens_per_minute"`
	Burst           int `json:"burst" yaml:"burst"`
}

// RuleNode is the wire form of a rules.Rule tree; kept as a separate type
// in this package (rather than importing pkg/rules directly into the
// wire-format struct) so workflow definitions can be decoded without a
// hard dependency cycle between pkg/workflow and pkg/rules. Engine code
// converts RuleNode to *rules.Rule via ToRulesTree (see rules_adapter.go).
type RuleNode struct {
	ID            string                 `json:"id,omitempty" yaml:"id,omitempty"`
	Kind          string                 `json:"kind" yaml:"kind"`
	FieldPath     string                 `json:"field_path,omitempty" yaml:"field_path,omitempty"`
	Operator      string                 `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value         interface{}            `json:"value,omitempty" yaml:"value,omitempty"`
	LogicalOp     string                 `json:"logical_op,omitempty" yaml:"logical_op,omitempty"`
	Children      []*RuleNode            `json:"children,omitempty" yaml:"children,omitempty"`
	EvaluatorName string                 `json:"evaluator_name,omitempty" yaml:"evaluator_name,omitempty"`
	Params        map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Expression    string                 `json:"expression,omitempty" yaml:"expression,omitempty"`
	Language      string                 `json:"language,omitempty" yaml:"language,omitempty"`
}

// Token is a workflow instance.
type Token struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflow_id"`
	Place      string                 `json:"place"`
	Data       map[string]interface{} `json:"data"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	History    []TransitionRecord     `json:"history"`

	// Log-store coordinates, set by the two-phase publish.
	Sequence       int64     `json:"sequence"`
	LogTimestamp   time.Time `json:"log_timestamp"`
	CurrentSubject string    `json:"current_subject"`

	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// TransitionRecord is an append-only history entry. Never edited once
// written (I2, P3).
type TransitionRecord struct {
	FromPlace     string                 `json:"from_place"`
	ToPlace       string                 `json:"to_place"`
	TransitionID  string                 `json:"transition_id"`
	Timestamp     time.Time              `json:"timestamp"`
	TriggeredBy   string                 `json:"triggered_by,omitempty"`
	Sequence      int64                  `json:"sequence,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks WorkflowDefinition's publish-time invariants: non-empty
// places, InitialPlace ∈ Places, every transition's from_places/to_place ∈
// Places, and every transition has a non-empty from_places (boundary
// behavior: empty from_places is rejected at publish).
func (w *WorkflowDefinition) Validate() error {
	if w.Identifier == "" {
		return New(KindUnknownWorkflow, "workflow identifier is required", nil)
	}
	if len(w.Places) == 0 {
		return New(KindUnknownWorkflow, "workflow must declare at least one place", nil)
	}
	placeSet := make(map[string]bool, len(w.Places))
	for _, p := range w.Places {
		placeSet[p] = true
	}
	if !placeSet[w.InitialPlace] {
		return New(KindUnknownWorkflow, "initial_place must be one of places", nil)
	}
	seenIDs := make(map[string]bool, len(w.Transitions))
	for _, t := range w.Transitions {
		if len(t.FromPlaces) == 0 {
			return New(KindInvalidTransition, "transition "+t.Identifier+" has empty from_places", nil)
		}
		if seenIDs[t.Identifier] {
			return New(KindInvalidTransition, "duplicate transition identifier: "+t.Identifier, nil)
		}
		seenIDs[t.Identifier] = true
		for _, from := range t.FromPlaces {
			if !placeSet[from] {
				return New(KindInvalidTransition, "transition "+t.Identifier+" references undeclared from_place "+from, nil)
			}
		}
		if !placeSet[t.ToPlace] {
			return New(KindInvalidTransition, "transition "+t.Identifier+" references undeclared to_place "+t.ToPlace, nil)
		}
	}
	return nil
}

// TransitionsFrom returns every declared transition whose FromPlaces
// includes place.
func (w *WorkflowDefinition) TransitionsFrom(place string) []TransitionDefinition {
	var out []TransitionDefinition
	for _, t := range w.Transitions {
		for _, from := range t.FromPlaces {
			if from == place {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// IsTerminal reports whether place has no outgoing TransitionDefinition.
func (w *WorkflowDefinition) IsTerminal(place string) bool {
	return len(w.TransitionsFrom(place)) == 0
}

// TransitionByID finds a transition by identifier.
func (w *WorkflowDefinition) TransitionByID(id string) (*TransitionDefinition, bool) {
	for i := range w.Transitions {
		if w.Transitions[i].Identifier == id {
			return &w.Transitions[i], true
		}
	}
	return nil, false
}
