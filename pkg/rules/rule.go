// Package rules implements the deterministic rule tree evaluator (C3):
// a tagged union of Simple/Composite/Custom/Expression rules evaluated
// against a read-only RuleContext.
package rules

// Kind discriminates the Rule tagged union.
type Kind string

const (
	KindSimple     Kind = "simple"
	KindComposite  Kind = "composite"
	KindCustom     Kind = "custom"
	KindExpression Kind = "expression"
)

// Operator enumerates Simple rule comparison operators.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not-equals"
	OpGT         Operator = "gt"
	OpLT         Operator = "lt"
	OpGE         Operator = "ge"
	OpLE         Operator = "le"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts-with"
	OpEndsWith   Operator = "ends-with"
	OpExists     Operator = "exists"
)

// LogicalOp enumerates Composite rule logical operators.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "and"
	LogicalOr  LogicalOp = "or"
	LogicalNot LogicalOp = "not"
)

// Rule is the tagged-union node of a rule tree. Exactly one of the
// kind-specific fields is populated, selected by Kind.
type Rule struct {
	ID   string `json:"id,omitempty"`
	Kind Kind   `json:"kind"`

	// Simple
	FieldPath string      `json:"field_path,omitempty"`
	Operator  Operator    `json:"operator,omitempty"`
	Value     interface{} `json:"value,omitempty"`

	// Composite
	LogicalOp LogicalOp `json:"logical_op,omitempty"`
	Children  []*Rule   `json:"children,omitempty"`

	// Custom
	EvaluatorName string                 `json:"evaluator_name,omitempty"`
	Params        map[string]interface{} `json:"params,omitempty"`

	// Expression
	Expression string `json:"expression,omitempty"`
	Language   string `json:"language,omitempty"` // e.g. "cel"
}

// RuleContext is the read-only context a rule tree is evaluated against.
type RuleContext struct {
	Token           interface{}            `json:"token"`
	Transition      interface{}            `json:"transition"`
	AmbientMetadata map[string]interface{} `json:"ambient_metadata,omitempty"`
}

// Diagnostic explains why a single rule node passed or failed.
type Diagnostic struct {
	RuleID string `json:"rule_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Result is the outcome of evaluating a rule tree: whether it passed,
// plus a per-rule diagnostic trail for denial reporting.
type Result struct {
	Passed        bool         `json:"passed"`
	Diagnostics   []Diagnostic `json:"diagnostics,omitempty"`
	FailingRuleID string       `json:"failing_rule_id,omitempty"`
}

func (r Result) failing(ruleID, reason string) Result {
	r.Passed = false
	r.FailingRuleID = ruleID
	r.Diagnostics = append(r.Diagnostics, Diagnostic{RuleID: ruleID, Reason: reason})
	return r
}

func passed() Result { return Result{Passed: true} }
